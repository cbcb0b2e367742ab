package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/hackgods/clinic-appointments/internal/schedule"
	"github.com/hackgods/clinic-appointments/internal/validation"
)

// Field error codes reported by the conflict validator.
const (
	CodeDateInPast     = "date_in_past"
	CodeNonWorkingDay  = "non_working_day"
	CodeTimeOutOfRange = "time_out_of_range"
	CodeTimeInPast     = "time_in_past"
	CodeSlotTaken      = "slot_taken"
	CodeInvalidChoice  = "invalid_choice"
)

// BookingHours is the inclusive range a requested time must fall in. It does not
// follow the slot windows: 18:30 is a generated slot yet falls outside the defaults.
type BookingHours struct {
	Earliest schedule.TimeOfDay
	Latest   schedule.TimeOfDay
}

var DefaultBookingHours = BookingHours{
	Earliest: schedule.NewTimeOfDay(9, 0),
	Latest:   schedule.NewTimeOfDay(18, 0),
}

func (h BookingHours) Contains(t schedule.TimeOfDay) bool {
	return h.Earliest <= t && t <= h.Latest
}

// SlotChecker answers whether another appointment already holds a slot.
type SlotChecker interface {
	SlotTaken(ctx context.Context, doctorID int64, date schedule.Date, t schedule.TimeOfDay, excludeID int64) (bool, error)
}

type ValidateInput struct {
	DoctorID  int64
	Date      schedule.Date
	Time      schedule.TimeOfDay
	Now       time.Time
	ExcludeID int64 // appointment being edited, 0 for a new booking
}

type Validator struct {
	slots    SlotChecker
	calendar schedule.Calendar
	hours    BookingHours
}

func NewValidator(slots SlotChecker, calendar schedule.Calendar, hours BookingHours) *Validator {
	return &Validator{slots: slots, calendar: calendar, hours: hours}
}

// Validate runs every check and returns all failures as *validation.Errors.
// Store failures are returned as plain errors.
func (v *Validator) Validate(ctx context.Context, in ValidateInput) error {
	errs := &validation.Errors{}
	v.checkDate(in.Date, in.Now, errs)
	v.checkTime(in.Time, errs)
	v.checkMoment(in.Date, in.Time, in.Now, errs)
	if err := v.checkSlot(ctx, in.DoctorID, in.Date, in.Time, in.ExcludeID, errs); err != nil {
		return err
	}
	return errs.Err()
}

func (v *Validator) checkDate(d schedule.Date, now time.Time, errs *validation.Errors) {
	if d.Before(schedule.DateOf(now)) {
		errs.Add("date", CodeDateInPast, "the date cannot be in the past")
	}
	if !v.calendar.IsWorkingDay(d) {
		errs.Add("date", CodeNonWorkingDay, "the clinic does not attend on "+d.Weekday().String())
	}
}

func (v *Validator) checkTime(t schedule.TimeOfDay, errs *validation.Errors) {
	if !v.hours.Contains(t) {
		errs.Add("time", CodeTimeOutOfRange,
			fmt.Sprintf("the time must be between %s and %s", v.hours.Earliest, v.hours.Latest))
	}
}

func (v *Validator) checkMoment(d schedule.Date, t schedule.TimeOfDay, now time.Time, errs *validation.Errors) {
	if schedule.DateOf(now) == d && t <= schedule.TimeOfDayOf(now) {
		errs.Add("time", CodeTimeInPast, "the selected time has already passed")
	}
}

func (v *Validator) checkSlot(ctx context.Context, doctorID int64, d schedule.Date, t schedule.TimeOfDay, excludeID int64, errs *validation.Errors) error {
	taken, err := v.slots.SlotTaken(ctx, doctorID, d, t, excludeID)
	if err != nil {
		return fmt.Errorf("check slot: %w", err)
	}
	if taken {
		errs.Add("time", CodeSlotTaken, "this time is already booked for the selected doctor")
	}
	return nil
}
