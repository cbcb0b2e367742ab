package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hackgods/clinic-appointments/internal/schedule"
)

// freeSlots returns the calendar's slots for date that are neither occupied nor,
// when date is today, already reached by now. Chronological order is kept.
func freeSlots(cal schedule.Calendar, date schedule.Date, occupied []schedule.TimeOfDay, now time.Time) []schedule.TimeOfDay {
	candidates := cal.Slots(date)
	if len(candidates) == 0 {
		return []schedule.TimeOfDay{}
	}

	taken := make(map[schedule.TimeOfDay]struct{}, len(occupied))
	for _, t := range occupied {
		taken[t] = struct{}{}
	}

	current := schedule.MomentOf(now)
	isToday := date == current.Date

	free := make([]schedule.TimeOfDay, 0, len(candidates))
	for _, t := range candidates {
		if isToday && t <= current.Time {
			continue
		}
		if _, ok := taken[t]; ok {
			continue
		}
		free = append(free, t)
	}
	return free
}

// AvailableSlots lists the open slot start times for a doctor on date. Every
// stored appointment blocks its slot, cancelled ones included.
func (s *Service) AvailableSlots(ctx context.Context, doctorID int64, date schedule.Date) ([]schedule.TimeOfDay, error) {
	now := s.clock.Now()

	if !s.calendar.IsWorkingDay(date) {
		return []schedule.TimeOfDay{}, nil
	}

	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	occupied, err := s.repo.BookedTimes(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("load booked times: %w", err)
	}

	return freeSlots(s.calendar, date, occupied, now), nil
}
