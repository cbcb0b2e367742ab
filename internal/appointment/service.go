package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/clock"
	"github.com/hackgods/clinic-appointments/internal/events"
	redisclient "github.com/hackgods/clinic-appointments/internal/redis"
	"github.com/hackgods/clinic-appointments/internal/schedule"
	"github.com/hackgods/clinic-appointments/internal/validation"
)

const (
	EventAppointmentBooked      = "APPOINTMENT_BOOKED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
)

var (
	ErrSlotBeingBooked      = errors.New("slot is currently being booked, please choose again")
	ErrAppointmentCancelled = errors.New("appointment is cancelled")
	ErrAppointmentPast      = errors.New("appointment is already in the past")
)

// BookingInput is a patient's request for a slot. Pointer fields are required;
// a nil value is reported as a missing field rather than checked.
type BookingInput struct {
	SpecialtyID int64               `json:"specialty_id"`
	DoctorID    int64               `json:"doctor_id" validate:"required,gt=0"`
	Date        *schedule.Date      `json:"date" validate:"required"`
	Time        *schedule.TimeOfDay `json:"time" validate:"required"`
	Reason      string              `json:"reason" validate:"max=250"`
}

type CancelOutcome string

const (
	OutcomeCancelled        CancelOutcome = "cancelled"
	OutcomeAlreadyCancelled CancelOutcome = "already_cancelled"
	OutcomePast             CancelOutcome = "past"
)

type Service struct {
	repo      Repository
	locker    redisclient.Locker
	clock     clock.Clock
	calendar  schedule.Calendar
	validator *Validator
	publisher events.Publisher
	log       *zap.Logger
}

func NewService(repo Repository, locker redisclient.Locker, clk clock.Clock, cal schedule.Calendar, hours BookingHours, log *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		locker:    locker,
		clock:     clk,
		calendar:  cal,
		validator: NewValidator(repo, cal, hours),
		publisher: events.NoopPublisher{},
		log:       log,
	}
}

// WithPublisher broadcasts every recorded appointment event through p.
func (s *Service) WithPublisher(p events.Publisher) *Service {
	if p != nil {
		s.publisher = p
	}
	return s
}

func (s *Service) Calendar() schedule.Calendar {
	return s.calendar
}

func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// PatientIDForUser is the capability check for patient-only operations.
func (s *Service) PatientIDForUser(ctx context.Context, userID int64) (int64, error) {
	id, err := s.repo.GetPatientIDByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotPatient) {
			return 0, err
		}
		return 0, fmt.Errorf("load patient: %w", err)
	}
	return id, nil
}

func (s *Service) ListSpecialties(ctx context.Context) ([]Specialty, error) {
	specs, err := s.repo.ListSpecialties(ctx)
	if err != nil {
		return nil, fmt.Errorf("list specialties: %w", err)
	}
	return specs, nil
}

// ListDoctors returns doctors ordered by name; specialtyID 0 lists all of them.
func (s *Service) ListDoctors(ctx context.Context, specialtyID int64) ([]Doctor, error) {
	docs, err := s.repo.ListDoctors(ctx, specialtyID)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	return docs, nil
}

// validateBooking checks the request against the directory and the conflict
// rules. now is read once by the caller.
func (s *Service) validateBooking(ctx context.Context, in BookingInput, now time.Time, excludeID int64) error {
	errs := &validation.Errors{}
	if err := validation.Struct(in); err != nil {
		ve, ok := validation.As(err)
		if !ok {
			return err
		}
		errs.Fields = append(errs.Fields, ve.Fields...)
	}

	doctorOK := false
	if in.DoctorID > 0 {
		doc, err := s.repo.GetDoctorByID(ctx, in.DoctorID)
		switch {
		case errors.Is(err, ErrDoctorNotFound):
			errs.Add("doctor_id", CodeInvalidChoice, "select a valid doctor")
		case err != nil:
			return fmt.Errorf("load doctor: %w", err)
		case in.SpecialtyID != 0 && doc.SpecialtyID != in.SpecialtyID:
			errs.Add("doctor_id", CodeInvalidChoice, "the doctor does not belong to the selected specialty")
		default:
			doctorOK = true
		}
	}

	if in.Date != nil {
		s.validator.checkDate(*in.Date, now, errs)
	}
	if in.Time != nil {
		s.validator.checkTime(*in.Time, errs)
	}
	if in.Date != nil && in.Time != nil {
		s.validator.checkMoment(*in.Date, *in.Time, now, errs)
		if doctorOK {
			if err := s.validator.checkSlot(ctx, in.DoctorID, *in.Date, *in.Time, excludeID, errs); err != nil {
				return err
			}
		}
	}

	return errs.Err()
}

func slotTakenError() error {
	return validation.Single("time", CodeSlotTaken, "this time is already booked for the selected doctor")
}

// Book validates and stores a new appointment for the patient behind userID.
// The final uniqueness decision belongs to the store: a constraint violation
// is reported as the slot_taken field error.
func (s *Service) Book(ctx context.Context, userID int64, in BookingInput) (*Appointment, error) {
	patientID, err := s.PatientIDForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if err := s.validateBooking(ctx, in, now, 0); err != nil {
		return nil, err
	}

	appt := &Appointment{
		DoctorID:  in.DoctorID,
		PatientID: patientID,
		Date:      *in.Date,
		Time:      *in.Time,
		Reason:    strings.TrimSpace(in.Reason),
		Status:    StatusPending,
	}

	err = s.locker.WithSlotLock(ctx, appt.SlotKey(), func(lockCtx context.Context) error {
		if err := s.recheckSlot(lockCtx, appt, 0); err != nil {
			return err
		}
		if err := s.repo.CreateAppointment(lockCtx, appt); err != nil {
			if errors.Is(err, ErrSlotTaken) {
				return err
			}
			return fmt.Errorf("create appointment: %w", err)
		}

		s.logEvent(lockCtx, appt.ID, EventAppointmentBooked, map[string]any{
			"doctor_id":  appt.DoctorID,
			"patient_id": appt.PatientID,
			"date":       appt.Date.String(),
			"time":       appt.Time.String(),
		})
		return nil
	})
	if err != nil {
		return nil, s.mapWriteError(err)
	}

	s.log.Info("appointment booked",
		zap.Int64("appointment_id", appt.ID),
		zap.Int64("doctor_id", appt.DoctorID),
		zap.String("slot", appt.SlotKey()),
	)
	return appt, nil
}

// Reschedule moves an own, still upcoming appointment to another slot.
func (s *Service) Reschedule(ctx context.Context, userID, appointmentID int64, in BookingInput) (*Appointment, error) {
	patientID, err := s.PatientIDForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	appt, err := s.repo.GetAppointmentForPatient(ctx, appointmentID, patientID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	now := s.clock.Now()
	if appt.Status == StatusCancelled {
		return nil, ErrAppointmentCancelled
	}
	if appt.IsPast(now) {
		return nil, ErrAppointmentPast
	}

	if err := s.validateBooking(ctx, in, now, appt.ID); err != nil {
		return nil, err
	}

	previous := appt.SlotKey()
	appt.DoctorID = in.DoctorID
	appt.Date = *in.Date
	appt.Time = *in.Time
	appt.Reason = strings.TrimSpace(in.Reason)

	err = s.locker.WithSlotLock(ctx, appt.SlotKey(), func(lockCtx context.Context) error {
		if err := s.recheckSlot(lockCtx, appt, appt.ID); err != nil {
			return err
		}
		if err := s.repo.UpdateSchedule(lockCtx, appt); err != nil {
			if errors.Is(err, ErrSlotTaken) || errors.Is(err, ErrAppointmentNotFound) {
				return err
			}
			return fmt.Errorf("update appointment: %w", err)
		}
		s.logEvent(lockCtx, appt.ID, EventAppointmentRescheduled, map[string]any{
			"from": previous,
			"to":   appt.SlotKey(),
		})
		return nil
	})
	if err != nil {
		return nil, s.mapWriteError(err)
	}

	return appt, nil
}

// recheckSlot repeats the conflict check while the slot lock is held, so a
// booking that committed after validation is reported before the write.
func (s *Service) recheckSlot(ctx context.Context, appt *Appointment, excludeID int64) error {
	errs := &validation.Errors{}
	if err := s.validator.checkSlot(ctx, appt.DoctorID, appt.Date, appt.Time, excludeID, errs); err != nil {
		return err
	}
	if errs.Has(CodeSlotTaken) {
		return ErrSlotTaken
	}
	return nil
}

func (s *Service) mapWriteError(err error) error {
	switch {
	case errors.Is(err, ErrSlotTaken):
		return slotTakenError()
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		return ErrSlotBeingBooked
	default:
		return err
	}
}

// CancelByStaff cancels any appointment on behalf of clinic staff.
func (s *Service) CancelByStaff(ctx context.Context, actorUserID, appointmentID int64, reason string) (CancelOutcome, *Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return "", nil, err
		}
		return "", nil, fmt.Errorf("load appointment: %w", err)
	}
	return s.cancel(ctx, appt, actorUserID, reason)
}

// CancelByPatient cancels an appointment owned by the patient behind userID.
// Appointments of other patients are reported as not found.
func (s *Service) CancelByPatient(ctx context.Context, userID, appointmentID int64, reason string) (CancelOutcome, *Appointment, error) {
	patientID, err := s.PatientIDForUser(ctx, userID)
	if err != nil {
		return "", nil, err
	}
	appt, err := s.repo.GetAppointmentForPatient(ctx, appointmentID, patientID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return "", nil, err
		}
		return "", nil, fmt.Errorf("load appointment: %w", err)
	}
	return s.cancel(ctx, appt, userID, reason)
}

func (s *Service) cancel(ctx context.Context, appt *Appointment, actorUserID int64, reason string) (CancelOutcome, *Appointment, error) {
	now := s.clock.Now()

	if !appt.Cancel(actorUserID, reason, now) {
		if appt.Status == StatusCancelled {
			return OutcomeAlreadyCancelled, appt, nil
		}
		return OutcomePast, appt, nil
	}

	changed, err := s.repo.SaveCancellation(ctx, appt)
	if err != nil {
		return "", nil, fmt.Errorf("save cancellation: %w", err)
	}
	if !changed {
		// another request cancelled it first
		return OutcomeAlreadyCancelled, appt, nil
	}

	s.logEvent(ctx, appt.ID, EventAppointmentCancelled, map[string]any{
		"actor_user_id": actorUserID,
		"reason":        appt.CancelReason,
	})
	s.log.Info("appointment cancelled",
		zap.Int64("appointment_id", appt.ID),
		zap.Int64("actor_user_id", actorUserID),
	)
	return OutcomeCancelled, appt, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID int64, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("failed to marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.clock.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error("failed to insert event log",
			zap.String("event", eventType),
			zap.Int64("appointment_id", appointmentID),
			zap.Error(err),
		)
	}

	if err := s.publisher.Publish(ctx, events.Event{
		Type:          eventType,
		AppointmentID: appointmentID,
		Payload:       data,
		OccurredAt:    ev.CreatedAt,
	}); err != nil {
		s.log.Warn("failed to publish event",
			zap.String("event", eventType),
			zap.Int64("appointment_id", appointmentID),
			zap.Error(err),
		)
	}
}
