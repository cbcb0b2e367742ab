package appointment

import (
	"context"
	"errors"

	"github.com/hackgods/clinic-appointments/internal/schedule"
)

var (
	ErrNotPatient          = errors.New("account has no patient record")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	// ErrSlotTaken is returned by writes that hit the (doctor, date, time) unique constraint.
	ErrSlotTaken = errors.New("slot already booked for this doctor")
)

// PanelFilter narrows the staff appointment listing. Zero values mean "any".
type PanelFilter struct {
	Query       string
	Status      Status
	SpecialtyID int64
	DoctorID    int64
	From        *schedule.Date
	To          *schedule.Date
}

// CountFilter selects appointments by date range and optional status.
type CountFilter struct {
	From   schedule.Date
	To     schedule.Date
	Status Status
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	// Directory
	ListSpecialties(ctx context.Context) ([]Specialty, error)
	ListDoctors(ctx context.Context, specialtyID int64) ([]Doctor, error)
	GetDoctorByID(ctx context.Context, id int64) (*Doctor, error)

	// Capability check: returns ErrNotPatient when the account has no patient record.
	GetPatientIDByUserID(ctx context.Context, userID int64) (int64, error)

	// Availability and conflict checks
	BookedTimes(ctx context.Context, doctorID int64, date schedule.Date) ([]schedule.TimeOfDay, error)
	SlotTaken(ctx context.Context, doctorID int64, date schedule.Date, t schedule.TimeOfDay, excludeID int64) (bool, error)

	// Creation and updates
	CreateAppointment(ctx context.Context, a *Appointment) error
	UpdateSchedule(ctx context.Context, a *Appointment) error
	SaveCancellation(ctx context.Context, a *Appointment) (bool, error)

	GetAppointmentByID(ctx context.Context, id int64) (*Appointment, error)
	GetAppointmentForPatient(ctx context.Context, id, patientID int64) (*Appointment, error)

	// Listings
	ListByPatient(ctx context.Context, patientID int64) ([]AppointmentDetail, error)
	ListByDate(ctx context.Context, date schedule.Date, limit int) ([]AppointmentDetail, error)
	SearchAppointments(ctx context.Context, f PanelFilter, limit, offset int) ([]AppointmentDetail, int, error)
	CountAppointments(ctx context.Context, f CountFilter) (int, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
