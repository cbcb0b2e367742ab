package appointment

import (
	"fmt"
	"time"

	"github.com/hackgods/clinic-appointments/internal/schedule"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	// StatusAttended is never stored; see EffectiveStatus.
	StatusAttended Status = "attended"
)

const (
	maxReasonLength       = 250
	maxCancelReasonLength = 200
)

func (s Status) Stored() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

type Specialty struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Doctor struct {
	ID          int64
	Name        string
	SpecialtyID int64
}

type Appointment struct {
	ID           int64
	DoctorID     int64
	PatientID    int64
	Date         schedule.Date
	Time         schedule.TimeOfDay
	Reason       string
	Status       Status
	CreatedAt    time.Time
	CancelledBy  *int64
	CancelledAt  *time.Time
	CancelReason string
}

// SlotKey identifies the (doctor, date, time) triple that must be unique.
func SlotKey(doctorID int64, d schedule.Date, t schedule.TimeOfDay) string {
	return fmt.Sprintf("%d:%s:%s", doctorID, d, t)
}

func (a *Appointment) SlotKey() string {
	return SlotKey(a.DoctorID, a.Date, a.Time)
}

// IsPast reports whether the appointment's moment has been reached at now.
func (a *Appointment) IsPast(now time.Time) bool {
	return schedule.MomentOf(now).Reached(a.Date, a.Time)
}

// EffectiveStatus derives "attended" for any non-cancelled appointment whose
// moment has passed. It is recomputed on every read.
func (a *Appointment) EffectiveStatus(now time.Time) Status {
	if a.Status == StatusCancelled {
		return StatusCancelled
	}
	if a.IsPast(now) {
		return StatusAttended
	}
	return a.Status
}

// Cancel moves the appointment to cancelled. It is a no-op returning false when
// the appointment is already cancelled or already in the past.
func (a *Appointment) Cancel(actorID int64, reason string, now time.Time) bool {
	if a.Status == StatusCancelled || a.IsPast(now) {
		return false
	}
	a.Status = StatusCancelled
	a.CancelledBy = &actorID
	at := now
	a.CancelledAt = &at
	if reason != "" {
		a.CancelReason = truncate(reason, maxCancelReasonLength)
	}
	return true
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// AppointmentDetail is an appointment joined with the names shown in listings.
type AppointmentDetail struct {
	Appointment
	DoctorName    string
	SpecialtyID   int64
	SpecialtyName string
	PatientName   string
	PatientEmail  string
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *int64
	Payload       []byte
	CreatedAt     time.Time
}
