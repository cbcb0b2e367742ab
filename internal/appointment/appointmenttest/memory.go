// Package appointmenttest provides an in-memory appointment.Repository for tests.
package appointmenttest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/schedule"
)

type patient struct {
	id     int64
	userID int64
	name   string
	email  string
}

type slot struct {
	doctorID int64
	date     schedule.Date
	time     schedule.TimeOfDay
}

// Memory enforces the (doctor, date, time) uniqueness the way the database does.
type Memory struct {
	mu           sync.Mutex
	specialties  map[int64]appointment.Specialty
	doctors      map[int64]appointment.Doctor
	patients     map[int64]patient // by patient id
	appointments map[int64]*appointment.Appointment
	slots        map[slot]int64
	Events       []appointment.EventLog
	nextID       int64
}

func NewMemory() *Memory {
	return &Memory{
		specialties:  map[int64]appointment.Specialty{},
		doctors:      map[int64]appointment.Doctor{},
		patients:     map[int64]patient{},
		appointments: map[int64]*appointment.Appointment{},
		slots:        map[slot]int64{},
	}
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *Memory) AddSpecialty(name string) appointment.Specialty {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := appointment.Specialty{ID: m.id(), Name: name}
	m.specialties[s.ID] = s
	return s
}

func (m *Memory) AddDoctor(name string, specialtyID int64) appointment.Doctor {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := appointment.Doctor{ID: m.id(), Name: name, SpecialtyID: specialtyID}
	m.doctors[d.ID] = d
	return d
}

// AddPatient registers a patient record for userID. A zero patientID is assigned.
func (m *Memory) AddPatient(userID, patientID int64, name, email string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if patientID == 0 {
		patientID = m.id()
	}
	m.patients[patientID] = patient{id: patientID, userID: userID, name: name, email: email}
	return patientID
}

// Put stores an appointment as is, bypassing every rule except uniqueness.
func (m *Memory) Put(a appointment.Appointment) (*appointment.Appointment, error) {
	if err := m.CreateAppointment(context.Background(), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Count returns the number of stored appointments.
func (m *Memory) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.appointments)
}

func (m *Memory) ListSpecialties(_ context.Context) ([]appointment.Specialty, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]appointment.Specialty, 0, len(m.specialties))
	for _, s := range m.specialties {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) ListDoctors(_ context.Context, specialtyID int64) ([]appointment.Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []appointment.Doctor{}
	for _, d := range m.doctors {
		if specialtyID == 0 || d.SpecialtyID == specialtyID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) GetDoctorByID(_ context.Context, id int64) (*appointment.Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, appointment.ErrDoctorNotFound
	}
	return &d, nil
}

func (m *Memory) GetPatientIDByUserID(_ context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.patients {
		if p.userID == userID {
			return p.id, nil
		}
	}
	return 0, appointment.ErrNotPatient
}

func (m *Memory) BookedTimes(_ context.Context, doctorID int64, date schedule.Date) ([]schedule.TimeOfDay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []schedule.TimeOfDay
	for k := range m.slots {
		if k.doctorID == doctorID && k.date == date {
			out = append(out, k.time)
		}
	}
	return out, nil
}

func (m *Memory) SlotTaken(_ context.Context, doctorID int64, date schedule.Date, t schedule.TimeOfDay, excludeID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.slots[slot{doctorID, date, t}]
	return ok && id != excludeID, nil
}

func (m *Memory) CreateAppointment(_ context.Context, a *appointment.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := slot{a.DoctorID, a.Date, a.Time}
	if _, ok := m.slots[key]; ok {
		return appointment.ErrSlotTaken
	}
	a.ID = m.id()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	cp := *a
	m.appointments[a.ID] = &cp
	m.slots[key] = a.ID
	return nil
}

func (m *Memory) UpdateSchedule(_ context.Context, a *appointment.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.appointments[a.ID]
	if !ok || cur.Status == appointment.StatusCancelled {
		return appointment.ErrAppointmentNotFound
	}
	key := slot{a.DoctorID, a.Date, a.Time}
	if holder, ok := m.slots[key]; ok && holder != a.ID {
		return appointment.ErrSlotTaken
	}
	delete(m.slots, slot{cur.DoctorID, cur.Date, cur.Time})
	m.slots[key] = a.ID
	cur.DoctorID, cur.Date, cur.Time, cur.Reason = a.DoctorID, a.Date, a.Time, a.Reason
	return nil
}

func (m *Memory) SaveCancellation(_ context.Context, a *appointment.Appointment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.appointments[a.ID]
	if !ok || cur.Status == appointment.StatusCancelled {
		return false, nil
	}
	cur.Status = a.Status
	cur.CancelledBy = a.CancelledBy
	cur.CancelledAt = a.CancelledAt
	cur.CancelReason = a.CancelReason
	return true, nil
}

func (m *Memory) GetAppointmentByID(_ context.Context, id int64) (*appointment.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *Memory) GetAppointmentForPatient(_ context.Context, id, patientID int64) (*appointment.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok || a.PatientID != patientID {
		return nil, appointment.ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *Memory) detail(a *appointment.Appointment) appointment.AppointmentDetail {
	d := m.doctors[a.DoctorID]
	p := m.patients[a.PatientID]
	name := p.name
	if name == "" {
		name = p.email
	}
	return appointment.AppointmentDetail{
		Appointment:   *a,
		DoctorName:    d.Name,
		SpecialtyID:   d.SpecialtyID,
		SpecialtyName: m.specialties[d.SpecialtyID].Name,
		PatientName:   name,
		PatientEmail:  p.email,
	}
}

func (m *Memory) sorted(keep func(appointment.AppointmentDetail) bool) []appointment.AppointmentDetail {
	out := []appointment.AppointmentDetail{}
	for _, a := range m.appointments {
		d := m.detail(a)
		if keep(d) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Date != b.Date {
			return a.Date.Before(b.Date)
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return a.ID < b.ID
	})
	return out
}

func (m *Memory) ListByPatient(_ context.Context, patientID int64) ([]appointment.AppointmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(d appointment.AppointmentDetail) bool { return d.PatientID == patientID }), nil
}

func (m *Memory) ListByDate(_ context.Context, date schedule.Date, limit int) ([]appointment.AppointmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.sorted(func(d appointment.AppointmentDetail) bool { return d.Date == date })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matches(d appointment.AppointmentDetail, f appointment.PanelFilter, patientFirstLast string) bool {
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(patientFirstLast), q) && !strings.Contains(strings.ToLower(d.PatientEmail), q) {
			return false
		}
	}
	if f.Status != "" && d.Status != f.Status {
		return false
	}
	if f.SpecialtyID > 0 && d.SpecialtyID != f.SpecialtyID {
		return false
	}
	if f.DoctorID > 0 && d.DoctorID != f.DoctorID {
		return false
	}
	if f.From != nil && d.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && d.Date.After(*f.To) {
		return false
	}
	return true
}

func (m *Memory) SearchAppointments(_ context.Context, f appointment.PanelFilter, limit, offset int) ([]appointment.AppointmentDetail, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sorted(func(d appointment.AppointmentDetail) bool {
		return matches(d, f, m.patients[d.PatientID].name)
	})
	total := len(all)
	if offset >= total {
		return []appointment.AppointmentDetail{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *Memory) CountAppointments(_ context.Context, f appointment.CountFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.appointments {
		if a.Date.Before(f.From) || a.Date.After(f.To) {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		n++
	}
	return n, nil
}

func (m *Memory) InsertEvent(_ context.Context, ev appointment.EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, ev)
	return nil
}

var _ appointment.Repository = (*Memory)(nil)
