package appointment

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hackgods/clinic-appointments/internal/schedule"
)

const (
	PanelPageSize       = 20
	dashboardTodayLimit = 5
	dashboardWeekDays   = 7
)

// splitByMoment separates upcoming appointments (not cancelled and not yet
// started) from the history (started or cancelled). Upcoming is ascending,
// history descending.
func splitByMoment(all []AppointmentDetail, now time.Time) (upcoming, history []AppointmentDetail) {
	current := schedule.MomentOf(now)
	upcoming = []AppointmentDetail{}
	history = []AppointmentDetail{}

	for _, a := range all {
		started := a.Date.Before(current.Date) || (a.Date == current.Date && a.Time < current.Time)
		if a.Status == StatusCancelled || started {
			history = append(history, a)
			continue
		}
		upcoming = append(upcoming, a)
	}

	sort.SliceStable(upcoming, func(i, j int) bool { return lessMoment(upcoming[i].Appointment, upcoming[j].Appointment) })
	sort.SliceStable(history, func(i, j int) bool { return lessMoment(history[j].Appointment, history[i].Appointment) })
	return upcoming, history
}

func lessMoment(a, b Appointment) bool {
	if a.Date != b.Date {
		return a.Date.Before(b.Date)
	}
	return a.Time < b.Time
}

// PatientAppointments returns the upcoming and past appointments of a patient.
func (s *Service) PatientAppointments(ctx context.Context, userID int64) (upcoming, history []AppointmentDetail, err error) {
	patientID, err := s.PatientIDForUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	all, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, nil, fmt.Errorf("list patient appointments: %w", err)
	}
	upcoming, history = splitByMoment(all, s.clock.Now())
	return upcoming, history, nil
}

type PatientDashboard struct {
	UpcomingCount int
	Next          *AppointmentDetail
}

func (s *Service) PatientDashboard(ctx context.Context, userID int64) (*PatientDashboard, error) {
	upcoming, _, err := s.PatientAppointments(ctx, userID)
	if err != nil {
		return nil, err
	}
	d := &PatientDashboard{UpcomingCount: len(upcoming)}
	if len(upcoming) > 0 {
		next := upcoming[0]
		d.Next = &next
	}
	return d, nil
}

type StaffDashboard struct {
	Today          int
	Week           int
	CancelledToday int
	TodayList      []AppointmentDetail
}

// StaffDashboard counts today's appointments, the ones from today through the
// next seven days, and today's cancellations.
func (s *Service) StaffDashboard(ctx context.Context) (*StaffDashboard, error) {
	today := schedule.DateOf(s.clock.Now())
	weekEnd := today.AddDays(dashboardWeekDays)

	var (
		d   StaffDashboard
		err error
	)
	if d.Today, err = s.repo.CountAppointments(ctx, CountFilter{From: today, To: today}); err != nil {
		return nil, fmt.Errorf("count today: %w", err)
	}
	if d.Week, err = s.repo.CountAppointments(ctx, CountFilter{From: today, To: weekEnd}); err != nil {
		return nil, fmt.Errorf("count week: %w", err)
	}
	if d.CancelledToday, err = s.repo.CountAppointments(ctx, CountFilter{From: today, To: today, Status: StatusCancelled}); err != nil {
		return nil, fmt.Errorf("count cancelled: %w", err)
	}
	if d.TodayList, err = s.repo.ListByDate(ctx, today, dashboardTodayLimit); err != nil {
		return nil, fmt.Errorf("list today: %w", err)
	}
	return &d, nil
}

type PanelPage struct {
	Items    []AppointmentDetail
	Page     int
	Pages    int
	Total    int
	PageSize int
}

// pageBounds clamps a 1-based page number into [1, pages].
func pageBounds(page, total, size int) (clamped, pages int) {
	pages = (total + size - 1) / size
	if pages < 1 {
		pages = 1
	}
	switch {
	case page < 1:
		page = 1
	case page > pages:
		page = pages
	}
	return page, pages
}

// Panel lists appointments for clinic staff, ordered by date and time.
// Pages out of range are clamped to the nearest valid page.
func (s *Service) Panel(ctx context.Context, f PanelFilter, page int) (*PanelPage, error) {
	f.Query = strings.TrimSpace(f.Query)
	if f.Status != "" && !f.Status.Stored() {
		return &PanelPage{Items: []AppointmentDetail{}, Page: 1, Pages: 1, PageSize: PanelPageSize}, nil
	}

	if page < 1 {
		page = 1
	}
	items, total, err := s.repo.SearchAppointments(ctx, f, PanelPageSize, (page-1)*PanelPageSize)
	if err != nil {
		return nil, fmt.Errorf("search appointments: %w", err)
	}

	clamped, pages := pageBounds(page, total, PanelPageSize)
	if clamped != page {
		items, total, err = s.repo.SearchAppointments(ctx, f, PanelPageSize, (clamped-1)*PanelPageSize)
		if err != nil {
			return nil, fmt.Errorf("search appointments: %w", err)
		}
	}
	if items == nil {
		items = []AppointmentDetail{}
	}

	return &PanelPage{Items: items, Page: clamped, Pages: pages, Total: total, PageSize: PanelPageSize}, nil
}
