package appointment_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/appointment/appointmenttest"
	"github.com/hackgods/clinic-appointments/internal/clock"
	"github.com/hackgods/clinic-appointments/internal/events"
	redisclient "github.com/hackgods/clinic-appointments/internal/redis"
	"github.com/hackgods/clinic-appointments/internal/schedule"
	"github.com/hackgods/clinic-appointments/internal/validation"
)

var now = time.Date(2024, time.June, 10, 10, 15, 0, 0, time.UTC)

type fixture struct {
	svc       *appointment.Service
	repo      *appointmenttest.Memory
	cardio    appointment.Specialty
	derma     appointment.Specialty
	doctor    appointment.Doctor
	other     appointment.Doctor
	userID    int64
	patientID int64
}

func newFixture(t *testing.T, locker redisclient.Locker) *fixture {
	t.Helper()
	repo := appointmenttest.NewMemory()
	f := &fixture{repo: repo}
	f.cardio = repo.AddSpecialty("Cardiología")
	f.derma = repo.AddSpecialty("Dermatología")
	f.doctor = repo.AddDoctor("Dr. "+gofakeit.LastName(), f.cardio.ID)
	f.other = repo.AddDoctor("Dra. "+gofakeit.LastName(), f.derma.ID)
	f.userID = 500
	f.patientID = repo.AddPatient(f.userID, 0, "Ana Pérez", "ana@example.com")

	f.svc = appointment.NewService(repo, locker, clock.Fixed{At: now}, schedule.DefaultCalendar(),
		appointment.DefaultBookingHours, zap.NewNop())
	return f
}

func date(s string) *schedule.Date {
	d, err := schedule.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return &d
}

func at(s string) *schedule.TimeOfDay {
	t, err := schedule.ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return &t
}

func fieldCodes(t *testing.T, err error) map[string][]string {
	t.Helper()
	ve, ok := validation.As(err)
	require.True(t, ok, "expected validation errors, got %v", err)
	out := map[string][]string{}
	for _, f := range ve.Fields {
		out[f.Field] = append(out[f.Field], f.Code)
	}
	return out
}

type busyLocker struct{}

func (busyLocker) WithSlotLock(context.Context, string, func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

// trackingLocker records whether the slot lock is currently held. before runs
// just ahead of taking the lock.
type trackingLocker struct {
	held   atomic.Bool
	before func()
}

func (l *trackingLocker) WithSlotLock(ctx context.Context, _ string, fn func(context.Context) error) error {
	if l.before != nil {
		l.before()
	}
	l.held.Store(true)
	defer l.held.Store(false)
	return fn(ctx)
}

// lockAwareRepo counts conflict checks made with and without the slot lock.
type lockAwareRepo struct {
	*appointmenttest.Memory
	locker  *trackingLocker
	inside  atomic.Int32
	outside atomic.Int32
	creates atomic.Int32
}

func (r *lockAwareRepo) SlotTaken(ctx context.Context, doctorID int64, d schedule.Date, t schedule.TimeOfDay, excludeID int64) (bool, error) {
	if r.locker.held.Load() {
		r.inside.Add(1)
	} else {
		r.outside.Add(1)
	}
	return r.Memory.SlotTaken(ctx, doctorID, d, t, excludeID)
}

func (r *lockAwareRepo) CreateAppointment(ctx context.Context, a *appointment.Appointment) error {
	r.creates.Add(1)
	return r.Memory.CreateAppointment(ctx, a)
}

func newLockAwareService(f *fixture) (*appointment.Service, *lockAwareRepo, *trackingLocker) {
	locker := &trackingLocker{}
	repo := &lockAwareRepo{Memory: f.repo, locker: locker}
	svc := appointment.NewService(repo, locker, clock.Fixed{At: now}, schedule.DefaultCalendar(),
		appointment.DefaultBookingHours, zap.NewNop())
	return svc, repo, locker
}

func TestBook_ChecksSlotWhileLocked(t *testing.T) {
	f := newFixture(t, redisclient.NoopLocker{})
	svc, repo, _ := newLockAwareService(f)
	ctx := context.Background()

	appt, err := svc.Book(ctx, f.userID, appointment.BookingInput{
		DoctorID: f.doctor.ID, Date: date("2024-06-11"), Time: at("11:00"),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, repo.inside.Load())

	_, err = svc.Reschedule(ctx, f.userID, appt.ID, appointment.BookingInput{
		DoctorID: f.doctor.ID, Date: date("2024-06-11"), Time: at("11:30"),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, repo.inside.Load())
}

func TestBook_SlotTakenAfterValidationIsCaughtUnderLock(t *testing.T) {
	f := newFixture(t, redisclient.NoopLocker{})
	svc, repo, locker := newLockAwareService(f)
	other := f.repo.AddPatient(777, 0, "Bruno Díaz", "bruno@example.com")

	// a competing booking commits between validation and the lock
	locker.before = func() {
		_, err := f.repo.Put(appointment.Appointment{
			DoctorID: f.doctor.ID, PatientID: other,
			Date: *date("2024-06-11"), Time: *at("12:00"), Status: appointment.StatusPending,
		})
		require.NoError(t, err)
	}

	_, err := svc.Book(context.Background(), f.userID, appointment.BookingInput{
		DoctorID: f.doctor.ID, Date: date("2024-06-11"), Time: at("12:00"),
	})
	assert.Equal(t, []string{appointment.CodeSlotTaken}, fieldCodes(t, err)["time"])
	assert.EqualValues(t, 1, repo.outside.Load())
	assert.EqualValues(t, 1, repo.inside.Load())
	assert.Zero(t, repo.creates.Load())
	assert.Equal(t, 1, f.repo.Count())
}

func TestBook_StoresPendingAppointment(t *testing.T) {
	f := newFixture(t, redisclient.NoopLocker{})

	appt, err := f.svc.Book(context.Background(), f.userID, appointment.BookingInput{
		SpecialtyID: f.cardio.ID,
		DoctorID:    f.doctor.ID,
		Date:        date("2024-06-11"),
		Time:        at("10:00"),
		Reason:      "  control  ",
	})
	require.NoError(t, err)

	assert.NotZero(t, appt.ID)
	assert.Equal(t, appointment.StatusPending, appt.Status)
	assert.Equal(t, f.patientID, appt.PatientID)
	assert.Equal(t, "control", appt.Reason)

	require.Len(t, f.repo.Events, 1)
	assert.Equal(t, appointment.EventAppointmentBooked, f.repo.Events[0].EventType)
	assert.JSONEq(t,
		fmt.Sprintf(`{"doctor_id":%d,"patient_id":%d,"date":"2024-06-11","time":"10:00"}`, f.doctor.ID, f.patientID),
		string(f.repo.Events[0].Payload))
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func TestEventsArePublished(t *testing.T) {
	f := newFixture(t, redisclient.NoopLocker{})
	pub := &recordingPublisher{}
	f.svc.WithPublisher(pub)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.userID, appointment.BookingInput{
		DoctorID: f.doctor.ID, Date: date("2024-06-12"), Time: at("15:30"),
	})
	require.NoError(t, err)

	outcome, _, err := f.svc.CancelByPatient(ctx, f.userID, appt.ID, "")
	require.NoError(t, err)
	require.Equal(t, appointment.OutcomeCancelled, outcome)

	require.Len(t, pub.events, 2)
	assert.Equal(t, appointment.EventAppointmentBooked, pub.events[0].Type)
	assert.Equal(t, appt.ID, pub.events[0].AppointmentID)
	assert.Equal(t, now, pub.events[0].OccurredAt)
	assert.Equal(t, appointment.EventAppointmentCancelled, pub.events[1].Type)
}

func TestPublishFailureDoesNotFailBooking(t *testing.T) {
	f := newFixture(t, redisclient.NoopLocker{})
	f.svc.WithPublisher(&recordingPublisher{err: errors.New("broker down")})

	_, err := f.svc.Book(context.Background(), f.userID, appointment.BookingInput{
		DoctorID: f.doctor.ID, Date: date("2024-06-12"), Time: at("16:00"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.repo.Count())
	assert.Len(t, f.repo.Events, 1)
}

func TestBook_RequiresPatientRecord(t *testing.T) {
	f := newFixture(t, redisclient.NoopLocker{})

	_, err := f.svc.Book(context.Background(), 999, appointment.BookingInput{
		DoctorID: f.doctor.ID, Date: date("2024-06-11"), Time: at("10:00"),
	})
	assert.ErrorIs(t, err, appointment.ErrNotPatient)
}

func TestBook_ReportsEveryFieldError(t *testing.T) {
	f := newFixture(t, redisclient.NoopLocker{})
	ctx := context.Background()

	_, err := f.svc.Book(ctx, f.userID, appointment.BookingInput{DoctorID: f.doctor.ID})
	codes := fieldCodes(t, err)
	assert.Equal(t, []string{"required"}, codes["date"])
	assert.Equal(t, []string{"required"}, codes["time"])

	_, err = f.svc.Book(ctx, f.userID, appointment.BookingInput{
		DoctorID: 12345, Date: date("2024-06-15"), Time: at("18:30"),
	})
	codes = fieldCodes(t, err)
	assert.Equal(t, []string{appointment.CodeInvalidChoice}, codes["doctor_id"])
	assert.Equal(t, []string{appointment.CodeNonWorkingDay}, codes["date"])
	assert.Equal(t, []string{appointment.CodeTimeOutOfRange}, codes["time"])

	_, err = f.svc.Book(ctx, f.userID, appointment.BookingInput{
		SpecialtyID: f.derma.ID, DoctorID: f.doctor.ID, Date: date("2024-06-10"), Time: at("10:00"),
	})
	codes = fieldCodes(t, err)
	assert.Equal(t, []string{appointment.CodeInvalidChoice}, codes["doctor_id"])
	assert.Equal(t, []string{appointment.CodeTimeInPast}, codes["time"])

	assert.Zero(t, f.repo.Count())
}

func TestBook_SlotTaken(t *testing.T) {
	f := newFixture(t, redisclient.NoopLocker{})
	ctx := context.Background()
	in := appointment.BookingInput{DoctorID: f.doctor.ID, Date: date("2024-06-11"), Time: at("10:00")}

	_, err := f.svc.Book(ctx, f.userID, in)
	require.NoError(t, err)

	_, err = f.svc.Book(ctx, f.userID, in)
	assert.Equal(t, []string{appointment.CodeSlotTaken}, fieldCodes(t, err)["time"])

	// another doctor at the same time is fine
	in.DoctorID = f.other.ID
	_, err = f.svc.Book(ctx, f.userID, in)
	assert.NoError(t, err)
}

func TestBook_ConcurrentRequestsForOneSlot(t *testing.T) {
	f := newFixture(t, redisclient.NoopLocker{})
	in := appointment.BookingInput{DoctorID: f.doctor.ID, Date: date("2024-06-12"), Time: at("15:30")}

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		taken     int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.Book(context.Background(), f.userID, in)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			if ve, ok := validation.As(err); ok && ve.Has(appointment.CodeSlotTaken) {
				taken++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, taken)
	assert.Equal(t, 1, f.repo.Count())
}

func TestBook_LockHeldElsewhere(t *testing.T) {
	f := newFixture(t, busyLocker{})

	_, err := f.svc.Book(context.Background(), f.userID, appointment.BookingInput{
		DoctorID: f.doctor.ID, Date: date("2024-06-11"), Time: at("10:00"),
	})
	assert.ErrorIs(t, err, appointment.ErrSlotBeingBooked)
	assert.Zero(t, f.repo.Count())
}

func TestAvailableSlots(t *testing.T) {
	f := newFixture(t, redisclient.NoopLocker{})
	ctx := context.Background()

	_, err := f.repo.Put(appointment.Appointment{
		DoctorID: f.doctor.ID, PatientID: f.patientID, Date: *date("2024-06-10"), Time: *at("11:00"), Status: appointment.StatusPending,
	})
	require.NoError(t, err)
	_, err = f.repo.Put(appointment.Appointment{
		DoctorID: f.doctor.ID, PatientID: f.patientID, Date: *date("2024-06-10"), Time: *at("15:00"), Status: appointment.StatusCancelled,
	})
	require.NoError(t, err)

	free, err := f.svc.AvailableSlots(ctx, f.doctor.ID, *date("2024-06-10"))
	require.NoError(t, err)
	var got []string
	for _, s := range free {
		got = append(got, s.String())
	}
	assert.Equal(t, []string{
		"10:30", "11:30", "12:00", "12:30",
		"15:30", "16:00", "16:30", "17:00", "17:30", "18:00", "18:30",
	}, got)

	weekend, err := f.svc.AvailableSlots(ctx, f.doctor.ID, *date("2024-06-16"))
	require.NoError(t, err)
	assert.Empty(t, weekend)

	_, err = f.svc.AvailableSlots(ctx, 9999, *date("2024-06-11"))
	assert.ErrorIs(t, err, appointment.ErrDoctorNotFound)
}

func TestReschedule(t *testing.T) {
	f := newFixture(t, redisclient.NoopLocker{})
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.userID, appointment.BookingInput{
		DoctorID: f.doctor.ID, Date: date("2024-06-11"), Time: at("10:00"),
	})
	require.NoError(t, err)
	blocker, err := f.svc.Book(ctx, f.userID, appointment.BookingInput{
		DoctorID: f.doctor.ID, Date: date("2024-06-11"), Time: at("11:00"),
	})
	require.NoError(t, err)

	// keeping its own slot is not a conflict
	_, err = f.svc.Reschedule(ctx, f.userID, appt.ID, appointment.BookingInput{
		DoctorID: f.doctor.ID, Date: date("2024-06-11"), Time: at("10:00"), Reason: "same",
	})
	require.NoError(t, err)

	_, err = f.svc.Reschedule(ctx, f.userID, appt.ID, appointment.BookingInput{
		DoctorID: f.doctor.ID, Date: date("2024-06-11"), Time: at("11:00"),
	})
	assert.Equal(t, []string{appointment.CodeSlotTaken}, fieldCodes(t, err)["time"])

	moved, err := f.svc.Reschedule(ctx, f.userID, appt.ID, appointment.BookingInput{
		DoctorID: f.doctor.ID, Date: date("2024-06-12"), Time: at("16:00"),
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-06-12", moved.Date.String())

	// the old slot is free again
	free, err := f.svc.AvailableSlots(ctx, f.doctor.ID, *date("2024-06-11"))
	require.NoError(t, err)
	assert.Contains(t, free, *at("10:00"))

	_, err = f.svc.Reschedule(ctx, 777, blocker.ID, appointment.BookingInput{
		DoctorID: f.doctor.ID, Date: date("2024-06-12"), Time: at("17:00"),
	})
	assert.ErrorIs(t, err, appointment.ErrNotPatient)
}

func TestReschedule_RejectsCancelledAndPast(t *testing.T) {
	f := newFixture(t, redisclient.NoopLocker{})
	ctx := context.Background()

	past, err := f.repo.Put(appointment.Appointment{
		DoctorID: f.doctor.ID, PatientID: f.patientID, Date: *date("2024-06-07"), Time: *at("09:00"), Status: appointment.StatusPending,
	})
	require.NoError(t, err)
	cancelled, err := f.repo.Put(appointment.Appointment{
		DoctorID: f.doctor.ID, PatientID: f.patientID, Date: *date("2024-06-14"), Time: *at("09:00"), Status: appointment.StatusCancelled,
	})
	require.NoError(t, err)

	in := appointment.BookingInput{DoctorID: f.doctor.ID, Date: date("2024-06-13"), Time: at("09:00")}
	_, err = f.svc.Reschedule(ctx, f.userID, past.ID, in)
	assert.ErrorIs(t, err, appointment.ErrAppointmentPast)
	_, err = f.svc.Reschedule(ctx, f.userID, cancelled.ID, in)
	assert.ErrorIs(t, err, appointment.ErrAppointmentCancelled)
}

func TestCancel(t *testing.T) {
	f := newFixture(t, redisclient.NoopLocker{})
	ctx := context.Background()

	upcoming, err := f.repo.Put(appointment.Appointment{
		DoctorID: f.doctor.ID, PatientID: f.patientID, Date: *date("2024-06-11"), Time: *at("09:00"), Status: appointment.StatusConfirmed,
	})
	require.NoError(t, err)
	past, err := f.repo.Put(appointment.Appointment{
		DoctorID: f.doctor.ID, PatientID: f.patientID, Date: *date("2024-06-10"), Time: *at("09:30"), Status: appointment.StatusPending,
	})
	require.NoError(t, err)

	const staffUser = 1
	outcome, appt, err := f.svc.CancelByStaff(ctx, staffUser, upcoming.ID, "doctor unavailable")
	require.NoError(t, err)
	assert.Equal(t, appointment.OutcomeCancelled, outcome)
	assert.Equal(t, appointment.StatusCancelled, appt.Status)
	assert.Equal(t, "doctor unavailable", appt.CancelReason)

	outcome, _, err = f.svc.CancelByStaff(ctx, staffUser, upcoming.ID, "again")
	require.NoError(t, err)
	assert.Equal(t, appointment.OutcomeAlreadyCancelled, outcome)

	stored, err := f.repo.GetAppointmentByID(ctx, upcoming.ID)
	require.NoError(t, err)
	assert.Equal(t, "doctor unavailable", stored.CancelReason)

	outcome, _, err = f.svc.CancelByPatient(ctx, f.userID, past.ID, "")
	require.NoError(t, err)
	assert.Equal(t, appointment.OutcomePast, outcome)

	_, _, err = f.svc.CancelByStaff(ctx, staffUser, 4242, "")
	assert.ErrorIs(t, err, appointment.ErrAppointmentNotFound)

	cancelEvents := 0
	for _, ev := range f.repo.Events {
		if ev.EventType == appointment.EventAppointmentCancelled {
			cancelEvents++
		}
	}
	assert.Equal(t, 1, cancelEvents)
}

func TestCancelByPatient_OtherPatientsAppointment(t *testing.T) {
	f := newFixture(t, redisclient.NoopLocker{})
	ctx := context.Background()

	stranger := f.repo.AddPatient(600, 0, "Otro", "otro@example.com")
	theirs, err := f.repo.Put(appointment.Appointment{
		DoctorID: f.doctor.ID, PatientID: stranger, Date: *date("2024-06-11"), Time: *at("09:00"), Status: appointment.StatusPending,
	})
	require.NoError(t, err)

	_, _, err = f.svc.CancelByPatient(ctx, f.userID, theirs.ID, "")
	assert.True(t, errors.Is(err, appointment.ErrAppointmentNotFound))
}

func TestPatientAppointmentsAndDashboards(t *testing.T) {
	f := newFixture(t, redisclient.NoopLocker{})
	ctx := context.Background()

	for _, a := range []appointment.Appointment{
		{DoctorID: f.doctor.ID, Date: *date("2024-06-10"), Time: *at("09:00"), Status: appointment.StatusConfirmed},
		{DoctorID: f.doctor.ID, Date: *date("2024-06-10"), Time: *at("12:00"), Status: appointment.StatusPending},
		{DoctorID: f.other.ID, Date: *date("2024-06-10"), Time: *at("12:00"), Status: appointment.StatusCancelled},
		{DoctorID: f.doctor.ID, Date: *date("2024-06-14"), Time: *at("15:00"), Status: appointment.StatusPending},
		{DoctorID: f.doctor.ID, Date: *date("2024-06-20"), Time: *at("15:00"), Status: appointment.StatusPending},
	} {
		a.PatientID = f.patientID
		_, err := f.repo.Put(a)
		require.NoError(t, err)
	}

	upcoming, history, err := f.svc.PatientAppointments(ctx, f.userID)
	require.NoError(t, err)
	assert.Len(t, upcoming, 3)
	assert.Len(t, history, 2)
	assert.Equal(t, "12:00", upcoming[0].Time.String())
	assert.Equal(t, "Ana Pérez", upcoming[0].PatientName)

	pd, err := f.svc.PatientDashboard(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, 3, pd.UpcomingCount)
	require.NotNil(t, pd.Next)
	assert.Equal(t, "2024-06-10", pd.Next.Date.String())

	sd, err := f.svc.StaffDashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, sd.Today)
	assert.Equal(t, 4, sd.Week)
	assert.Equal(t, 1, sd.CancelledToday)
	assert.Len(t, sd.TodayList, 3)
}

func TestPanel_FiltersAndPaging(t *testing.T) {
	f := newFixture(t, redisclient.NoopLocker{})
	ctx := context.Background()
	other := f.repo.AddPatient(700, 0, "Bruno Díaz", "bruno@example.com")

	d := *date("2024-06-11")
	slot := *at("09:00")
	for i := 0; i < 45; i++ {
		patient := f.patientID
		if i%5 == 0 {
			patient = other
		}
		_, err := f.repo.Put(appointment.Appointment{
			DoctorID: f.doctor.ID, PatientID: patient, Date: d, Time: slot, Status: appointment.StatusPending,
		})
		require.NoError(t, err)
		slot = slot.Add(30 * time.Minute)
		if slot > *at("18:30") {
			slot = *at("09:00")
			d = d.AddDays(1)
		}
	}

	page, err := f.svc.Panel(ctx, appointment.PanelFilter{}, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 3, page.Pages)
	assert.Equal(t, 45, page.Total)
	assert.Len(t, page.Items, 20)

	page, err = f.svc.Panel(ctx, appointment.PanelFilter{}, 99)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Page)
	assert.Len(t, page.Items, 5)

	page, err = f.svc.Panel(ctx, appointment.PanelFilter{Query: "  BRUNO "}, 1)
	require.NoError(t, err)
	assert.Equal(t, 9, page.Total)

	page, err = f.svc.Panel(ctx, appointment.PanelFilter{Status: "bogus"}, 1)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 1, page.Pages)

	from, to := *date("2024-06-12"), *date("2024-06-12")
	page, err = f.svc.Panel(ctx, appointment.PanelFilter{From: &from, To: &to, SpecialtyID: f.cardio.ID}, 1)
	require.NoError(t, err)
	assert.Equal(t, 20, page.Total)

	page, err = f.svc.Panel(ctx, appointment.PanelFilter{DoctorID: f.other.ID}, 1)
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}
