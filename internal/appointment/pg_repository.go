package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-appointments/internal/db"
	"github.com/hackgods/clinic-appointments/internal/schedule"
)

const slotConstraint = "appointments_doctor_date_time_key"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func dateArg(d schedule.Date) time.Time {
	return d.In(time.UTC)
}

func timeArg(t schedule.TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t.Duration() / time.Microsecond), Valid: true}
}

func fromPgTime(t pgtype.Time) schedule.TimeOfDay {
	return schedule.TimeOfDay(t.Microseconds / int64(time.Second/time.Microsecond))
}

const appointmentColumns = `a.id, a.doctor_id, a.patient_id, a.date, a.time, a.reason, a.status,
	a.created_at, a.cancelled_by, a.cancelled_at, a.cancel_reason`

const detailColumns = appointmentColumns + `,
	d.name, s.id, s.name, trim(u.first_name || ' ' || u.last_name), u.email`

const detailJoins = `
	FROM appointments a
	JOIN doctors d ON d.id = a.doctor_id
	JOIN specialties s ON s.id = d.specialty_id
	JOIN patients p ON p.id = a.patient_id
	JOIN users u ON u.id = p.user_id`

func appointmentDest(a *Appointment, date *time.Time, tod *pgtype.Time) []any {
	return []any{
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		date,
		tod,
		&a.Reason,
		&a.Status,
		&a.CreatedAt,
		&a.CancelledBy,
		&a.CancelledAt,
		&a.CancelReason,
	}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var date time.Time
	var tod pgtype.Time

	if err := row.Scan(appointmentDest(&a, &date, &tod)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Date = schedule.DateOf(date)
	a.Time = fromPgTime(tod)
	return &a, nil
}

func scanDetail(row pgx.Row) (*AppointmentDetail, error) {
	var d AppointmentDetail
	var date time.Time
	var tod pgtype.Time

	dest := appointmentDest(&d.Appointment, &date, &tod)
	dest = append(dest, &d.DoctorName, &d.SpecialtyID, &d.SpecialtyName, &d.PatientName, &d.PatientEmail)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	d.Date = schedule.DateOf(date)
	d.Time = fromPgTime(tod)
	if d.PatientName == "" {
		d.PatientName = d.PatientEmail
	}
	return &d, nil
}

func collectDetails(rows pgx.Rows) ([]AppointmentDetail, error) {
	defer rows.Close()

	result := []AppointmentDetail{}
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Directory

func (r *PgRepository) ListSpecialties(ctx context.Context) ([]Specialty, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM specialties ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []Specialty{}
	for rows.Next() {
		var s Specialty
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (r *PgRepository) ListDoctors(ctx context.Context, specialtyID int64) ([]Doctor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, specialty_id
		FROM doctors
		WHERE $1 = 0 OR specialty_id = $1
		ORDER BY name
	`, specialtyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []Doctor{}
	for rows.Next() {
		var d Doctor
		if err := rows.Scan(&d.ID, &d.Name, &d.SpecialtyID); err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id int64) (*Doctor, error) {
	var d Doctor
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty_id FROM doctors WHERE id = $1
	`, id).Scan(&d.ID, &d.Name, &d.SpecialtyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *PgRepository) GetPatientIDByUserID(ctx context.Context, userID int64) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `SELECT id FROM patients WHERE user_id = $1`, userID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotPatient
		}
		return 0, err
	}
	return id, nil
}

// Availability and conflicts

func (r *PgRepository) BookedTimes(ctx context.Context, doctorID int64, date schedule.Date) ([]schedule.TimeOfDay, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT time FROM appointments
		WHERE doctor_id = $1 AND date = $2
	`, doctorID, dateArg(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []schedule.TimeOfDay
	for rows.Next() {
		var t pgtype.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		result = append(result, fromPgTime(t))
	}
	return result, rows.Err()
}

func (r *PgRepository) SlotTaken(ctx context.Context, doctorID int64, date schedule.Date, t schedule.TimeOfDay, excludeID int64) (bool, error) {
	var taken bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1 AND date = $2 AND time = $3 AND id <> $4
		)
	`, doctorID, dateArg(date), timeArg(t), excludeID).Scan(&taken)
	return taken, err
}

// Creation and updates

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (doctor_id, patient_id, date, time, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING id, created_at
	`, a.DoctorID, a.PatientID, dateArg(a.Date), timeArg(a.Time), a.Reason, a.Status).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, slotConstraint) {
			return ErrSlotTaken
		}
		return err
	}
	return nil
}

func (r *PgRepository) UpdateSchedule(ctx context.Context, a *Appointment) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET doctor_id = $2, date = $3, time = $4, reason = $5
		WHERE id = $1 AND status <> 'cancelled'
	`, a.ID, a.DoctorID, dateArg(a.Date), timeArg(a.Time), a.Reason)
	if err != nil {
		if db.IsUniqueViolation(err, slotConstraint) {
			return ErrSlotTaken
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

// SaveCancellation writes only the cancellation fields. It reports false when the
// row was already cancelled.
func (r *PgRepository) SaveCancellation(ctx context.Context, a *Appointment) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET status = $2, cancelled_by = $3, cancelled_at = $4, cancel_reason = $5
		WHERE id = $1 AND status <> 'cancelled'
	`, a.ID, a.Status, a.CancelledBy, a.CancelledAt, a.CancelReason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id int64) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments a WHERE a.id = $1`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentForPatient(ctx context.Context, id, patientID int64) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.id = $1 AND a.patient_id = $2
	`, id, patientID)
	return scanAppointment(row)
}

// Listings

func (r *PgRepository) ListByPatient(ctx context.Context, patientID int64) ([]AppointmentDetail, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+detailColumns+detailJoins+`
		WHERE a.patient_id = $1
		ORDER BY a.date, a.time
	`, patientID)
	if err != nil {
		return nil, err
	}
	return collectDetails(rows)
}

func (r *PgRepository) ListByDate(ctx context.Context, date schedule.Date, limit int) ([]AppointmentDetail, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+detailColumns+detailJoins+`
		WHERE a.date = $1
		ORDER BY a.time
		LIMIT $2
	`, dateArg(date), limit)
	if err != nil {
		return nil, err
	}
	return collectDetails(rows)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern turns q into an ILIKE pattern matching q literally anywhere.
func containsPattern(q string) string {
	return "%" + likeEscaper.Replace(q) + "%"
}

// panelWhere builds the WHERE clause shared by the panel page and count queries.
func panelWhere(f PanelFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Query != "" {
		args = append(args, containsPattern(f.Query))
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			`(u.first_name ILIKE $%d ESCAPE '\' OR u.last_name ILIKE $%d ESCAPE '\' OR u.email ILIKE $%d ESCAPE '\')`, n, n, n))
	}
	if f.Status != "" {
		add("a.status = $%d", string(f.Status))
	}
	if f.SpecialtyID > 0 {
		add("d.specialty_id = $%d", f.SpecialtyID)
	}
	if f.DoctorID > 0 {
		add("a.doctor_id = $%d", f.DoctorID)
	}
	if f.From != nil {
		add("a.date >= $%d", dateArg(*f.From))
	}
	if f.To != nil {
		add("a.date <= $%d", dateArg(*f.To))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *PgRepository) SearchAppointments(ctx context.Context, f PanelFilter, limit, offset int) ([]AppointmentDetail, int, error) {
	where, args := panelWhere(f)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*)`+detailJoins+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	n := len(args)
	args = append(args, limit, offset)
	rows, err := r.pool.Query(ctx, `SELECT `+detailColumns+detailJoins+where+
		fmt.Sprintf(" ORDER BY a.date, a.time, a.id LIMIT $%d OFFSET $%d", n+1, n+2), args...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectDetails(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *PgRepository) CountAppointments(ctx context.Context, f CountFilter) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM appointments
		WHERE date BETWEEN $1 AND $2
		  AND ($3 = '' OR status = $3)
	`, dateArg(f.From), dateArg(f.To), string(f.Status)).Scan(&n)
	return n, err
}

// Event logging

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointment_events (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
