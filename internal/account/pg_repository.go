package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-appointments/internal/db"
	"github.com/hackgods/clinic-appointments/internal/schedule"
)

const emailConstraint = "users_email_key"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const userColumns = `id, email, first_name, last_name, password_hash, is_staff, clinic_panel, created_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.FirstName,
		&u.LastName,
		&u.PasswordHash,
		&u.IsStaff,
		&u.ClinicPanel,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var birth *time.Time
	var gender string

	err := row.Scan(&p.ID, &p.UserID, &birth, &gender, &p.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	if birth != nil {
		d := schedule.DateOf(*birth)
		p.BirthDate = &d
	}
	p.Gender = Gender(gender)
	return &p, nil
}

func (r *PgRepository) GetUserByID(ctx context.Context, id int64) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (r *PgRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	return scanUser(row)
}

func (r *PgRepository) GetPatientByUserID(ctx context.Context, userID int64) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, birth_date, gender, phone
		FROM patients
		WHERE user_id = $1
	`, userID)
	return scanPatient(row)
}

func birthDateArg(d *schedule.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.In(time.UTC)
	return &t
}

func (r *PgRepository) CreateUserWithPatient(ctx context.Context, u *User, p *Patient) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO users (email, first_name, last_name, password_hash, is_staff, clinic_panel, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING id, created_at
	`, u.Email, u.FirstName, u.LastName, u.PasswordHash, u.IsStaff, u.ClinicPanel).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, emailConstraint) {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}

	p.UserID = u.ID
	err = tx.QueryRow(ctx, `
		INSERT INTO patients (user_id, birth_date, gender, phone)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, p.UserID, birthDateArg(p.BirthDate), string(p.Gender), p.Phone).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) UpdateProfile(ctx context.Context, u *User, p *Patient) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE users
		SET email = $2, first_name = $3, last_name = $4
		WHERE id = $1
	`, u.ID, u.Email, u.FirstName, u.LastName)
	if err != nil {
		if db.IsUniqueViolation(err, emailConstraint) {
			return ErrEmailTaken
		}
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	tag, err = tx.Exec(ctx, `UPDATE patients SET phone = $2 WHERE id = $1`, p.ID, p.Phone)
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}

	return tx.Commit(ctx)
}
