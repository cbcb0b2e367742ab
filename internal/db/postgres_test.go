package db

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "appointments_doctor_date_time_key"}
	wrapped := fmt.Errorf("insert appointment: %w", dup)

	assert.True(t, IsUniqueViolation(wrapped, "appointments_doctor_date_time_key"))
	assert.True(t, IsUniqueViolation(wrapped, ""))
	assert.False(t, IsUniqueViolation(wrapped, "users_email_key"))

	fk := &pgconn.PgError{Code: "23503", ConstraintName: "appointments_doctor_id_fkey"}
	assert.False(t, IsUniqueViolation(fk, ""))
	assert.False(t, IsUniqueViolation(errors.New("boom"), ""))
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	body, err := fs.ReadFile(migrationFS, "migrations/"+entries[0].Name())
	require.NoError(t, err)
	assert.Contains(t, string(body), "-- +migrate Up")
	assert.Contains(t, string(body), "appointments_doctor_date_time_key UNIQUE (doctor_id, date, time)")
}

func TestMergeStatus(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	migrations := []*migrate.Migration{{Id: "0001_init.sql"}, {Id: "0002_next.sql"}}
	records := []*migrate.MigrationRecord{{Id: "0001_init.sql", AppliedAt: at}}

	got := mergeStatus(migrations, records)
	require.Len(t, got, 2)
	assert.Equal(t, MigrationState{ID: "0001_init.sql", Applied: true, AppliedAt: at}, got[0])
	assert.Equal(t, MigrationState{ID: "0002_next.sql"}, got[1])
}
