package db

import (
	"embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	migrate "github.com/rubenv/sql-migrate"
)

const dialect = "postgres"

//go:embed migrations/*.sql
var migrationFS embed.FS

func migrationSource() migrate.MigrationSource {
	return &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrationFS,
		Root:       "migrations",
	}
}

// MigrateUp applies every pending embedded migration.
func MigrateUp(pool *pgxpool.Pool) (int, error) {
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	n, err := migrate.Exec(sqlDB, dialect, migrationSource(), migrate.Up)
	if err != nil {
		return n, fmt.Errorf("apply migrations: %w", err)
	}
	return n, nil
}

// MigrateDown reverts the last steps migrations. steps <= 0 reverts one.
func MigrateDown(pool *pgxpool.Pool, steps int) (int, error) {
	if steps <= 0 {
		steps = 1
	}
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	n, err := migrate.ExecMax(sqlDB, dialect, migrationSource(), migrate.Down, steps)
	if err != nil {
		return n, fmt.Errorf("revert migrations: %w", err)
	}
	return n, nil
}

type MigrationState struct {
	ID        string
	Applied   bool
	AppliedAt time.Time
}

// MigrationStatus lists the embedded migrations in order and whether each one
// has been applied.
func MigrationStatus(pool *pgxpool.Pool) ([]MigrationState, error) {
	migrations, err := migrationSource().FindMigrations()
	if err != nil {
		return nil, fmt.Errorf("find migrations: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	records, err := migrate.GetMigrationRecords(sqlDB, dialect)
	if err != nil {
		return nil, fmt.Errorf("read migration records: %w", err)
	}
	return mergeStatus(migrations, records), nil
}

func mergeStatus(migrations []*migrate.Migration, records []*migrate.MigrationRecord) []MigrationState {
	applied := make(map[string]time.Time, len(records))
	for _, r := range records {
		applied[r.Id] = r.AppliedAt
	}

	out := make([]MigrationState, 0, len(migrations))
	for _, m := range migrations {
		at, ok := applied[m.Id]
		out = append(out, MigrationState{ID: m.Id, Applied: ok, AppliedAt: at})
	}
	return out
}
