package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/hackgods/clinic-appointments/internal/db"
	"github.com/hackgods/clinic-appointments/internal/logger"
)

var specialties = []string{
	"Medicina General",
	"Dermatología",
	"Cardiología",
	"Pediatría",
	"Traumatología",
	"Oftalmología",
}

func main() {
	_ = godotenv.Load()

	lg, err := logger.New(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = lg.Sync() }()
	lg.Info("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		lg.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		lg.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	password := envOr("SEED_PASSWORD", "clinic-demo-2024")
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		lg.Fatal("hash seed password", zap.Error(err))
	}

	seedCtx := context.Background()
	specIDs, err := seedSpecialties(seedCtx, pool)
	if err != nil {
		lg.Fatal("seed specialties", zap.Error(err))
	}
	lg.Info("specialties seeded", zap.Int("count", len(specIDs)))

	doctors, err := seedDoctors(seedCtx, pool, specIDs, envInt("SEED_DOCTORS_PER_SPECIALTY", 3))
	if err != nil {
		lg.Fatal("seed doctors", zap.Error(err))
	}
	lg.Info("doctors seeded", zap.Int("count", doctors))

	patients := envInt("SEED_PATIENTS", 200)
	if err := seedPatients(seedCtx, pool, lg, patients, string(hash)); err != nil {
		lg.Fatal("seed patients", zap.Error(err))
	}

	staffEmail := strings.ToLower(envOr("SEED_STAFF_EMAIL", "recepcion@clinica.test"))
	if err := seedStaff(seedCtx, pool, staffEmail, string(hash)); err != nil {
		lg.Fatal("seed staff", zap.Error(err))
	}
	lg.Info("staff account ready", zap.String("email", staffEmail))

	lg.Info("seed complete")
}

func seedSpecialties(ctx context.Context, pool *pgxpool.Pool) ([]int64, error) {
	ids := make([]int64, 0, len(specialties))
	for _, name := range specialties {
		var id int64
		err := pool.QueryRow(ctx, `
			INSERT INTO specialties (name) VALUES ($1)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id
		`, name).Scan(&id)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, specIDs []int64, perSpecialty int) (int, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	count := 0
	for _, specID := range specIDs {
		for i := 0; i < perSpecialty; i++ {
			title := "Dr."
			if gofakeit.Bool() {
				title = "Dra."
			}
			name := title + " " + gofakeit.FirstName() + " " + gofakeit.LastName()

			if _, err := tx.Exec(ctx, `
				INSERT INTO doctors (name, specialty_id) VALUES ($1, $2)
			`, name, specID); err != nil {
				return 0, err
			}
			count++
		}
	}

	return count, tx.Commit(ctx)
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, lg *zap.Logger, count int, passwordHash string) error {
	lg.Info("seeding patients", zap.Int("count", count))

	const batchSize = 100
	genders := []string{"", "M", "F", "O"}

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		batch := &pgx.Batch{}
		for i := offset; i < end; i++ {
			first, last := gofakeit.FirstName(), gofakeit.LastName()
			email := strings.ToLower(first + "." + last + "." + strconv.Itoa(i) + "@example.com")
			birth := gofakeit.DateRange(time.Date(1940, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC))
			phone := gofakeit.Numerify("+56 9 #### ####")

			batch.Queue(`
				WITH u AS (
					INSERT INTO users (email, first_name, last_name, password_hash)
					VALUES ($1, $2, $3, $4)
					ON CONFLICT DO NOTHING
					RETURNING id
				)
				INSERT INTO patients (user_id, birth_date, gender, phone)
				SELECT id, $5, $6, $7 FROM u
			`, email, first, last, passwordHash, birth, genders[gofakeit.Number(0, len(genders)-1)], phone)
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}

		lg.Info("patients seeded", zap.Int("done", end), zap.Int("total", count))
	}

	return nil
}

// seedStaff creates or promotes the reception account holding the panel permission.
func seedStaff(ctx context.Context, pool *pgxpool.Pool, email, passwordHash string) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO users (email, first_name, last_name, password_hash, is_staff, clinic_panel)
		VALUES ($1, 'Recepción', 'Clínica', $2, TRUE, TRUE)
		ON CONFLICT (lower(email)) DO UPDATE SET is_staff = TRUE, clinic_panel = TRUE
	`, email, passwordHash)
	return err
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
