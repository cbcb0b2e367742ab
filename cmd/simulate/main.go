package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hackgods/clinic-appointments/internal/auth"
	"github.com/hackgods/clinic-appointments/internal/clock"
	"github.com/hackgods/clinic-appointments/internal/config"
	"github.com/hackgods/clinic-appointments/internal/db"
	"github.com/hackgods/clinic-appointments/internal/logger"
	"github.com/hackgods/clinic-appointments/internal/schedule"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	CancelRatio  float64
	ReadRatio    float64
	PatientLimit int
	DoctorLimit  int
	Days         int     // working days ahead to target
	RPS          float64 // total request rate across workers, 0 = unlimited
	PostgresDSN  string
}

type booked struct {
	id    int64
	token string
}

// DataPool holds the identities and the contended slot space shared by all workers.
type DataPool struct {
	Tokens  []string // one session token per patient
	Doctors []int64
	Dates   []schedule.Date
	Slots   []schedule.TimeOfDay

	mu           sync.Mutex
	appointments []booked
}

func (dp *DataPool) AddAppointment(b booked) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, b)
}

// TakeRandomAppointment removes and returns an appointment booked during the run.
func (dp *DataPool) TakeRandomAppointment(rng *rand.Rand) (booked, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.appointments) == 0 {
		return booked{}, false
	}
	idx := rng.Intn(len(dp.appointments))
	b := dp.appointments[idx]
	dp.appointments[idx] = dp.appointments[len(dp.appointments)-1]
	dp.appointments = dp.appointments[:len(dp.appointments)-1]
	return b, true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Booking      OperationMetrics
	Cancel       OperationMetrics
	Availability OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
	metrics Metrics
}

func main() {
	base, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	lg, err := logger.New(base.Env, base.LogLevel)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	cfg := loadConfig(base)
	if err := validateConfig(cfg); err != nil {
		lg.Fatal("invalid config", zap.Error(err))
	}

	lg.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("booking", cfg.BookingRatio),
		zap.Float64("cancel", cfg.CancelRatio),
		zap.Float64("read", cfg.ReadRatio),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		lg.Fatal("connect postgres", zap.Error(err))
	}
	defer pgPool.Close()

	calendar := schedule.NewCalendar(schedule.StandardWindows, schedule.SlotStep, base.WorkingDays)
	tokens := auth.NewIssuer(base.JWTSecret, cfg.Duration+time.Hour)

	dataPool, err := loadDataPool(ctx, pgPool, cfg, tokens, calendar, clock.NewSystem(base.Location))
	if err != nil {
		lg.Fatal("load data pool", zap.Error(err))
	}

	lg.Info("data pool loaded",
		zap.Int("patients", len(dataPool.Tokens)),
		zap.Int("doctors", len(dataPool.Doctors)),
		zap.Int("dates", len(dataPool.Dates)),
		zap.Int("slots_per_day", len(dataPool.Slots)),
	)

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: newLimiter(cfg.RPS, cfg.Workers),
		log:     lg,
	}

	sim.Run()
	sim.PrintReport()

	dupes, err := countDoubleBookings(context.Background(), pgPool)
	if err != nil {
		lg.Fatal("verify double bookings", zap.Error(err))
	}
	if dupes > 0 {
		lg.Error("double bookings detected", zap.Int("slots", dupes))
		os.Exit(1)
	}
	fmt.Println("No double bookings: every (doctor, date, time) holds at most one appointment.")
}

func loadConfig(base config.Config) SimConfig {
	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:"+base.HTTPPort),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 20),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.6),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 200),
		DoctorLimit:  getInt("SIM_DOCTOR_LIMIT", 3),
		Days:         getInt("SIM_DAYS", 2),
		RPS:          getFloat("SIM_RPS", 0),
		PostgresDSN:  base.PostgresDSN,
	}

	total := cfg.BookingRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Days <= 0 {
		return fmt.Errorf("SIM_DAYS must be > 0")
	}
	if cfg.RPS < 0 {
		return fmt.Errorf("SIM_RPS must be >= 0")
	}
	return nil
}

// newLimiter paces all workers together. The burst lets every worker fire
// once at start.
func newLimiter(rps float64, workers int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(rps), workers)
}

// loadDataPool mints a token per seeded patient and picks the next working
// days. A small doctor and day set keeps contention on each slot high.
func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig, tokens *auth.Issuer, cal schedule.Calendar, clk clock.Clock) (*DataPool, error) {
	dataPool := &DataPool{Slots: schedule.GenerateSlots(cal.Windows, cal.Step)}

	rows, err := pool.Query(ctx, `
		SELECT u.id, u.email FROM users u
		JOIN patients p ON p.user_id = u.id
		ORDER BY u.id
		LIMIT $1
	`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var id auth.Identity
		if err := rows.Scan(&id.UserID, &id.Email); err != nil {
			rows.Close()
			return nil, err
		}
		token, _, err := tokens.Issue(id)
		if err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Tokens = append(dataPool.Tokens, token)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = pool.Query(ctx, `SELECT id FROM doctors ORDER BY id LIMIT $1`, cfg.DoctorLimit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Doctors = append(dataPool.Doctors, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	day := schedule.DateOf(clk.Now()).AddDays(1)
	for len(dataPool.Dates) < cfg.Days {
		if cal.IsWorkingDay(day) {
			dataPool.Dates = append(dataPool.Dates, day)
		}
		day = day.AddDays(1)
	}

	if len(dataPool.Tokens) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	if len(dataPool.Doctors) == 0 {
		return nil, fmt.Errorf("no doctors loaded")
	}
	if len(dataPool.Slots) == 0 {
		return nil, fmt.Errorf("calendar produces no slots")
	}

	return dataPool, nil
}

func countDoubleBookings(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT 1 FROM appointments
			GROUP BY doctor_id, date, time
			HAVING count(*) > 1
		) d
	`).Scan(&n)
	return n, err
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.CancelRatio:
				s.doCancel(ctx, rng)
			default:
				s.doAvailability(ctx, rng)
			}
		}
	}
}

func (s *Simulator) send(ctx context.Context, method, path, token string, body any) (*http.Response, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, nil, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	return resp, data, err
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	p := s.pool
	token := p.Tokens[rng.Intn(len(p.Tokens))]
	reqBody := map[string]any{
		"doctor_id": p.Doctors[rng.Intn(len(p.Doctors))],
		"date":      p.Dates[rng.Intn(len(p.Dates))].String(),
		"time":      p.Slots[rng.Intn(len(p.Slots))].String(),
	}

	start := time.Now()
	resp, data, err := s.send(ctx, http.MethodPost, "/appointments", token, reqBody)
	latency := time.Since(start)

	success, conflict := false, false
	if err == nil {
		switch resp.StatusCode {
		case http.StatusCreated:
			success = true
			var created struct {
				ID int64 `json:"id"`
			}
			if json.Unmarshal(data, &created) == nil && created.ID > 0 {
				p.AddAppointment(booked{id: created.ID, token: token})
			}
		case http.StatusConflict, http.StatusUnprocessableEntity:
			// slot_taken, slot_being_booked or an 18:30 request outside booking hours
			conflict = true
		}
	}

	s.metrics.Booking.Record(latency, success, conflict)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.TakeRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	resp, _, err := s.send(ctx, http.MethodPost, fmt.Sprintf("/appointments/%d/cancel", b.id), b.token,
		map[string]string{"reason": "simulated cancellation"})
	latency := time.Since(start)

	success := err == nil && resp.StatusCode == http.StatusOK
	s.metrics.Cancel.Record(latency, success, false)
}

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	p := s.pool
	path := fmt.Sprintf("/ajax/times?doctor=%d&date=%s",
		p.Doctors[rng.Intn(len(p.Doctors))], p.Dates[rng.Intn(len(p.Dates))])

	token := p.Tokens[rng.Intn(len(p.Tokens))]

	start := time.Now()
	resp, _, err := s.send(ctx, http.MethodGet, path, token, nil)
	latency := time.Since(start)

	success := err == nil && resp.StatusCode == http.StatusOK
	s.metrics.Availability.Record(latency, success, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Contended slots: %d doctors x %d days x %d times\n",
		len(s.pool.Doctors), len(s.pool.Dates), len(s.pool.Slots))
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Availability", &s.metrics.Availability)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
