package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/account"
	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/auth"
)

type RouterConfig struct {
	Accounts     *account.Service
	Appointments *appointment.Service
	Tokens       *auth.Issuer
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Logger       *zap.Logger
	Env          string
	Version      string
	CORSOrigins  []string
	RateLimitRPS int // 0 disables the limiter
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	if cfg.RateLimitRPS > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimitRPS, time.Second))
	}
	r.Use(Authenticate(cfg.Tokens))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Public
	r.Post("/auth/register", registerHandler(cfg.Accounts, cfg.Appointments))
	r.Post("/auth/login", loginHandler(cfg.Accounts))
	r.Get("/about", infoHandler(aboutPage))
	r.Get("/cookie-policy", infoHandler(cookiePolicyPage))

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth)

		r.Get("/home", homeHandler(cfg.Appointments))
		r.Get("/profile", getProfileHandler(cfg.Accounts, cfg.Appointments))
		r.Put("/profile", updateProfileHandler(cfg.Accounts, cfg.Appointments))

		// Booking form lookups
		r.Get("/specialties", listSpecialtiesHandler(cfg.Appointments))
		r.Get("/ajax/doctors", doctorsBySpecialtyHandler(cfg.Appointments))
		r.Get("/ajax/times", availableTimesHandler(cfg.Appointments))

		// Patient appointments
		r.Post("/appointments", bookAppointmentHandler(cfg.Appointments))
		r.Put("/appointments/{id}", rescheduleAppointmentHandler(cfg.Appointments))
		r.Post("/appointments/{id}/cancel", cancelOwnAppointmentHandler(cfg.Appointments))
	})

	// Clinic panel
	r.Route("/clinic", func(r chi.Router) {
		r.Use(RequireClinicPanel)

		r.Get("/appointments", clinicPanelHandler(cfg.Appointments))
		r.Post("/appointments/{id}/cancel", staffCancelHandler(cfg.Appointments))
	})

	return r
}
