package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/andeshealth/clinic-scheduling/internal/metrics"
	"github.com/andeshealth/clinic-scheduling/internal/scheduling"
)

type RouterConfig struct {
	Service  *scheduling.Service
	Metrics  *metrics.EngineMetrics
	Registry *prometheus.Registry
	Logger   zerolog.Logger
	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger, cfg.Metrics))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}

	r.Get("/availability/slots", getAvailableSlotsHandler(cfg.Service, cfg.Metrics))

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", createAppointmentHandler(cfg.Service, cfg.Metrics))
		r.Get("/", listAppointmentsHandler(cfg.Service))
		r.Get("/{id}", getAppointmentHandler(cfg.Service))
		r.Patch("/{id}", updateAppointmentHandler(cfg.Service))
		r.Post("/{id}/status", setAppointmentStatusHandler(cfg.Service))
		r.Delete("/{id}", deleteAppointmentHandler(cfg.Service))
	})

	r.Route("/schedules", func(r chi.Router) {
		r.Post("/", createScheduleHandler(cfg.Service))
		r.Get("/", listSchedulesHandler(cfg.Service))
		r.Patch("/{id}", updateScheduleHandler(cfg.Service))
		r.Delete("/{id}", deleteScheduleHandler(cfg.Service))
	})

	r.Route("/exceptions", func(r chi.Router) {
		r.Post("/", createExceptionHandler(cfg.Service))
		r.Get("/", listExceptionsHandler(cfg.Service))
		r.Delete("/{id}", deleteExceptionHandler(cfg.Service))
	})

	r.Route("/attention-types", func(r chi.Router) {
		r.Post("/", createAttentionTypeHandler(cfg.Service))
		r.Get("/", listAttentionTypesHandler(cfg.Service))
		r.Get("/{id}", getAttentionTypeHandler(cfg.Service))
		r.Patch("/{id}", updateAttentionTypeHandler(cfg.Service))
		r.Delete("/{id}", deleteAttentionTypeHandler(cfg.Service))
	})

	return r
}
