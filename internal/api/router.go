package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/careloop/appointment-lifecycle/internal/dispatch"
)

type RouterConfig struct {
	Service *dispatch.Service
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Dispatch trigger endpoints. POST because each call may create
	// notifications or advance appointment state; re-triggering is safe.
	r.Post("/dispatch/reminders", remindersHandler(cfg.Service))
	r.Post("/dispatch/review-prompts", reviewPromptsHandler(cfg.Service))
	r.Post("/dispatch/missed-sweep", missedSweepHandler(cfg.Service))

	return r
}
