package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	apperrors "licensegate/internal/errors"
	"licensegate/internal/infrastructure"
	"licensegate/internal/middleware"
)

// RouterConfig collects the collaborators of the local API
type RouterConfig struct {
	License   LicenseService
	Jobs      JobService
	Clock     infrastructure.Clock
	Logger    *slog.Logger
	RateLimit *middleware.RateLimiter
	// Events serves GET /ws when set
	Events http.Handler
	// Clients feeds the websocket component of the health report
	Clients ClientCounter
	// Metrics serves GET /metrics when set
	Metrics        http.Handler
	RequestTimeout time.Duration
	IncludeStack   bool
}

// NewRouter builds the local API
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	errs := apperrors.NewErrorHandler(logger, cfg.IncludeStack)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing)
	r.Use(middleware.StructuredLogger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.SecurityHeaders)
	r.NotFound(errs.NotFound)
	r.MethodNotAllowed(errs.MethodNotAllowed)

	if cfg.Events != nil {
		r.Handle("/ws", cfg.Events)
	}
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		if cfg.RateLimit != nil {
			r.Use(cfg.RateLimit.Handler)
		}
		if cfg.RequestTimeout > 0 {
			r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
		}
		r.Use(render.SetContentType(render.ContentTypeJSON))

		health := NewHealthHandler(cfg.License, cfg.Jobs, cfg.Clients, cfg.Clock, logger)
		r.Get("/health", health.HealthCheck)
		r.Get("/version", health.Version)
		r.Mount("/license", NewLicenseHandler(cfg.License, cfg.Jobs, errs, logger).Routes())
		r.Mount("/jobs", NewJobsHandler(cfg.Jobs, cfg.Clock, errs, logger).Routes())
	})
	return r
}
