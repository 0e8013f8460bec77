package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/render"

	"licensegate/internal/infrastructure"
	"licensegate/pkg/contracts"
	apiv1 "licensegate/pkg/contracts/api/v1"
)

// ClientCounter reports connected event stream clients
type ClientCounter interface {
	ClientCount() int
}

// HealthHandler handles GET /api/health
type HealthHandler struct {
	license LicenseService
	jobs    JobService
	clients ClientCounter
	clock   infrastructure.Clock
	started time.Time
	logger  *slog.Logger
}

// NewHealthHandler creates a health handler; clients may be nil
func NewHealthHandler(license LicenseService, jobs JobService, clients ClientCounter, clock infrastructure.Clock, logger *slog.Logger) *HealthHandler {
	clock = infrastructure.OrSystem(clock)
	return &HealthHandler{
		license: license,
		jobs:    jobs,
		clients: clients,
		clock:   clock,
		started: clock.Now(),
		logger:  logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck reports "healthy" when the license is valid and "degraded"
// otherwise. The process itself is up either way.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	now := h.clock.Now()
	cur := h.license.Current()
	valid := cur != nil && cur.Valid

	components := map[string]string{"license": "invalid", "queue": "ok"}
	if valid {
		components["license"] = "valid"
	}
	if h.jobs != nil {
		s := h.jobs.Stats()
		components["queue"] = "ok (" + strconv.Itoa(s.Pending) + " pending, " + strconv.Itoa(s.Blocked) + " blocked)"
	}
	if h.clients != nil {
		components["websocket"] = strconv.Itoa(h.clients.ClientCount()) + " clients"
	}

	status := "healthy"
	if !valid {
		status = "degraded"
	}
	render.JSON(w, r, apiv1.HealthResponse{
		Status:       status,
		Version:      contracts.Version,
		Uptime:       now.Sub(h.started).Round(time.Second).String(),
		Components:   components,
		LicenseValid: valid,
		OfflineMode:  h.license.IsOffline(),
		Timestamp:    now,
	})
}

// Version handles GET /api/version
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, contracts.GetVersionInfo())
}
