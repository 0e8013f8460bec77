package issuer

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "licensegate/internal/errors"
	"licensegate/internal/middleware"
	apiv1 "licensegate/pkg/contracts/api/v1"
)

// Handler exposes the Service over HTTP. Failures are rendered as problem
// details carrying the license error code.
type Handler struct {
	service   *Service
	validator *middleware.Validator
	errors    *apperrors.ErrorHandler
	logger    *slog.Logger
}

// NewHandler creates the issuing server handler
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service:   service,
		validator: middleware.NewValidator(),
		errors:    apperrors.NewErrorHandler(logger, false),
		logger:    logger.With(slog.String("handler", "issuer")),
	}
}

// Routes returns the /v1 routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/licenses/activate", h.Activate)
	r.Post("/licenses/validate", h.Validate)
	r.Post("/licenses/deactivate", h.Deactivate)

	r.Route("/admin/licenses/{key}", func(r chi.Router) {
		r.Post("/suspend", h.Suspend)
		r.Post("/revoke", h.Revoke)
		r.Post("/reinstate", h.Reinstate)
	})
	return r
}

// NewRouter builds the issuing server's full middleware chain
func NewRouter(h *Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing)
	r.Use(middleware.StructuredLogger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})
	r.Mount("/v1", h.Routes())
	return r
}

// Activate handles POST /v1/licenses/activate
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	var req apiv1.ActivateRequest
	if err := h.validator.Bind(w, r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	res, err := h.service.Activate(r.Context(), req.LicenseKey, req.Fingerprint)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, apiv1.ActivateResponse{
		License:   res.License,
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
	})
}

// Validate handles POST /v1/licenses/validate
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var req apiv1.ValidateRequest
	if err := h.validator.Bind(w, r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	resp, err := h.service.Validate(r.Context(), req.LicenseKey, req.Fingerprint, req.Token)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// Deactivate handles POST /v1/licenses/deactivate
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	var req apiv1.DeactivateRequest
	if err := h.validator.Bind(w, r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	if err := h.service.Deactivate(r.Context(), req.LicenseKey, req.Fingerprint, req.Token); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, apiv1.DeactivateResponse{Success: true})
}

// Suspend handles POST /v1/admin/licenses/{key}/suspend
func (h *Handler) Suspend(w http.ResponseWriter, r *http.Request) {
	lic, err := h.service.Suspend(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, lic)
}

// Revoke handles POST /v1/admin/licenses/{key}/revoke
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	lic, err := h.service.Revoke(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, lic)
}

// Reinstate handles POST /v1/admin/licenses/{key}/reinstate
func (h *Handler) Reinstate(w http.ResponseWriter, r *http.Request) {
	lic, err := h.service.Reinstate(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, lic)
}
