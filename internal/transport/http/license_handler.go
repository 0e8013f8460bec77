package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "licensegate/internal/errors"
	"licensegate/internal/license"
	"licensegate/internal/middleware"
	apiv1 "licensegate/pkg/contracts/api/v1"
)

// LicenseHandler handles /api/license requests
type LicenseHandler struct {
	service   LicenseService
	jobs      JobService
	validator *middleware.Validator
	errors    *apperrors.ErrorHandler
	logger    *slog.Logger
}

// NewLicenseHandler creates a license handler. Offline mode changes are
// mirrored to jobs when it is not nil.
func NewLicenseHandler(service LicenseService, jobs JobService, errs *apperrors.ErrorHandler, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		service:   service,
		jobs:      jobs,
		validator: middleware.NewValidator(),
		errors:    errs,
		logger:    logger.With(slog.String("handler", "license")),
	}
}

// Routes returns the /api/license routes
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/status", h.GetStatus)
	r.Post("/validate", h.Validate)
	r.Post("/activate", h.Activate)
	r.Post("/deactivate", h.Deactivate)
	r.Put("/offline", h.SetOffline)
	return r
}

// GetStatus handles GET /api/license/status
func (h *LicenseHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	key := h.service.ConfiguredKey()
	resp := apiv1.LicenseStatusResponse{
		Configured:  key != "",
		OfflineMode: h.service.IsOffline(),
		Grace:       graceResponse(h.service.GraceStatus()),
	}
	if key != "" {
		resp.MaskedKey = license.MaskKey(key)
	}
	if cur := h.service.Current(); cur != nil {
		resp.Validation = validationResponse(cur)
	}
	render.JSON(w, r, resp)
}

// Validate handles POST /api/license/validate. The verdict is the response
// body whether or not the license is valid; an empty key re-validates the
// configured license.
func (h *LicenseHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req apiv1.LicenseValidateRequest
	if r.ContentLength != 0 {
		if err := h.validator.Bind(w, r, &req); err != nil {
			h.errors.HandleError(w, r, err)
			return
		}
	}
	key := req.LicenseKey
	if key == "" {
		key = h.service.ConfiguredKey()
	}
	if key == "" {
		h.errors.HandleError(w, r, apperrors.ErrNoLicenseConfigured)
		return
	}
	render.JSON(w, r, validationResponse(h.service.Validate(r.Context(), key)))
}

// Activate handles POST /api/license/activate
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req apiv1.LicenseActivateRequest
	if err := h.validator.Bind(w, r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	res := h.service.Activate(r.Context(), req.LicenseKey)
	if err := res.Err(); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, validationResponse(res))
}

// Deactivate handles POST /api/license/deactivate
func (h *LicenseHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Deactivate(r.Context()); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, apiv1.DeactivateResponse{Success: true})
}

// SetOffline handles PUT /api/license/offline
func (h *LicenseHandler) SetOffline(w http.ResponseWriter, r *http.Request) {
	var req apiv1.OfflineModeRequest
	if err := h.validator.Bind(w, r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	offline := *req.Offline
	h.service.SetOffline(offline)
	if h.jobs != nil {
		h.jobs.SetOfflineMode(offline)
	}
	h.logger.InfoContext(r.Context(), "offline mode set", slog.Bool("offline", offline))
	h.GetStatus(w, r)
}

func validationResponse(res *license.ValidationResult) *apiv1.ValidationResponse {
	return &apiv1.ValidationResponse{
		Valid:               res.Valid,
		License:             res.License,
		RemainingDays:       res.RemainingDays,
		IsOfflineValidation: res.IsOfflineValidation,
		ValidatedAt:         res.ValidatedAt,
		Error:               res.Error,
		ErrorCode:           string(res.ErrorCode),
	}
}

func graceResponse(g license.GracePeriodStatus) apiv1.GraceResponse {
	return apiv1.GraceResponse{
		IsValid:       g.IsValid,
		InGracePeriod: g.InGracePeriod,
		WarningLevel:  string(g.WarningLevel),
		RemainingDays: g.RemainingDays,
		GraceEndsAt:   g.GraceEndsAt,
		Message:       g.Message,
	}
}
