package http

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "licensegate/internal/errors"
	"licensegate/internal/exporter"
	"licensegate/internal/infrastructure"
	"licensegate/internal/middleware"
	"licensegate/internal/operations"
	apiv1 "licensegate/pkg/contracts/api/v1"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

var (
	jobStatuses   = []string{"pending", "processing", "completed", "failed", "blocked"}
	jobPriorities = []string{"low", "normal", "high", "critical"}
)

// JobListResponse is returned by GET /api/jobs
type JobListResponse struct {
	Jobs  []*operations.Job `json:"jobs"`
	Count int               `json:"count"`
	Stats operations.Stats  `json:"stats"`
}

// JobsHandler handles /api/jobs requests
type JobsHandler struct {
	service   JobService
	clock     infrastructure.Clock
	validator *middleware.Validator
	errors    *apperrors.ErrorHandler
	logger    *slog.Logger
}

// NewJobsHandler creates a jobs handler
func NewJobsHandler(service JobService, clock infrastructure.Clock, errs *apperrors.ErrorHandler, logger *slog.Logger) *JobsHandler {
	return &JobsHandler{
		service:   service,
		clock:     infrastructure.OrSystem(clock),
		validator: middleware.NewValidator(),
		errors:    errs,
		logger:    logger.With(slog.String("handler", "jobs")),
	}
}

// Routes returns the /api/jobs routes
func (h *JobsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Enqueue)
	r.Get("/", h.List)
	r.Post("/batch", h.EnqueueBatch)
	r.Get("/stats", h.Stats)
	r.Get("/export", h.Export)
	r.Post("/retry", h.Retry)
	r.Get("/{id}", h.Get)
	return r
}

// Enqueue handles POST /api/jobs
func (h *JobsHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req apiv1.JobEnqueueRequest
	if err := h.validator.Bind(w, r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	job, err := h.service.Enqueue(r.Context(), enqueueRequest(req))
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, job)
}

// EnqueueBatch handles POST /api/jobs/batch. The batch is all or nothing.
func (h *JobsHandler) EnqueueBatch(w http.ResponseWriter, r *http.Request) {
	var req apiv1.JobBatchRequest
	if err := h.validator.Bind(w, r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	reqs := make([]operations.EnqueueRequest, len(req.Jobs))
	for i, j := range req.Jobs {
		reqs[i] = enqueueRequest(j)
	}
	jobs, err := h.service.EnqueueBatch(r.Context(), reqs)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, jobs)
}

// List handles GET /api/jobs
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := h.filter(r)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	jobs := h.service.List(filter)
	render.JSON(w, r, JobListResponse{Jobs: jobs, Count: len(jobs), Stats: h.service.Stats()})
}

// Get handles GET /api/jobs/{id}
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, job)
}

// Stats handles GET /api/jobs/stats
func (h *JobsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Stats())
}

// Retry handles POST /api/jobs/retry
func (h *JobsHandler) Retry(w http.ResponseWriter, r *http.Request) {
	n := h.service.RetryFailedJobs(r.Context())
	render.JSON(w, r, apiv1.RetryResponse{Retried: n})
}

// Export handles GET /api/jobs/export. The list filters apply.
func (h *JobsHandler) Export(w http.ResponseWriter, r *http.Request) {
	format, err := exporter.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.errors.HandleError(w, r, apperrors.NewAPIError(http.StatusBadRequest, "INVALID_PARAMETER", err.Error()))
		return
	}
	filter, err := h.filter(r)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	filter.Limit = 0

	var buf bytes.Buffer
	jobs := h.service.List(filter)
	if err := exporter.Export(&buf, format, jobs); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+format.Filename(h.clock.Now())+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.WarnContext(r.Context(), "export write failed", slog.String("error", err.Error()))
		return
	}
	h.logger.InfoContext(r.Context(), "jobs exported",
		slog.String("format", string(format)),
		slog.Int("count", len(jobs)))
}

func (h *JobsHandler) filter(r *http.Request) (operations.JobFilter, error) {
	status, err := middleware.QueryEnum(r, "status", jobStatuses, "")
	if err != nil {
		return operations.JobFilter{}, err
	}
	priority, err := middleware.QueryEnum(r, "priority", jobPriorities, "")
	if err != nil {
		return operations.JobFilter{}, err
	}
	limit, err := middleware.QueryInt(r, "limit", 1, maxListLimit, defaultListLimit)
	if err != nil {
		return operations.JobFilter{}, err
	}
	return operations.JobFilter{
		Status:   operations.JobStatus(status),
		Type:     r.URL.Query().Get("type"),
		Priority: operations.Priority(priority),
		Limit:    limit,
	}, nil
}

func enqueueRequest(req apiv1.JobEnqueueRequest) operations.EnqueueRequest {
	return operations.EnqueueRequest{
		Type:            req.Type,
		Priority:        operations.Priority(req.Priority),
		RequiredFeature: req.RequiredFeature,
		Payload:         req.Payload,
	}
}
