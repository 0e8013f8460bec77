package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "licensegate/internal/errors"
	"licensegate/internal/infrastructure"
	"licensegate/internal/shared/testutil"
)

func TestRequestID(t *testing.T) {
	var seen, trace string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetReqID(r.Context())
		trace = infrastructure.GetTraceID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", seen)
	assert.Equal(t, "req-123", trace)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
}

func TestStructuredLogger(t *testing.T) {
	logger, logs := testutil.NewTestLogger(t)
	h := RequestID(StructuredLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/jobs/x", nil))
	testutil.AssertLogContains(t, logs, slog.LevelWarn, "request completed")
	assert.True(t, logs.ContainsAttr("status", int64(http.StatusNotFound)))
}

func TestRecoverer(t *testing.T) {
	logger, logs := testutil.NewTestLogger(t)
	h := Recoverer(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal Server Error")
	testutil.AssertLogContains(t, logs, slog.LevelError, "panic recovered")
}

func TestRateLimiter(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	rl := NewRateLimiter(0.001, 2, logger)
	h := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestTracingKeepsRoute(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Tracing)
	r.Get("/api/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/42", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

type sampleRequest struct {
	Name     string `json:"name" validate:"required,max=8"`
	Priority string `json:"priority" validate:"omitempty,oneof=low high"`
}

func TestValidatorBind(t *testing.T) {
	v := NewValidator()

	bind := func(body string) (*sampleRequest, error) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		var dst sampleRequest
		err := v.Bind(httptest.NewRecorder(), req, &dst)
		return &dst, err
	}

	got, err := bind(`{"name":"report","priority":"high"}`)
	require.NoError(t, err)
	assert.Equal(t, "report", got.Name)

	var apiErr *apperrors.APIError
	_, err = bind(`{"priority":"urgent"}`)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "VALIDATION_FAILED", apiErr.ErrorCode)
	details, ok := apiErr.Details.([]apperrors.ValidationError)
	require.True(t, ok)
	require.Len(t, details, 2)
	assert.Equal(t, "name", details[0].Field)
	assert.Equal(t, "name is required", details[0].Message)
	assert.Equal(t, "priority must be one of: low, high", details[1].Message)

	_, err = bind(`{not json`)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "INVALID_REQUEST", apiErr.ErrorCode)

	_, err = bind(``)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "INVALID_REQUEST", apiErr.ErrorCode)
}

func TestQueryHelpers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=20&status=failed&bad=x", nil)

	n, err := QueryInt(req, "limit", 1, 100, 50)
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	n, err = QueryInt(req, "missing", 1, 100, 50)
	require.NoError(t, err)
	assert.Equal(t, 50, n)

	_, err = QueryInt(req, "bad", 1, 100, 50)
	assert.Error(t, err)

	s, err := QueryEnum(req, "status", []string{"pending", "failed"}, "")
	require.NoError(t, err)
	assert.Equal(t, "failed", s)

	_, err = QueryEnum(req, "bad", []string{"pending"}, "")
	var apiErr *apperrors.APIError
	require.ErrorAs(t, err, &apiErr)
	body, _ := json.Marshal(apiErr)
	assert.Contains(t, string(body), "INVALID_PARAMETER")
}
