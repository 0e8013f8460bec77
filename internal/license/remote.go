package license

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	apperrors "licensegate/internal/errors"
	"licensegate/internal/infrastructure"
	apiv1 "licensegate/pkg/contracts/api/v1"
)

// ActivationResult is what the issuing server returns on activation
type ActivationResult struct {
	License   *License
	Token     string
	ExpiresAt time.Time
}

// RemoteClient is the issuing server as seen by the validator. Errors are
// LicenseErrors; NETWORK_ERROR and SERVER_ERROR are the transient ones.
type RemoteClient interface {
	Activate(ctx context.Context, key, fingerprint string) (*ActivationResult, error)
	// Lookup returns the server's current record for key. Status checks are
	// left to the caller; a missing license is LICENSE_NOT_FOUND.
	Lookup(ctx context.Context, key, fingerprint string) (*License, error)
	Deactivate(ctx context.Context, key, fingerprint, token string) error
}

const maxResponseBytes = 1 << 20

// HTTPClient talks to the issuing server's /v1/licenses routes
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPClient returns a client whose requests are bounded by timeout
func NewHTTPClient(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  infrastructure.WithComponent(logger, "license_remote"),
	}
}

// Activate binds key to fingerprint and returns a signed token
func (c *HTTPClient) Activate(ctx context.Context, key, fingerprint string) (*ActivationResult, error) {
	var resp apiv1.ActivateResponse
	req := apiv1.ActivateRequest{LicenseKey: key, Fingerprint: fingerprint}
	if err := c.post(ctx, "/v1/licenses/activate", req, &resp); err != nil {
		return nil, err
	}
	if resp.License == nil || resp.Token == "" {
		return nil, apperrors.New(apperrors.CodeServerError, "activation response is incomplete")
	}
	return &ActivationResult{License: resp.License, Token: resp.Token, ExpiresAt: resp.ExpiresAt}, nil
}

// Lookup asks the server for its verdict on key and returns the license record
func (c *HTTPClient) Lookup(ctx context.Context, key, fingerprint string) (*License, error) {
	var resp apiv1.ValidateResponse
	req := apiv1.ValidateRequest{LicenseKey: key, Fingerprint: fingerprint}
	if err := c.post(ctx, "/v1/licenses/validate", req, &resp); err != nil {
		return nil, err
	}
	if resp.License != nil {
		return resp.License, nil
	}
	code := apperrors.Code(resp.ErrorCode)
	if !code.Known() {
		code = apperrors.CodeLicenseNotFound
	}
	return nil, apperrors.New(code, resp.Error)
}

// Deactivate releases the activation held by fingerprint
func (c *HTTPClient) Deactivate(ctx context.Context, key, fingerprint, token string) error {
	var resp apiv1.DeactivateResponse
	req := apiv1.DeactivateRequest{LicenseKey: key, Fingerprint: fingerprint, Token: token}
	if err := c.post(ctx, "/v1/licenses/deactivate", req, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return apperrors.New(apperrors.CodeServerError, "deactivation was not confirmed")
	}
	return nil
}

func (c *HTTPClient) post(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if traceID := infrastructure.GetTraceID(ctx); traceID != "" {
		req.Header.Set("X-Request-ID", traceID)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "license server unreachable",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return apperrors.Wrap(apperrors.CodeNetworkError, "license server unreachable", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return apperrors.Wrap(apperrors.CodeNetworkError, "failed to read license server response", err)
	}

	c.logger.DebugContext(ctx, "license server call",
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return apperrors.Newf(apperrors.CodeServerError, "license server returned %d", resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		return problemError(resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return apperrors.Wrap(apperrors.CodeServerError, "malformed license server response", err)
	}
	return nil
}

// problemError turns a 4xx problem response into a LicenseError
func problemError(status int, data []byte) error {
	var pd apperrors.ProblemDetails
	if err := json.Unmarshal(data, &pd); err != nil {
		return apperrors.Newf(apperrors.CodeServerError, "license server returned %d", status)
	}
	code := pd.Code()
	if !code.Known() {
		if status == http.StatusTooManyRequests {
			code = apperrors.CodeServerError
		} else {
			code = apperrors.CodeLicenseInvalid
		}
	}
	msg := pd.Detail
	if msg == "" {
		msg = pd.Title
	}
	return apperrors.New(code, msg)
}
