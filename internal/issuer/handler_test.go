package issuer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "licensegate/internal/errors"
	"licensegate/internal/license"
	"licensegate/internal/shared/testutil"
)

func newTestServer(t *testing.T, licenses ...*license.License) (*httptest.Server, *serviceFixture) {
	t.Helper()
	f := newServiceFixture(t, licenses...)
	logger, _ := testutil.NewTestLogger(t)
	srv := httptest.NewServer(NewRouter(NewHandler(f.service, logger), logger))
	t.Cleanup(srv.Close)
	return srv, f
}

func TestHandlerRoundTripWithRemoteClient(t *testing.T) {
	srv, f := newTestServer(t, seeded(license.StatusPending, 1))
	logger, _ := testutil.NewTestLogger(t)
	client := license.NewHTTPClient(srv.URL, time.Second, logger)
	ctx := context.Background()

	// Lookup leaves status checks to the caller.
	lic, err := client.Lookup(ctx, testKey, deviceA)
	require.NoError(t, err)
	assert.Equal(t, license.StatusPending, lic.Status)

	_, err = client.Lookup(ctx, "UNKN-0000-0000-0000", deviceA)
	assert.Equal(t, apperrors.CodeLicenseNotFound, apperrors.CodeOf(err))

	res, err := client.Activate(ctx, testKey, deviceA)
	require.NoError(t, err)
	assert.Equal(t, license.StatusActive, res.License.Status)
	assert.Equal(t, f.clock.Now().Add(testutil.Days(30)), res.ExpiresAt.UTC())
	_, err = f.tokens.Validate(res.Token, deviceA)
	require.NoError(t, err)

	lic, err = client.Lookup(ctx, testKey, deviceA)
	require.NoError(t, err)
	assert.Equal(t, deviceA, lic.HardwareFingerprint)

	// A second device is refused with the code carried in the problem body.
	_, err = client.Activate(ctx, testKey, deviceB)
	assert.Equal(t, apperrors.CodeFingerprintMismatch, apperrors.CodeOf(err))

	require.NoError(t, client.Deactivate(ctx, testKey, deviceA, res.Token))
	stored, err := f.registry.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Zero(t, stored.CurrentActivations)
}

func TestHandlerRefusalsAsProblems(t *testing.T) {
	srv, _ := newTestServer(t, seeded(license.StatusRevoked, 1))

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"revoked", "/v1/licenses/activate", `{"license_key":"` + testKey + `","fingerprint":"` + deviceA + `"}`, http.StatusForbidden, "LICENSE_REVOKED"},
		{"malformed key", "/v1/licenses/activate", `{"license_key":"nope","fingerprint":"x"}`, http.StatusBadRequest, "INVALID_LICENSE_KEY"},
		{"missing fields", "/v1/licenses/activate", `{}`, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"deactivate without token", "/v1/licenses/deactivate", `{"license_key":"` + testKey + `","fingerprint":"x"}`, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"empty body", "/v1/licenses/validate", ``, http.StatusBadRequest, "INVALID_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+tt.path, "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var pd apperrors.ProblemDetails
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&pd))
			assert.Equal(t, tt.wantCode, string(pd.Code()))
			assert.Equal(t, tt.wantStatus, pd.Status)
		})
	}
}

func TestHandlerAdminRoutes(t *testing.T) {
	srv, f := newTestServer(t, seeded(license.StatusActive, 1))

	post := func(path string) *http.Response {
		resp, err := http.Post(srv.URL+path, "application/json", nil)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp := post("/v1/admin/licenses/" + testKey + "/suspend")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var lic license.License
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&lic))
	assert.Equal(t, license.StatusSuspended, lic.Status)

	resp = post("/v1/admin/licenses/" + testKey + "/reinstate")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = post("/v1/admin/licenses/" + testKey + "/revoke")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	stored, err := f.registry.Get(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, license.StatusRevoked, stored.Status)

	resp = post("/v1/admin/licenses/UNKN-0000-0000-0000/revoke")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
