package license

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "licensegate/internal/errors"
	"licensegate/internal/retry"
	"licensegate/internal/shared/testutil"
)

func newTestRefresher(f *validatorFixture, delays *[]time.Duration) *Refresher {
	r := NewRefresher(f.validator, RefresherConfig{
		Interval:         time.Hour,
		RefreshThreshold: testutil.Days(1),
		Policy:           retry.Policy{MaxRetries: 2, InitialDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2},
	})
	r.sleep = func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	return r
}

func TestRefresherRetriesThenFallsBackOffline(t *testing.T) {
	f := newValidatorFixture(t, testFingerprint, newLicense(testKey, TypeStandard))
	require.True(t, f.validator.Activate(context.Background(), testKey).Valid)
	f.remote.setErr(apperrors.ErrNetwork)

	var delays []time.Duration
	res := newTestRefresher(f, &delays).RefreshOnce(context.Background())

	assert.True(t, res.Valid)
	assert.True(t, res.IsOfflineValidation)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
	lookups, _ := f.remote.calls()
	assert.Equal(t, 3, lookups, "one attempt plus two retries")
}

func TestRefresherDoesNotRetryDenials(t *testing.T) {
	f := newValidatorFixture(t, testFingerprint, newLicense(testKey, TypeStandard))
	require.True(t, f.validator.Activate(context.Background(), testKey).Valid)
	f.remote.setErr(apperrors.ErrLicenseRevoked)

	var delays []time.Duration
	res := newTestRefresher(f, &delays).RefreshOnce(context.Background())

	assert.Equal(t, apperrors.CodeLicenseRevoked, res.ErrorCode)
	assert.Empty(t, delays)
}

func TestRefresherRenewsExpiringToken(t *testing.T) {
	f := newValidatorFixture(t, testFingerprint, newLicense(testKey, TypeStandard))
	require.True(t, f.validator.Activate(context.Background(), testKey).Valid)
	_, activations := f.remote.calls()
	require.Equal(t, 1, activations)

	var delays []time.Duration
	r := newTestRefresher(f, &delays)

	r.RefreshOnce(context.Background())
	_, activations = f.remote.calls()
	assert.Equal(t, 1, activations, "fresh token is kept")

	f.clock.Advance(testutil.Days(29) + time.Hour)
	res := r.RefreshOnce(context.Background())
	assert.True(t, res.Valid)
	_, activations = f.remote.calls()
	assert.Equal(t, 2, activations)
	assert.False(t, f.validator.TokenNeedsRefresh(testutil.Days(1)))
}

func TestRefresherWithoutLicense(t *testing.T) {
	f := newValidatorFixture(t, testFingerprint)
	var delays []time.Duration
	res := newTestRefresher(f, &delays).RefreshOnce(context.Background())
	assert.Equal(t, apperrors.CodeNoLicenseConfigured, res.ErrorCode)
}

func TestRefresherRunStopsOnCancel(t *testing.T) {
	f := newValidatorFixture(t, testFingerprint)
	var delays []time.Duration
	r := newTestRefresher(f, &delays)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return f.validator.Current() != nil }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("refresher did not stop")
	}
}
