package operations

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "licensegate/internal/errors"
	"licensegate/internal/license"
	"licensegate/internal/shared/testutil"
	"licensegate/internal/token"
)

const offlineFingerprint = "fp-offline-device"

// unreachableRemote fails every call the way a disconnected device does
type unreachableRemote struct{}

func (unreachableRemote) Activate(context.Context, string, string) (*license.ActivationResult, error) {
	return nil, apperrors.ErrNetwork
}

func (unreachableRemote) Lookup(context.Context, string, string) (*license.License, error) {
	return nil, apperrors.ErrNetwork
}

func (unreachableRemote) Deactivate(context.Context, string, string, string) error {
	return apperrors.ErrNetwork
}

// countingStore counts offline state writes
type countingStore struct {
	*license.MemoryStore
	stateWrites atomic.Int32
}

func (s *countingStore) SaveState(ctx context.Context, st license.OfflineState) error {
	s.stateWrites.Add(1)
	return s.MemoryStore.SaveState(ctx, st)
}

// newCachedValidator returns a validator holding a cached standard license
// validated online at Epoch, with the clock one hour later
func newCachedValidator(t *testing.T, clock *testutil.FakeClock) (*license.Validator, *countingStore) {
	t.Helper()
	ctx := context.Background()
	lic := validSnapshot(license.TypeStandard).License

	store := &countingStore{MemoryStore: license.NewMemoryStore()}
	cache := license.CreateCachedValidation(lic, offlineFingerprint, license.GracePeriodDays(lic.Type), testutil.Epoch)
	require.NoError(t, store.MemoryStore.SaveCache(ctx, cache))
	require.NoError(t, store.MemoryStore.SaveState(ctx,
		license.UpdateLastOnlineValidation(license.OfflineState{}, testutil.Epoch)))

	tokens, err := token.NewValidator(token.ValidatorConfig{
		Secret:    []byte("offline-test-secret-0123456789"),
		Algorithm: token.HS256,
		Issuer:    "licensegate-issuer",
		Audience:  "licensegate-desktop",
		Clock:     clock,
	})
	require.NoError(t, err)

	v, err := license.NewValidator(license.Options{
		Remote:      unreachableRemote{},
		Store:       store,
		Tokens:      tokens,
		Fingerprint: offlineFingerprint,
		Clock:       clock,
		Logger:      discardLogger(),
	})
	require.NoError(t, err)
	v.Load(ctx)
	clock.Set(testutil.Epoch.Add(time.Hour))
	return v, store
}

func TestOfflineModeWorkersWaitForPollInterval(t *testing.T) {
	tests := []struct {
		name    string
		verdict func(*license.Validator) OfflineVerdict
	}{
		{"read-only verdict", func(v *license.Validator) OfflineVerdict { return v.OfflineVerdict }},
		{"publishing verdict", func(v *license.Validator) OfflineVerdict { return v.ValidateOffline }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := testutil.NewFakeClock(testutil.Epoch)
			v, store := newCachedValidator(t, clock)
			writesBefore := store.stateWrites.Load()

			var calls atomic.Int32
			provider := tt.verdict(v)
			proc := func(context.Context, *Job) (interface{}, error) { return "ok", nil }
			q := NewQueue(Config{PollInterval: time.Second}, proc,
				WithClock(clock),
				WithLogger(discardLogger()),
				WithOfflineVerdict(func(ctx context.Context) *license.ValidationResult {
					calls.Add(1)
					return provider(ctx)
				}))
			v.OnResult(q.UpdateLicenseState)
			q.SetOfflineMode(true)

			job, err := q.Enqueue(context.Background(), EnqueueRequest{Type: "report"})
			require.NoError(t, err)

			ctx, cancel := context.WithCancel(context.Background())
			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = q.Run(ctx, 1)
			}()

			require.Eventually(t, func() bool {
				got, err := q.Get(job.ID)
				return err == nil && got.Status == JobStatusCompleted
			}, 2*time.Second, 5*time.Millisecond)
			time.Sleep(300 * time.Millisecond)
			cancel()
			wg.Wait()

			assert.LessOrEqual(t, calls.Load(), int32(10), "workers must idle between polls")
			assert.LessOrEqual(t, store.stateWrites.Load()-writesBefore, int32(10))
		})
	}
}
