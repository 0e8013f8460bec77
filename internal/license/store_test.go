package license

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensegate/internal/shared/testutil"
)

func newTestFileStore(t *testing.T, fingerprint string) (*FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	signer, err := NewCacheSigner(testSecret, fingerprint)
	require.NoError(t, err)
	return NewFileStore(filepath.Join(dir, "license_cache.json"), filepath.Join(dir, "offline_state.json"), signer), dir
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestFileStore(t, testFingerprint)

	c, err := store.LoadCache(ctx)
	require.NoError(t, err)
	assert.Nil(t, c, "missing file means no cache")
	st, err := store.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, OfflineState{}, st)

	cache := CreateCachedValidation(newLicense(testKey, TypeStandard, "batch"), testFingerprint, 7, testutil.Epoch)
	require.NoError(t, store.SaveCache(ctx, cache))
	state := StartGracePeriod(validatedAt(testutil.Epoch), TypeStandard, testutil.Epoch)
	require.NoError(t, store.SaveState(ctx, state))

	loaded, err := store.LoadCache(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, testKey, loaded.License.Key)
	assert.True(t, cache.OfflineValidUntil.Equal(loaded.OfflineValidUntil))

	loadedState, err := store.LoadState(ctx)
	require.NoError(t, err)
	require.NotNil(t, loadedState.GraceStartedAt)
	assert.True(t, state.GraceStartedAt.Equal(*loadedState.GraceStartedAt))
	assert.Equal(t, 7, loadedState.GracePeriodDays)

	require.NoError(t, store.ClearCache(ctx))
	require.NoError(t, store.ClearCache(ctx), "clearing twice is fine")
	c, err = store.LoadCache(ctx)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestFileStoreRejectsEditedFile(t *testing.T) {
	ctx := context.Background()
	store, dir := newTestFileStore(t, testFingerprint)
	require.NoError(t, store.SaveCache(ctx, CreateCachedValidation(newLicense(testKey, TypeTrial), testFingerprint, 3, testutil.Epoch)))

	path := filepath.Join(dir, "license_cache.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"v1","payload":{"license":null},"signature":"00"}`), 0600))
	_, err := store.LoadCache(ctx)
	assert.ErrorIs(t, err, ErrTampered)

	require.NoError(t, os.WriteFile(path, []byte(`{broken`), 0600))
	_, err = store.LoadCache(ctx)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestFileStoreFromOtherDevice(t *testing.T) {
	ctx := context.Background()
	store, dir := newTestFileStore(t, testFingerprint)
	require.NoError(t, store.SaveCache(ctx, CreateCachedValidation(newLicense(testKey, TypeTrial), testFingerprint, 3, testutil.Epoch)))

	signer, err := NewCacheSigner(testSecret, otherDevice)
	require.NoError(t, err)
	copied := NewFileStore(filepath.Join(dir, "license_cache.json"), filepath.Join(dir, "offline_state.json"), signer)
	_, err = copied.LoadCache(ctx)
	assert.ErrorIs(t, err, ErrTampered)
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	store, dir := newTestFileStore(t, testFingerprint)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.SaveState(ctx, OfflineState{OfflineChecks: i}))
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "offline_state.json", entries[0].Name())
}

func TestMemoryStoreCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	cache := CreateCachedValidation(newLicense(testKey, TypeTrial), testFingerprint, 3, testutil.Epoch)
	require.NoError(t, store.SaveCache(ctx, cache))

	cache.License.Key = "changed"
	loaded, err := store.LoadCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, testKey, loaded.License.Key)

	require.NoError(t, store.ClearCache(ctx))
	loaded, err = store.LoadCache(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}
