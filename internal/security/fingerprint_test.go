package security

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensegate/internal/shared/testutil"
)

type stubProbe struct {
	mac, host, cpu string
	hostErr        error
	calls          atomic.Int32
}

func (p *stubProbe) MACAddress() (string, error) {
	p.calls.Add(1)
	return p.mac, nil
}

func (p *stubProbe) Hostname() (string, error) { return p.host, p.hostErr }
func (p *stubProbe) CPUID() (string, error)    { return p.cpu, nil }

func expectedHash(parts ...string) string {
	joined := ""
	for i, p := range append(parts, runtime.GOOS, runtime.GOARCH) {
		if i > 0 {
			joined += "|"
		}
		joined += p
	}
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}

func newManager(t *testing.T, probe Probe) (*FingerprintManager, *testutil.FakeClock, *testutil.BufferedSlogHandler) {
	t.Helper()
	clock := testutil.NewFakeClock(testutil.Epoch)
	logger, logs := testutil.NewTestLogger(t)
	return NewFingerprintManager(WithProbe(probe), WithClock(clock), WithLogger(logger)), clock, logs
}

func TestGenerateFingerprint(t *testing.T) {
	probe := &stubProbe{mac: "aa:bb:cc:dd:ee:ff", host: "workstation", cpu: "0123456789abcdef"}
	fm, _, _ := newManager(t, probe)

	df, err := fm.GenerateFingerprint()
	require.NoError(t, err)
	assert.Equal(t, expectedHash("aa:bb:cc:dd:ee:ff", "workstation", "0123456789abcdef"), df.Fingerprint)
	assert.Len(t, df.Fingerprint, 64)
	assert.Equal(t, runtime.GOOS, df.OS)
	assert.Equal(t, testutil.Epoch, df.GeneratedAt)

	ok, err := fm.ValidateFingerprint(df.Fingerprint)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = fm.ValidateFingerprint("other")
	assert.False(t, ok)
}

func TestGenerateFingerprintFallbacks(t *testing.T) {
	probe := &stubProbe{mac: "aa:bb:cc:dd:ee:ff", hostErr: errors.New("no hostname"), cpu: "cpu"}
	fm, _, logs := newManager(t, probe)

	df, err := fm.GenerateFingerprint()
	require.NoError(t, err)
	assert.Equal(t, "unknown-host", df.Hostname)
	assert.Equal(t, expectedHash("aa:bb:cc:dd:ee:ff", "unknown-host", "cpu"), df.Fingerprint)
	testutil.AssertLogContains(t, logs, slog.LevelWarn, "fingerprint factor unavailable, using fallback")
}

func TestFingerprintCache(t *testing.T) {
	probe := &stubProbe{mac: "m", host: "h", cpu: "c"}
	fm, clock, _ := newManager(t, probe)

	first := fm.Fingerprint()
	assert.Equal(t, first, fm.Fingerprint())
	assert.EqualValues(t, 1, probe.calls.Load())

	clock.Advance(DefaultCacheDuration + time.Second)
	assert.Equal(t, first, fm.Fingerprint())
	assert.EqualValues(t, 2, probe.calls.Load())

	fm.ClearCache()
	fm.Fingerprint()
	assert.EqualValues(t, 3, probe.calls.Load())
}

func TestFingerprintConcurrentCallers(t *testing.T) {
	fm, _, _ := newManager(t, &stubProbe{mac: "m", host: "h", cpu: "c"})

	var wg sync.WaitGroup
	results := make([]string, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = fm.Fingerprint()
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		assert.Equal(t, results[0], r)
	}
}

func TestSystemProbe(t *testing.T) {
	var p SystemProbe
	cpu, err := p.CPUID()
	require.NoError(t, err)
	assert.Len(t, cpu, 16)

	if host, err := p.Hostname(); err == nil {
		assert.NotEmpty(t, host)
	}
	assert.NotEmpty(t, NewFingerprintManager().Fingerprint())
}
