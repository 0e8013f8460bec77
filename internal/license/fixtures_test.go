package license

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	apperrors "licensegate/internal/errors"
	"licensegate/internal/infrastructure"
	"licensegate/internal/shared/testutil"
	"licensegate/internal/token"
)

const (
	testKey         = "TEST-1234-ABCD-5678"
	testFingerprint = "fp-device-a"
	otherDevice     = "fp-device-b"
	testIssuer      = "licensegate-issuer"
	testAudience    = "licensegate-desktop"
)

var testSecret = []byte("test-secret-0123456789abcdef")

func newLicense(key string, typ Type, features ...string) *License {
	return &License{
		ID:             "lic-" + key,
		Key:            key,
		Type:           typ,
		Status:         StatusActive,
		MaxActivations: 2,
		Features:       features,
	}
}

// fakeRemote behaves like a minimal issuing server
type fakeRemote struct {
	mu       sync.Mutex
	clock    infrastructure.Clock
	codec    *token.Codec
	licenses map[string]*License
	err      error

	lookups       int
	activations   int
	deactivations int
}

func newFakeRemote(clock infrastructure.Clock, licenses ...*License) *fakeRemote {
	f := &fakeRemote{
		clock:    clock,
		codec:    token.MustNewCodec(testSecret, token.HS256),
		licenses: make(map[string]*License),
	}
	for _, l := range licenses {
		f.licenses[l.Key] = l
	}
	return f
}

func (f *fakeRemote) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeRemote) Activate(ctx context.Context, key, fingerprint string) (*ActivationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activations++
	if f.err != nil {
		return nil, f.err
	}
	lic, ok := f.licenses[key]
	if !ok {
		return nil, apperrors.ErrLicenseNotFound
	}
	now := f.clock.Now()
	check := lic.Clone()
	if check.Status == StatusPending {
		check.Status = StatusActive
	}
	if err := CheckStatus(check, now); err != nil {
		return nil, err
	}
	switch {
	case lic.HardwareFingerprint == fingerprint:
	case lic.HardwareFingerprint != "":
		return nil, apperrors.ErrFingerprintMismatch
	case lic.CurrentActivations >= lic.MaxActivations:
		return nil, apperrors.ErrMaxActivationsReached
	default:
		lic.HardwareFingerprint = fingerprint
		lic.CurrentActivations++
		lic.Status = StatusActive
		lic.ActivatedAt = &now
	}

	exp := now.Add(testutil.Days(30))
	tok, err := f.codec.Encode(token.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   key,
			Audience:  jwt.ClaimStrings{testAudience},
			IssuedAt:  token.NewDate(now),
			NotBefore: token.NewDate(now),
			ExpiresAt: token.NewDate(exp),
			ID:        "jti-" + key,
		},
		LicenseID:          lic.ID,
		LicenseType:        string(lic.Type),
		Fingerprint:        fingerprint,
		Features:           lic.Features,
		MaxActivations:     lic.MaxActivations,
		CurrentActivations: lic.CurrentActivations,
	})
	if err != nil {
		return nil, err
	}
	return &ActivationResult{License: lic.Clone(), Token: tok, ExpiresAt: exp}, nil
}

func (f *fakeRemote) Lookup(ctx context.Context, key, fingerprint string) (*License, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.err != nil {
		return nil, f.err
	}
	lic, ok := f.licenses[key]
	if !ok {
		return nil, apperrors.ErrLicenseNotFound
	}
	return lic.Clone(), nil
}

func (f *fakeRemote) Deactivate(ctx context.Context, key, fingerprint, tok string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivations++
	if f.err != nil {
		return f.err
	}
	lic, ok := f.licenses[key]
	if !ok {
		return apperrors.ErrLicenseNotFound
	}
	if lic.HardwareFingerprint != fingerprint {
		return apperrors.ErrFingerprintMismatch
	}
	lic.HardwareFingerprint = ""
	lic.CurrentActivations--
	return nil
}

func (f *fakeRemote) calls() (lookups, activations int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookups, f.activations
}

type validatorFixture struct {
	validator *Validator
	store     *MemoryStore
	remote    *fakeRemote
	clock     *testutil.FakeClock
	logs      *testutil.BufferedSlogHandler
}

func newValidatorFixture(t *testing.T, fingerprint string, licenses ...*License) *validatorFixture {
	t.Helper()
	clock := testutil.NewFakeClock(time.Time{})
	remote := newFakeRemote(clock, licenses...)
	return newValidatorFixtureWith(t, fingerprint, clock, remote, NewMemoryStore())
}

func newValidatorFixtureWith(t *testing.T, fingerprint string, clock *testutil.FakeClock, remote *fakeRemote, store *MemoryStore) *validatorFixture {
	t.Helper()
	tokens, err := token.NewValidator(token.ValidatorConfig{
		Secret:    testSecret,
		Algorithm: token.HS256,
		Issuer:    testIssuer,
		Audience:  testAudience,
		Clock:     clock,
	})
	require.NoError(t, err)

	logger, logs := testutil.NewTestLogger(t)
	v, err := NewValidator(Options{
		Remote:      remote,
		Store:       store,
		Tokens:      tokens,
		Fingerprint: fingerprint,
		Grace:       GraceConfig{WarningThresholdDays: 3},
		Clock:       clock,
		Logger:      logger,
	})
	require.NoError(t, err)
	v.Load(context.Background())
	return &validatorFixture{validator: v, store: store, remote: remote, clock: clock, logs: logs}
}
