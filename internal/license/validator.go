package license

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	apperrors "licensegate/internal/errors"
	"licensegate/internal/infrastructure"
	"licensegate/internal/token"
)

var tracer = otel.Tracer("licensegate/license")

// ValidationResult is the uniform verdict of every validation path.
// Results handed to subscribers are shared and must be treated as read-only.
type ValidationResult struct {
	Valid               bool           `json:"valid"`
	License             *License       `json:"license,omitempty"`
	RemainingDays       *int           `json:"remainingDays"`
	IsOfflineValidation bool           `json:"isOfflineValidation"`
	ValidatedAt         time.Time      `json:"validatedAt"`
	Error               string         `json:"error,omitempty"`
	ErrorCode           apperrors.Code `json:"errorCode,omitempty"`
}

// Err returns the failure as a LicenseError, or nil for a valid result
func (r *ValidationResult) Err() error {
	if r == nil {
		return apperrors.ErrNoLicense
	}
	if r.Valid {
		return nil
	}
	code := r.ErrorCode
	if code == "" {
		code = apperrors.CodeLicenseInvalid
	}
	return apperrors.New(code, r.Error)
}

func successResult(l *License, offline bool, now time.Time) *ValidationResult {
	return &ValidationResult{
		Valid:               true,
		License:             l,
		RemainingDays:       RemainingDays(l.ExpiresAt, now),
		IsOfflineValidation: offline,
		ValidatedAt:         now,
	}
}

func failureResult(err error, offline bool, now time.Time) *ValidationResult {
	res := &ValidationResult{IsOfflineValidation: offline, ValidatedAt: now, Error: err.Error()}
	var le *apperrors.LicenseError
	if errors.As(err, &le) {
		res.ErrorCode = le.Code
		res.Error = le.Message
	} else {
		res.ErrorCode = apperrors.CodeLicenseInvalid
	}
	return res
}

// Options wires a Validator
type Options struct {
	Remote      RemoteClient
	Store       Store
	Tokens      *token.Validator
	Fingerprint string
	Grace       GraceConfig
	Clock       infrastructure.Clock
	Logger      *slog.Logger
	Metrics     *Metrics
}

// Validator owns the cache and the offline state. Concurrent validations of
// one key are collapsed into a single flight and writes are serialized.
type Validator struct {
	remote      RemoteClient
	store       Store
	tokens      *token.Validator
	fingerprint string
	grace       GraceConfig
	clock       infrastructure.Clock
	logger      *slog.Logger
	metrics     *Metrics

	group singleflight.Group

	mu    sync.Mutex
	cache *CachedValidation
	state OfflineState
	key   string

	offline atomic.Bool
	current atomic.Pointer[ValidationResult]

	subsMu      sync.RWMutex
	subscribers []func(*ValidationResult)
}

// NewValidator checks opts and returns an empty validator; call Load to pick
// up persisted records.
func NewValidator(opts Options) (*Validator, error) {
	switch {
	case opts.Remote == nil:
		return nil, errors.New("license validator requires a remote client")
	case opts.Store == nil:
		return nil, errors.New("license validator requires a store")
	case opts.Tokens == nil:
		return nil, errors.New("license validator requires a token validator")
	case opts.Fingerprint == "":
		return nil, errors.New("license validator requires a device fingerprint")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		remote:      opts.Remote,
		store:       opts.Store,
		tokens:      opts.Tokens,
		fingerprint: opts.Fingerprint,
		grace:       opts.Grace,
		clock:       infrastructure.OrSystem(opts.Clock),
		logger:      logger.With(slog.String("component", "license_validator")),
		metrics:     opts.Metrics,
	}, nil
}

// Load reads the persisted cache and offline state. Unreadable or tampered
// records are discarded.
func (v *Validator) Load(ctx context.Context) {
	v.mu.Lock()
	defer v.mu.Unlock()

	cache, err := v.store.LoadCache(ctx)
	if err != nil {
		v.logger.WarnContext(ctx, "discarding unreadable license cache", slog.String("error", err.Error()))
		cache = nil
	}
	state, err := v.store.LoadState(ctx)
	if err != nil {
		v.logger.WarnContext(ctx, "discarding unreadable offline state", slog.String("error", err.Error()))
		state = OfflineState{}
	}

	v.cache = cache
	v.state = state
	v.key = ""
	if cache != nil && cache.License != nil {
		v.key = cache.License.Key
		v.logger.InfoContext(ctx, "license cache loaded",
			slog.String("license_key", MaskKey(v.key)),
			slog.Time("validated_at", cache.ValidatedAt),
			slog.Time("offline_valid_until", cache.OfflineValidUntil))
	}
}

// Validate normalizes keyInput, asks the issuing server and falls back to the
// cache when offline mode is on or the server cannot be reached. A malformed
// key fails with INVALID_LICENSE_KEY before any I/O.
func (v *Validator) Validate(ctx context.Context, keyInput string) *ValidationResult {
	ctx, span := tracer.Start(ctx, "license.Validate")
	defer span.End()

	key, err := ParseKey(keyInput)
	if err != nil {
		res := failureResult(err, false, v.clock.Now())
		v.publish(ctx, res, NormalizeKey(keyInput))
		return res
	}

	out, _, _ := v.group.Do("validate:"+key, func() (interface{}, error) {
		if !v.offline.Load() {
			res, err := v.validateOnline(ctx, key)
			if err == nil {
				v.publish(ctx, res, key)
				return res, nil
			}
			infrastructure.AddSpanEvent(ctx, "license.offline_fallback",
				attribute.String("license.error_code", string(apperrors.CodeOf(err))))
			v.logger.WarnContext(ctx, "online validation unavailable, using offline verdict",
				slog.String("license_key", MaskKey(key)),
				slog.String("error_code", string(apperrors.CodeOf(err))))
		}
		res := v.validateOffline(ctx, key)
		v.publish(ctx, res, key)
		return res, nil
	})
	res := out.(*ValidationResult)
	span.SetAttributes(
		attribute.Bool("license.valid", res.Valid),
		attribute.Bool("license.offline", res.IsOfflineValidation),
		attribute.String("license.error_code", string(res.ErrorCode)))
	return res
}

// ValidateOnline asks the issuing server only. Transient failures are
// returned as errors for the caller to retry; every other outcome, including
// denials, is a result.
func (v *Validator) ValidateOnline(ctx context.Context, keyInput string) (*ValidationResult, error) {
	key, err := ParseKey(keyInput)
	if err != nil {
		res := failureResult(err, false, v.clock.Now())
		v.publish(ctx, res, NormalizeKey(keyInput))
		return res, nil
	}

	out, err, _ := v.group.Do("online:"+key, func() (interface{}, error) {
		res, err := v.validateOnline(ctx, key)
		if err != nil {
			return nil, err
		}
		v.publish(ctx, res, key)
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*ValidationResult), nil
}

// ValidateOffline judges the configured license from the cache alone
func (v *Validator) ValidateOffline(ctx context.Context) *ValidationResult {
	key := v.ConfiguredKey()
	res := v.validateOffline(ctx, key)
	v.publish(ctx, res, key)
	return res
}

// OfflineVerdict judges the configured license from the cache without
// recording an offline check or notifying subscribers. The job queue polls it
// on every dequeue in offline mode.
func (v *Validator) OfflineVerdict(ctx context.Context) *ValidationResult {
	v.mu.Lock()
	defer v.mu.Unlock()
	now := v.clock.Now()
	lic, err := ValidateOffline(v.cache, v.key, v.fingerprint, now)
	if err != nil {
		return failureResult(err, true, now)
	}
	return successResult(lic, true, now)
}

func (v *Validator) validateOnline(ctx context.Context, key string) (*ValidationResult, error) {
	lic, err := v.remote.Lookup(ctx, key, v.fingerprint)
	now := v.clock.Now()
	if err != nil {
		if apperrors.IsRetryable(err) {
			return nil, err
		}
		return failureResult(err, false, now), nil
	}
	if err := v.checkRemote(lic, key, now); err != nil {
		return failureResult(err, false, now), nil
	}
	v.commitOnline(ctx, lic, "", now)
	return successResult(lic, false, now), nil
}

// checkRemote applies the status and device binding rules to a server record
func (v *Validator) checkRemote(lic *License, key string, now time.Time) error {
	if lic == nil || lic.Key != key {
		return apperrors.ErrLicenseNotFound
	}
	if err := CheckStatus(lic, now); err != nil {
		return err
	}
	if lic.HardwareFingerprint != "" && lic.HardwareFingerprint != v.fingerprint {
		return apperrors.ErrFingerprintMismatch
	}
	return nil
}

// commitOnline replaces the cache and ends any grace period. It is the only
// place the cache is written.
func (v *Validator) commitOnline(ctx context.Context, lic *License, tok string, now time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if tok == "" && v.cache != nil && v.cache.License != nil && v.cache.License.Key == lic.Key {
		tok = v.cache.Token
	}
	cache := CreateCachedValidation(lic, v.fingerprint, GracePeriodDays(lic.Type), now)
	cache.Token = tok

	err := v.store.SaveCache(ctx, cache)
	v.metrics.RecordCacheWrite(ctx, err)
	if err != nil {
		v.logger.ErrorContext(ctx, "failed to persist license cache", slog.String("error", err.Error()))
	}
	v.cache = cache
	v.key = lic.Key

	v.state = describe(UpdateLastOnlineValidation(v.state, now), lic)
	if err := v.store.SaveState(ctx, v.state); err != nil {
		v.logger.ErrorContext(ctx, "failed to persist offline state", slog.String("error", err.Error()))
	}
	v.metrics.RecordGraceLevel(ctx, WarningNone)
}

func (v *Validator) validateOffline(ctx context.Context, key string) *ValidationResult {
	v.mu.Lock()
	now := v.clock.Now()

	// The grace window opens at the cached online validation so that it
	// closes together with the cache's offline window.
	state := GoOffline(v.state)
	if state.LastOnlineValidation != nil && v.cache != nil && v.cache.License != nil {
		state = StartGracePeriod(state, v.cache.License.Type, v.cache.ValidatedAt)
	}
	state = RecordOfflineCheck(state, now)
	if v.state.GraceStartedAt == nil && state.GraceStartedAt != nil {
		v.logger.InfoContext(ctx, "offline grace period started",
			slog.String("license_key", MaskKey(key)),
			slog.Int("grace_period_days", state.GracePeriodDays))
	}
	v.state = state
	if err := v.store.SaveState(ctx, state); err != nil {
		v.logger.ErrorContext(ctx, "failed to persist offline state", slog.String("error", err.Error()))
	}

	lic, err := ValidateOffline(v.cache, key, v.fingerprint, now)
	grace := GetGracePeriodStatus(state, v.grace, now)
	v.mu.Unlock()

	v.metrics.RecordGraceLevel(ctx, grace.WarningLevel)
	if err != nil {
		return failureResult(err, true, now)
	}
	return successResult(lic, true, now)
}

// Activate binds key to this device on the issuing server, verifies the
// returned token and caches the activation.
func (v *Validator) Activate(ctx context.Context, keyInput string) *ValidationResult {
	ctx, span := tracer.Start(ctx, "license.Activate")
	defer span.End()

	key, err := ParseKey(keyInput)
	if err != nil {
		res := failureResult(err, false, v.clock.Now())
		v.publish(ctx, res, NormalizeKey(keyInput))
		return res
	}

	out, _, _ := v.group.Do("activate:"+key, func() (interface{}, error) {
		res := v.activate(ctx, key)
		v.publish(ctx, res, key)
		return res, nil
	})
	return out.(*ValidationResult)
}

func (v *Validator) activate(ctx context.Context, key string) *ValidationResult {
	act, err := v.remote.Activate(ctx, key, v.fingerprint)
	now := v.clock.Now()
	if err != nil {
		infrastructure.RecordError(ctx, err)
		return failureResult(err, false, now)
	}

	claims, err := v.tokens.Validate(act.Token, v.fingerprint)
	if err != nil {
		return failureResult(err, false, now)
	}
	if claims.Subject != key {
		return failureResult(apperrors.New(apperrors.CodeLicenseInvalid, "token subject does not match license key"), false, now)
	}
	if err := v.checkRemote(act.License, key, now); err != nil {
		return failureResult(err, false, now)
	}

	v.commitOnline(ctx, act.License, act.Token, now)
	v.logger.InfoContext(ctx, "license activated",
		slog.String("license_key", MaskKey(key)),
		slog.String("license_type", string(act.License.Type)),
		slog.Time("token_expires_at", claims.Expiry()))
	return successResult(act.License, false, now)
}

// Deactivate releases this device's activation on the issuing server and
// forgets the cached license.
func (v *Validator) Deactivate(ctx context.Context) error {
	v.mu.Lock()
	cache := v.cache.Clone()
	v.mu.Unlock()
	if cache == nil || cache.License == nil {
		return apperrors.ErrNoLicenseConfigured
	}

	key := cache.License.Key
	if err := v.remote.Deactivate(ctx, key, v.fingerprint, cache.Token); err != nil {
		return err
	}

	v.mu.Lock()
	v.cache = nil
	v.key = ""
	v.state = OfflineState{}
	if err := v.store.ClearCache(ctx); err != nil {
		v.logger.ErrorContext(ctx, "failed to clear license cache", slog.String("error", err.Error()))
	}
	if err := v.store.SaveState(ctx, v.state); err != nil {
		v.logger.ErrorContext(ctx, "failed to persist offline state", slog.String("error", err.Error()))
	}
	v.mu.Unlock()

	v.logger.InfoContext(ctx, "license deactivated", slog.String("license_key", MaskKey(key)))
	v.publish(ctx, failureResult(apperrors.ErrNoLicenseConfigured, false, v.clock.Now()), key)
	return nil
}

// Current returns the latest result, or nil before the first validation
func (v *Validator) Current() *ValidationResult {
	return v.current.Load()
}

// GraceStatus derives the grace status at the current time
func (v *Validator) GraceStatus() GracePeriodStatus {
	v.mu.Lock()
	state := v.state
	v.mu.Unlock()
	return GetGracePeriodStatus(state, v.grace, v.clock.Now())
}

// OfflineState returns a copy of the offline state
func (v *Validator) OfflineState() OfflineState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// SetOffline forces the offline path for subsequent validations
func (v *Validator) SetOffline(offline bool) {
	if v.offline.Swap(offline) != offline {
		v.logger.Info("offline mode changed", slog.Bool("offline", offline))
	}
}

// IsOffline reports whether offline mode is on
func (v *Validator) IsOffline() bool {
	return v.offline.Load()
}

// ConfiguredKey returns the key of the cached license, if any
func (v *Validator) ConfiguredKey() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.key
}

// Fingerprint returns the device fingerprint licenses are bound to
func (v *Validator) Fingerprint() string {
	return v.fingerprint
}

// TokenNeedsRefresh reports whether the cached activation token is missing,
// unreadable or expires within threshold.
func (v *Validator) TokenNeedsRefresh(threshold time.Duration) bool {
	v.mu.Lock()
	tok := ""
	if v.cache != nil {
		tok = v.cache.Token
	}
	v.mu.Unlock()

	if tok == "" {
		return true
	}
	decoded, err := token.Decode(tok)
	if err != nil {
		return true
	}
	return v.tokens.ShouldRefresh(&decoded.Claims, threshold)
}

// OnResult registers fn to receive every published result
func (v *Validator) OnResult(fn func(*ValidationResult)) {
	v.subsMu.Lock()
	v.subscribers = append(v.subscribers, fn)
	v.subsMu.Unlock()
}

func (v *Validator) publish(ctx context.Context, res *ValidationResult, key string) {
	v.current.Store(res)
	v.metrics.RecordValidation(ctx, res)
	v.logDecision(ctx, res, key)

	v.subsMu.RLock()
	subs := make([]func(*ValidationResult), len(v.subscribers))
	copy(subs, v.subscribers)
	v.subsMu.RUnlock()
	for _, fn := range subs {
		fn(res)
	}
}

func (v *Validator) logDecision(ctx context.Context, res *ValidationResult, key string) {
	path := "online"
	if res.IsOfflineValidation {
		path = "offline"
	}
	attrs := []any{
		slog.String("license_key", MaskKey(key)),
		slog.String("path", path),
	}
	if res.Valid {
		attrs = append(attrs, slog.String("license_type", string(res.License.Type)))
		if res.RemainingDays != nil {
			attrs = append(attrs, slog.Int("remaining_days", *res.RemainingDays))
		}
		v.logger.InfoContext(ctx, "license check passed", attrs...)
		return
	}
	attrs = append(attrs,
		slog.String("error_code", string(res.ErrorCode)),
		slog.String("error", res.Error))
	v.logger.WarnContext(ctx, "license check failed", attrs...)
}

