package license

import (
	"context"
	"log/slog"
	"time"

	apperrors "licensegate/internal/errors"
	"licensegate/internal/infrastructure"
	"licensegate/internal/retry"
)

// RefresherConfig tunes the periodic revalidation loop
type RefresherConfig struct {
	Interval         time.Duration
	RefreshThreshold time.Duration
	Policy           retry.Policy
	Logger           *slog.Logger
}

// Refresher revalidates the configured license on an interval. Transient
// failures are retried with the policy and then answered from the cache.
type Refresher struct {
	validator *Validator
	cfg       RefresherConfig
	logger    *slog.Logger
	sleep     retry.Sleeper
}

// NewRefresher creates a refresher for v
func NewRefresher(v *Validator, cfg RefresherConfig) *Refresher {
	return &Refresher{
		validator: v,
		cfg:       cfg,
		logger:    infrastructure.WithComponent(cfg.Logger, "license_refresher"),
	}
}

// RefreshOnce runs one revalidation cycle and returns its verdict
func (r *Refresher) RefreshOnce(ctx context.Context) *ValidationResult {
	ctx = infrastructure.EnsureTraceID(ctx)
	key := r.validator.ConfiguredKey()
	if key == "" || r.validator.IsOffline() {
		return r.validator.ValidateOffline(ctx)
	}

	opts := []retry.Option{
		retry.OnRetry(func(attempt int, delay time.Duration, err error) {
			r.logger.WarnContext(ctx, "license revalidation failed, retrying",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("error_code", string(apperrors.CodeOf(err))))
		}),
	}
	if r.sleep != nil {
		opts = append(opts, retry.WithSleeper(r.sleep))
	}

	res, err := retry.DoValue(ctx, r.cfg.Policy, func(ctx context.Context) (*ValidationResult, error) {
		return r.validator.ValidateOnline(ctx, key)
	}, opts...)
	if err != nil {
		r.logger.WarnContext(ctx, "license server unavailable after retries, using cached license",
			slog.String("license_key", MaskKey(key)),
			slog.String("error_code", string(apperrors.CodeOf(err))))
		return r.validator.ValidateOffline(ctx)
	}

	if res.Valid && r.validator.TokenNeedsRefresh(r.cfg.RefreshThreshold) {
		r.logger.InfoContext(ctx, "refreshing activation token", slog.String("license_key", MaskKey(key)))
		refreshed := r.validator.activate(ctx, key)
		if refreshed.Valid {
			r.validator.publish(ctx, refreshed, key)
			return refreshed
		}
		r.logger.WarnContext(ctx, "activation token refresh failed",
			slog.String("license_key", MaskKey(key)),
			slog.String("error_code", string(refreshed.ErrorCode)))
	}
	return res
}

// Run revalidates immediately and then on every interval until ctx is done
func (r *Refresher) Run(ctx context.Context) error {
	interval := r.cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.InfoContext(ctx, "license refresher started", slog.Duration("interval", interval))
	r.RefreshOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "license refresher stopped")
			return nil
		case <-ticker.C:
			r.RefreshOnce(ctx)
		}
	}
}
