// Package retry provides an exponential backoff policy and a combinator that
// retries an operation while its error is retryable.
package retry

import (
	"context"
	"math"
	"time"

	"licensegate/internal/config"
	apperrors "licensegate/internal/errors"
)

// Policy defines retry behavior. MaxRetries counts retries after the first
// attempt, so an operation runs at most MaxRetries+1 times.
type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultPolicy returns 3 retries starting at 1s, doubling, capped at 30s
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// FromConfig converts the configuration section into a Policy
func FromConfig(cfg config.RetryConfig) Policy {
	return Policy{
		MaxRetries:   cfg.MaxRetries,
		InitialDelay: cfg.InitialDelay,
		MaxDelay:     cfg.MaxDelay,
		Multiplier:   cfg.Multiplier,
	}
}

// Delay returns the wait before retry number attempt (0-based):
// InitialDelay * Multiplier^attempt, capped at MaxDelay when MaxDelay > 0.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.InitialDelay) * math.Pow(mult, float64(attempt))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// ShouldRetry reports whether another retry is allowed after retries
// retries have already been made.
func (p Policy) ShouldRetry(retries int) bool {
	return retries < p.MaxRetries
}

// Classifier decides whether an error is worth retrying
type Classifier func(error) bool

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// Option configures Do and DoValue
type Option func(*options)

type options struct {
	retryable Classifier
	sleep     Sleeper
	onRetry   func(attempt int, delay time.Duration, err error)
}

// WithClassifier overrides the default classifier, which retries only
// errors carrying a transient license code.
func WithClassifier(c Classifier) Option {
	return func(o *options) { o.retryable = c }
}

// WithSleeper replaces the wall-clock wait between attempts
func WithSleeper(s Sleeper) Option {
	return func(o *options) { o.sleep = s }
}

// OnRetry registers a callback invoked before each wait
func OnRetry(fn func(attempt int, delay time.Duration, err error)) Option {
	return func(o *options) { o.onRetry = fn }
}

// Do runs op until it succeeds, returns a non-retryable error, the policy is
// exhausted, or ctx is done. The last error is returned.
func Do(ctx context.Context, p Policy, op func(context.Context) error, opts ...Option) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, opts...)
	return err
}

// DoValue is Do for operations that return a value
func DoValue[T any](ctx context.Context, p Policy, op func(context.Context) (T, error), opts ...Option) (T, error) {
	o := options{
		retryable: apperrors.IsRetryable,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var zero T
	for retries := 0; ; retries++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if !o.retryable(err) || !p.ShouldRetry(retries) {
			return zero, err
		}

		delay := p.Delay(retries)
		if o.onRetry != nil {
			o.onRetry(retries+1, delay, err)
		}
		if serr := o.sleep(ctx, delay); serr != nil {
			return zero, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
