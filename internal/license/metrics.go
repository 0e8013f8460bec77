package license

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics records licensing decisions. A nil *Metrics records nothing.
type Metrics struct {
	validations metric.Int64Counter
	cacheWrites metric.Int64Counter
	graceLevel  metric.Int64Gauge
}

var graceLevelValues = map[WarningLevel]int64{
	WarningNone:     0,
	WarningWarning:  1,
	WarningCritical: 2,
	WarningExpired:  3,
}

// NewMetrics creates the license instruments on meter. A nil meter yields
// no-op instruments.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("licensegate")
	}

	validations, err := meter.Int64Counter(
		"license_validations_total",
		metric.WithDescription("License validations by result and path"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create validations counter: %w", err)
	}

	cacheWrites, err := meter.Int64Counter(
		"license_cache_writes_total",
		metric.WithDescription("Writes of the signed license cache by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache writes counter: %w", err)
	}

	graceLevel, err := meter.Int64Gauge(
		"license_grace_warning_level",
		metric.WithDescription("Offline grace warning level: 0 none, 1 warning, 2 critical, 3 expired"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create grace level gauge: %w", err)
	}

	return &Metrics{validations: validations, cacheWrites: cacheWrites, graceLevel: graceLevel}, nil
}

// RecordValidation counts one validation result
func (m *Metrics) RecordValidation(ctx context.Context, res *ValidationResult) {
	if m == nil || res == nil {
		return
	}
	path := "online"
	if res.IsOfflineValidation {
		path = "offline"
	}
	result := "valid"
	if !res.Valid {
		result = "invalid"
	}
	m.validations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
		attribute.String("path", path),
		attribute.String("error_code", string(res.ErrorCode)),
	))
}

// RecordCacheWrite counts one cache write
func (m *Metrics) RecordCacheWrite(ctx context.Context, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.cacheWrites.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordGraceLevel sets the grace warning level gauge
func (m *Metrics) RecordGraceLevel(ctx context.Context, level WarningLevel) {
	if m == nil {
		return
	}
	m.graceLevel.Record(ctx, graceLevelValues[level])
}
