package license

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"licensegate/internal/shared/testutil"
)

func TestMetricsRecordValidation(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordValidation(ctx, successResult(newLicense(testKey, TypeTrial), false, testutil.Epoch))
	m.RecordValidation(ctx, &ValidationResult{IsOfflineValidation: true, ErrorCode: "CACHE_EXPIRED"})
	m.RecordCacheWrite(ctx, nil)
	m.RecordGraceLevel(ctx, WarningCritical)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			names[metric.Name] = true
			if metric.Name == "license_validations_total" {
				sum, ok := metric.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				assert.Len(t, sum.DataPoints, 2)
			}
		}
	}
	assert.True(t, names["license_validations_total"])
	assert.True(t, names["license_cache_writes_total"])
	assert.True(t, names["license_grace_warning_level"])
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordValidation(context.Background(), &ValidationResult{})
	m.RecordCacheWrite(context.Background(), nil)
	m.RecordGraceLevel(context.Background(), WarningNone)

	noop, err := NewMetrics(nil)
	require.NoError(t, err)
	noop.RecordGraceLevel(context.Background(), WarningExpired)
}
