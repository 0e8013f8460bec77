package operations

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics holds the queue instruments. A nil *Metrics records nothing.
type Metrics struct {
	enqueued  metric.Int64Counter
	blocked   metric.Int64Counter
	completed metric.Int64Counter
	failed    metric.Int64Counter
	retried   metric.Int64Counter
	inFlight  metric.Int64UpDownCounter
	duration  metric.Float64Histogram
}

// NewMetrics creates the queue instruments on meter; nil uses no-op ones
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("licensegate")
	}
	var (
		m   Metrics
		err error
	)
	if m.enqueued, err = meter.Int64Counter("jobs_enqueued_total",
		metric.WithDescription("Jobs submitted to the queue")); err != nil {
		return nil, fmt.Errorf("failed to create enqueued counter: %w", err)
	}
	if m.blocked, err = meter.Int64Counter("jobs_blocked_total",
		metric.WithDescription("Jobs diverted to blocked by the license gate, by reason")); err != nil {
		return nil, fmt.Errorf("failed to create blocked counter: %w", err)
	}
	if m.completed, err = meter.Int64Counter("jobs_completed_total",
		metric.WithDescription("Jobs that finished successfully")); err != nil {
		return nil, fmt.Errorf("failed to create completed counter: %w", err)
	}
	if m.failed, err = meter.Int64Counter("jobs_failed_total",
		metric.WithDescription("Job attempts that failed")); err != nil {
		return nil, fmt.Errorf("failed to create failed counter: %w", err)
	}
	if m.retried, err = meter.Int64Counter("jobs_retried_total",
		metric.WithDescription("Failed jobs sent back to pending")); err != nil {
		return nil, fmt.Errorf("failed to create retried counter: %w", err)
	}
	if m.inFlight, err = meter.Int64UpDownCounter("jobs_in_flight",
		metric.WithDescription("Jobs currently processing")); err != nil {
		return nil, fmt.Errorf("failed to create in-flight counter: %w", err)
	}
	if m.duration, err = meter.Float64Histogram("job_processing_duration_seconds",
		metric.WithDescription("Time spent in the processor"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}
	return &m, nil
}

func (m *Metrics) recordEnqueued(ctx context.Context, job *Job) {
	if m == nil {
		return
	}
	m.enqueued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_type", job.Type),
		attribute.String("priority", string(job.Priority))))
}

func (m *Metrics) recordBlocked(ctx context.Context, job *Job, reason string) {
	if m == nil {
		return
	}
	m.blocked.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_type", job.Type),
		attribute.String("reason", reason)))
}

func (m *Metrics) recordStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.inFlight.Add(ctx, 1)
}

func (m *Metrics) recordFinished(ctx context.Context, job *Job, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("job_type", job.Type))
	m.inFlight.Add(ctx, -1)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
	if err != nil {
		m.failed.Add(ctx, 1, attrs)
		return
	}
	m.completed.Add(ctx, 1, attrs)
}

func (m *Metrics) recordRetried(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.retried.Add(ctx, int64(n))
}
