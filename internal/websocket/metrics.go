package websocket

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics holds the hub instruments
type Metrics struct {
	connectionsTotal  metric.Int64Counter
	connectionsActive metric.Int64UpDownCounter
	messagesSent      metric.Int64Counter
	droppedMessages   metric.Int64Counter
}

// NewMetrics creates the hub instruments on meter; nil uses no-op ones
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("licensegate")
	}
	var (
		m   Metrics
		err error
	)
	if m.connectionsTotal, err = meter.Int64Counter("websocket_connections_total",
		metric.WithDescription("Total number of WebSocket connections")); err != nil {
		return nil, fmt.Errorf("failed to create connections counter: %w", err)
	}
	if m.connectionsActive, err = meter.Int64UpDownCounter("websocket_connections_active",
		metric.WithDescription("Number of active WebSocket connections")); err != nil {
		return nil, fmt.Errorf("failed to create active connections counter: %w", err)
	}
	if m.messagesSent, err = meter.Int64Counter("websocket_messages_sent_total",
		metric.WithDescription("Messages queued to clients")); err != nil {
		return nil, fmt.Errorf("failed to create messages counter: %w", err)
	}
	if m.droppedMessages, err = meter.Int64Counter("websocket_dropped_messages_total",
		metric.WithDescription("Messages dropped because a buffer was full")); err != nil {
		return nil, fmt.Errorf("failed to create dropped counter: %w", err)
	}
	return &m, nil
}

func (m *Metrics) connected(ctx context.Context) {
	m.connectionsTotal.Add(ctx, 1)
	m.connectionsActive.Add(ctx, 1)
}

func (m *Metrics) disconnected(ctx context.Context) {
	m.connectionsActive.Add(ctx, -1)
}

func (m *Metrics) sent(ctx context.Context) {
	m.messagesSent.Add(ctx, 1)
}

func (m *Metrics) dropped(ctx context.Context) {
	m.droppedMessages.Add(ctx, 1)
}
