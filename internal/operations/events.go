package operations

import (
	"context"
	"sync"

	"licensegate/pkg/contracts/events"
)

// EventSink receives the queue's audit trail. Publish must not block for long;
// it is called outside the queue lock, in event order per job.
type EventSink interface {
	Publish(ctx context.Context, e events.QueueEvent)
}

// EventSinkFunc adapts a function to EventSink
type EventSinkFunc func(ctx context.Context, e events.QueueEvent)

// Publish calls f
func (f EventSinkFunc) Publish(ctx context.Context, e events.QueueEvent) {
	f(ctx, e)
}

// MultiSink fans events out to several sinks
type MultiSink []EventSink

// Publish forwards e to every sink
func (m MultiSink) Publish(ctx context.Context, e events.QueueEvent) {
	for _, s := range m {
		if s != nil {
			s.Publish(ctx, e)
		}
	}
}

// EventLog keeps the most recent events in memory
type EventLog struct {
	mu     sync.Mutex
	limit  int
	events []events.QueueEvent
}

// NewEventLog keeps at most limit events; zero keeps everything
func NewEventLog(limit int) *EventLog {
	return &EventLog{limit: limit}
}

// Publish appends e
func (l *EventLog) Publish(_ context.Context, e events.QueueEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	if l.limit > 0 && len(l.events) > l.limit {
		l.events = l.events[len(l.events)-l.limit:]
	}
}

// Events returns a copy of the kept events
func (l *EventLog) Events() []events.QueueEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]events.QueueEvent, len(l.events))
	copy(out, l.events)
	return out
}

// ForJob returns the kept event types of one job, in order
func (l *EventLog) ForJob(id string) []events.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []events.EventType
	for _, e := range l.events {
		if e.JobID == id {
			out = append(out, e.Type)
		}
	}
	return out
}
