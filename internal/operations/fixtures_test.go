package operations

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"licensegate/internal/license"
	"licensegate/internal/shared/testutil"
)

// discardLogger is for queues whose goroutines may outlive a test's logger
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func validSnapshot(tier license.Type, features ...string) *license.ValidationResult {
	expires := testutil.Epoch.Add(testutil.Days(30))
	return &license.ValidationResult{
		Valid: true,
		License: &license.License{
			ID:        "lic-1",
			Key:       "TEST-1234-ABCD-5678",
			Type:      tier,
			Status:    license.StatusActive,
			ExpiresAt: &expires,
			Features:  features,
		},
		ValidatedAt: testutil.Epoch,
	}
}

type queueFixture struct {
	queue *Queue
	clock *testutil.FakeClock
	log   *EventLog
}

func newQueueFixture(t *testing.T, cfg Config, proc Processor, opts ...Option) *queueFixture {
	t.Helper()
	if proc == nil {
		proc = func(context.Context, *Job) (interface{}, error) { return "ok", nil }
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}
	logger, _ := testutil.NewTestLogger(t)
	f := &queueFixture{
		clock: testutil.NewFakeClock(testutil.Epoch),
		log:   NewEventLog(0),
	}
	base := []Option{WithClock(f.clock), WithLogger(logger), WithEventSink(f.log)}
	f.queue = NewQueue(cfg, proc, append(base, opts...)...)
	return f
}

func (f *queueFixture) enqueue(t *testing.T, jobType string, p Priority) *Job {
	t.Helper()
	job, err := f.queue.Enqueue(context.Background(), EnqueueRequest{Type: jobType, Priority: p})
	if err != nil {
		t.Fatalf("enqueue %s: %v", jobType, err)
	}
	return job
}
