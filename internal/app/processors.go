package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"licensegate/internal/operations"
)

// Handlers maps job types to the processor that runs them
type Handlers map[string]operations.Processor

// DefaultHandlers returns the built-in job types
func DefaultHandlers() Handlers {
	return Handlers{
		"echo":          echoJob,
		"sleep":         sleepJob,
		"batch-process": batchJob,
	}
}

// Types returns the registered job types in sorted order
func (h Handlers) Types() []string {
	types := make([]string, 0, len(h))
	for t := range h {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Dispatch returns a processor that routes each job to the handler for its
// type. Jobs of unknown type fail.
func Dispatch(h Handlers, logger *slog.Logger) operations.Processor {
	return func(ctx context.Context, job *operations.Job) (interface{}, error) {
		fn, ok := h[job.Type]
		if !ok {
			logger.WarnContext(ctx, "no handler for job type", slog.String("job_type", job.Type))
			return nil, fmt.Errorf("unknown job type %q", job.Type)
		}
		return fn(ctx, job)
	}
}

// echoJob returns its payload
func echoJob(_ context.Context, job *operations.Job) (interface{}, error) {
	return job.Payload, nil
}

// sleepJob waits for payload["duration"] (a Go duration string) or until
// the context ends
func sleepJob(ctx context.Context, job *operations.Job) (interface{}, error) {
	raw, _ := job.Payload["duration"].(string)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.C:
		return map[string]interface{}{"slept": d.String()}, nil
	}
}

// batchJob counts the entries of payload["items"]
func batchJob(_ context.Context, job *operations.Job) (interface{}, error) {
	items, ok := job.Payload["items"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("payload items must be a list")
	}
	return map[string]interface{}{"processed": len(items)}, nil
}
