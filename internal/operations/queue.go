package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"licensegate/internal/config"
	apperrors "licensegate/internal/errors"
	"licensegate/internal/infrastructure"
	"licensegate/internal/license"
	"licensegate/internal/retry"
	"licensegate/pkg/contracts/events"
)

var tracer = otel.Tracer("licensegate/operations")

// ErrProcessingTimeout is stored on jobs whose processor outlived the timeout
var ErrProcessingTimeout = errors.New("job processing timed out")

// Config controls queue behaviour
type Config struct {
	MaxRetries          int
	ProcessingTimeout   time.Duration
	PollInterval        time.Duration
	AutoRetry           bool
	RetryPolicy         retry.Policy
	FeatureRequirements map[string]string
}

// ConfigFrom builds a queue Config from the application configuration
func ConfigFrom(cfg config.QueueConfig) Config {
	return Config{
		MaxRetries:          cfg.MaxRetries,
		ProcessingTimeout:   cfg.ProcessingTimeout,
		PollInterval:        cfg.PollInterval,
		AutoRetry:           cfg.AutoRetry,
		RetryPolicy:         retry.FromConfig(cfg.Retry),
		FeatureRequirements: DefaultFeatureRequirements,
	}
}

// OfflineVerdict returns the license snapshot to gate on while offline
type OfflineVerdict func(ctx context.Context) *license.ValidationResult

// Option configures a Queue
type Option func(*Queue)

// WithClock sets the time source used for gating and timestamps
func WithClock(c infrastructure.Clock) Option {
	return func(q *Queue) { q.clock = infrastructure.OrSystem(c) }
}

// WithLogger sets the queue logger
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// WithEventSink sets where queue events are published
func WithEventSink(s EventSink) Option {
	return func(q *Queue) { q.sink = s }
}

// WithMetrics sets the queue instruments
func WithMetrics(m *Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

// WithOfflineVerdict sets the provider consulted while in offline mode
func WithOfflineVerdict(fn OfflineVerdict) Option {
	return func(q *Queue) { q.offlineVerdict = fn }
}

// WithSnapshotStore enables persistence of the job set
func WithSnapshotStore(s SnapshotStore) Option {
	return func(q *Queue) { q.snapshots = s }
}

// Stats summarises the job set
type Stats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Blocked    int `json:"blocked"`
}

// Queue is the license-gated job queue. Every job is checked against the
// current license snapshot immediately before it runs.
type Queue struct {
	cfg            Config
	processor      Processor
	clock          infrastructure.Clock
	logger         *slog.Logger
	sink           EventSink
	metrics        *Metrics
	offlineVerdict OfflineVerdict
	snapshots      SnapshotStore

	mu       sync.Mutex
	jobs     []*Job
	byID     map[string]*Job
	seq      uint64
	slots    map[license.Type]*semaphore.Weighted
	inFlight map[string]*semaphore.Weighted
	dirty    bool

	current atomic.Pointer[license.ValidationResult]
	offline atomic.Bool
	wake    chan struct{}
}

// NewQueue creates a queue that runs jobs with processor
func NewQueue(cfg Config, processor Processor, opts ...Option) *Queue {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.FeatureRequirements == nil {
		cfg.FeatureRequirements = DefaultFeatureRequirements
	}
	q := &Queue{
		cfg:       cfg,
		processor: processor,
		clock:     infrastructure.SystemClock{},
		logger:    slog.Default(),
		byID:      make(map[string]*Job),
		slots:     make(map[license.Type]*semaphore.Weighted),
		inFlight:  make(map[string]*semaphore.Weighted),
		wake:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue adds a pending job
func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (*Job, error) {
	job, err := q.newJob(req)
	if err != nil {
		return nil, err
	}

	q.mu.Lock()
	q.insertLocked(job)
	out := job.Clone()
	q.mu.Unlock()

	q.enqueued(ctx, out)
	q.signal()
	return out, nil
}

// EnqueueBatch adds several jobs at once. The batch is rejected as a whole
// when it is larger than the license tier allows.
func (q *Queue) EnqueueBatch(ctx context.Context, reqs []EnqueueRequest) ([]*Job, error) {
	tier := q.currentTier(ctx)
	if limit := LimitsFor(tier).BatchSize; limit > 0 && len(reqs) > limit {
		return nil, apperrors.Newf(apperrors.CodeRateLimitExceeded,
			"batch of %d jobs exceeds the %s limit of %d", len(reqs), tier, limit)
	}

	jobs := make([]*Job, 0, len(reqs))
	for i, req := range reqs {
		job, err := q.newJob(req)
		if err != nil {
			return nil, fmt.Errorf("job %d: %w", i, err)
		}
		jobs = append(jobs, job)
	}

	q.mu.Lock()
	out := make([]*Job, 0, len(jobs))
	for _, job := range jobs {
		q.insertLocked(job)
		out = append(out, job.Clone())
	}
	q.mu.Unlock()

	for _, job := range out {
		q.enqueued(ctx, job)
	}
	q.signal()
	return out, nil
}

func (q *Queue) newJob(req EnqueueRequest) (*Job, error) {
	if req.Type == "" {
		return nil, apperrors.NewAPIError(http.StatusBadRequest, "INVALID_JOB", "job type is required")
	}
	if req.Priority == "" {
		req.Priority = PriorityNormal
	}
	if !req.Priority.Valid() {
		return nil, apperrors.NewAPIError(http.StatusBadRequest, "INVALID_JOB",
			fmt.Sprintf("unknown priority %q", req.Priority))
	}
	if req.RequiredFeature == "" {
		req.RequiredFeature = q.cfg.FeatureRequirements[req.Type]
	}
	return &Job{
		ID:              uuid.New().String(),
		Type:            req.Type,
		Payload:         req.Payload,
		Status:          JobStatusPending,
		Priority:        req.Priority,
		RequiredFeature: req.RequiredFeature,
		CreatedAt:       q.clock.Now(),
	}, nil
}

func (q *Queue) insertLocked(job *Job) {
	q.seq++
	job.Sequence = q.seq
	q.jobs = append(q.jobs, job)
	q.byID[job.ID] = job
	q.dirty = true
}

func (q *Queue) enqueued(ctx context.Context, job *Job) {
	q.emit(ctx, newEvent(events.EventJobEnqueued, job, job.CreatedAt))
	q.metrics.recordEnqueued(ctx, job)
	q.logger.InfoContext(ctx, "job enqueued",
		slog.String("job_id", job.ID),
		slog.String("job_type", job.Type),
		slog.String("priority", string(job.Priority)))
}

// GetNextJob returns the job ProcessNextJob would consider, without gating it
func (q *Queue) GetNextJob() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return SelectNext(q.jobs, q.clock.Now()).Clone()
}

// ProcessNextJob selects the next job, gates it against the license and
// either blocks it or runs it to completion. It returns the job's final
// state for this cycle, or nil when nothing was eligible.
func (q *Queue) ProcessNextJob(ctx context.Context) *Job {
	ctx = infrastructure.EnsureTraceID(ctx)
	snap := q.licenseSnapshot(ctx)

	q.mu.Lock()
	now := q.clock.Now()
	evs := q.unblockLocked(snap, now)

	job := SelectNext(q.jobs, now)
	if job == nil {
		q.mu.Unlock()
		q.emit(ctx, evs...)
		return nil
	}

	decision := CheckLicense(snap, job, now)
	var slot *semaphore.Weighted
	if decision.Allowed {
		tier := snap.License.Type
		var ok bool
		if slot, ok = q.acquireLocked(tier); !ok {
			decision = deny(apperrors.Newf(apperrors.CodeRateLimitExceeded,
				"%s license allows %d concurrent jobs", tier, LimitsFor(tier).Concurrency))
		}
	}

	job.LicenseChecked = true
	checked := newEvent(events.EventLicenseChecked, job, now)
	checked.Allowed = decision.Allowed
	checked.ErrorCode = string(decision.Code)
	checked.Message = decision.Message
	evs = append(evs, checked)
	q.dirty = true

	if !decision.Allowed {
		job.Status = JobStatusBlocked
		job.BlockReason = string(decision.Code)
		job.BlockMessage = decision.Message
		blocked := newEvent(events.EventJobBlocked, job, now)
		blocked.ErrorCode = job.BlockReason
		blocked.Message = job.BlockMessage
		evs = append(evs, blocked)
		out := job.Clone()
		q.mu.Unlock()

		q.emit(ctx, evs...)
		q.metrics.recordBlocked(ctx, out, out.BlockReason)
		q.logger.WarnContext(ctx, "job blocked by license gate",
			slog.String("job_id", out.ID),
			slog.String("job_type", out.Type),
			slog.String("reason", out.BlockReason),
			slog.String("message", out.BlockMessage))
		return out
	}

	job.Status = JobStatusProcessing
	job.StartedAt = &now
	job.CompletedAt = nil
	job.NextAttemptAt = nil
	job.Error = ""
	job.BlockReason = ""
	job.BlockMessage = ""
	job.Attempts++
	q.inFlight[job.ID] = slot
	evs = append(evs, newEvent(events.EventJobStarted, job, now))
	run := job.Clone()
	q.mu.Unlock()

	q.emit(ctx, evs...)
	q.metrics.recordStarted(ctx)
	q.logger.InfoContext(ctx, "job started",
		slog.String("job_id", run.ID),
		slog.String("job_type", run.Type),
		slog.Int("attempt", run.Attempts))

	spanCtx, span := tracer.Start(ctx, "operations.ProcessJob",
		trace.WithAttributes(
			attribute.String("job.id", run.ID),
			attribute.String("job.type", run.Type),
			attribute.Int("job.attempt", run.Attempts),
		))
	infrastructure.AddSpanEvent(spanCtx, "license.checked",
		attribute.Bool("license.allowed", true),
		attribute.String("license.type", string(snap.License.Type)))
	start := time.Now()
	result, err := q.execute(spanCtx, run)
	elapsed := time.Since(start)
	if err != nil {
		infrastructure.RecordError(spanCtx, err)
	}
	span.End()

	return q.finish(ctx, run.ID, result, err, elapsed)
}

// execute runs the processor with the processing timeout. A processor that
// ignores cancellation is abandoned and its result discarded.
func (q *Queue) execute(ctx context.Context, job *Job) (interface{}, error) {
	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if q.cfg.ProcessingTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, q.cfg.ProcessingTimeout)
	}
	defer cancel()

	type outcome struct {
		result interface{}
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				q.logger.ErrorContext(ctx, "job processor panicked",
					slog.String("job_id", job.ID),
					slog.Any("panic", r))
				done <- outcome{err: fmt.Errorf("job processor panicked: %v", r)}
			}
		}()
		res, err := q.processor(runCtx, job)
		done <- outcome{result: res, err: err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w after %s", ErrProcessingTimeout, q.cfg.ProcessingTimeout)
	}
}

func (q *Queue) finish(ctx context.Context, id string, result interface{}, err error, elapsed time.Duration) *Job {
	q.mu.Lock()
	if slot, ok := q.inFlight[id]; ok {
		if slot != nil {
			slot.Release(1)
		}
		delete(q.inFlight, id)
	}
	job := q.byID[id]
	now := q.clock.Now()
	job.CompletedAt = &now

	var ev events.QueueEvent
	if err != nil {
		job.Status = JobStatusFailed
		job.Error = err.Error()
		job.Result = nil
		ev = newEvent(events.EventJobFailed, job, now)
		ev.Message = job.Error
	} else {
		job.Status = JobStatusCompleted
		job.Error = ""
		job.Result = result
		ev = newEvent(events.EventJobCompleted, job, now)
	}
	q.dirty = true
	out := job.Clone()
	q.mu.Unlock()

	q.emit(ctx, ev)
	q.metrics.recordFinished(ctx, out, elapsed, err)
	if err != nil {
		q.logger.ErrorContext(ctx, "job failed",
			slog.String("job_id", out.ID),
			slog.String("job_type", out.Type),
			slog.Int("retry_count", out.RetryCount),
			slog.String("error", out.Error))
	} else {
		q.logger.InfoContext(ctx, "job completed",
			slog.String("job_id", out.ID),
			slog.String("job_type", out.Type),
			slog.Duration("duration", elapsed))
	}
	q.signal()
	return out
}

// unblockLocked returns blocked jobs to pending when the gate would now pass.
// Jobs blocked on the concurrency cap wait until a slot is free. Each unblock
// is preceded by its LICENSE_CHECKED event.
func (q *Queue) unblockLocked(snap *license.ValidationResult, now time.Time) []events.QueueEvent {
	var evs []events.QueueEvent
	for _, j := range q.jobs {
		if j.Status != JobStatusBlocked {
			continue
		}
		if !CheckLicense(snap, j, now).Allowed {
			continue
		}
		if j.BlockReason == string(apperrors.CodeRateLimitExceeded) && !q.slotFreeLocked(snap.License.Type) {
			continue
		}
		checked := newEvent(events.EventLicenseChecked, j, now)
		checked.Allowed = true
		j.Status = JobStatusPending
		j.BlockReason = ""
		j.BlockMessage = ""
		evs = append(evs, checked, newEvent(events.EventJobUnblocked, j, now))
		q.dirty = true
	}
	return evs
}

func (q *Queue) acquireLocked(tier license.Type) (*semaphore.Weighted, bool) {
	limit := LimitsFor(tier).Concurrency
	if limit == 0 {
		return nil, true
	}
	sem, ok := q.slots[tier]
	if !ok {
		sem = semaphore.NewWeighted(int64(limit))
		q.slots[tier] = sem
	}
	if !sem.TryAcquire(1) {
		return nil, false
	}
	return sem, true
}

func (q *Queue) slotFreeLocked(tier license.Type) bool {
	sem := q.slots[tier]
	if LimitsFor(tier).Concurrency == 0 || sem == nil {
		return true
	}
	if !sem.TryAcquire(1) {
		return false
	}
	sem.Release(1)
	return true
}

// RetryFailedJobs sends failed jobs that still have retries left back to
// pending and returns how many were retried. Blocked jobs are never counted.
func (q *Queue) RetryFailedJobs(ctx context.Context) int {
	q.mu.Lock()
	now := q.clock.Now()
	var evs []events.QueueEvent
	for _, j := range q.jobs {
		if j.Status != JobStatusFailed || j.RetryCount >= q.cfg.MaxRetries {
			continue
		}
		delay := q.cfg.RetryPolicy.Delay(j.RetryCount)
		j.RetryCount++
		j.Status = JobStatusPending
		j.StartedAt = nil
		j.CompletedAt = nil
		j.NextAttemptAt = nil
		if delay > 0 {
			at := now.Add(delay)
			j.NextAttemptAt = &at
		}
		ev := newEvent(events.EventJobRetried, j, now)
		ev.Message = j.Error
		evs = append(evs, ev)
	}
	if len(evs) > 0 {
		q.dirty = true
	}
	q.mu.Unlock()

	if len(evs) == 0 {
		return 0
	}
	q.emit(ctx, evs...)
	q.metrics.recordRetried(ctx, len(evs))
	q.logger.InfoContext(ctx, "retrying failed jobs", slog.Int("count", len(evs)))
	q.signal()
	return len(evs)
}

// UpdateLicenseState replaces the snapshot the gate checks against. Workers
// are woken only when the verdict differs from the previous snapshot.
func (q *Queue) UpdateLicenseState(res *license.ValidationResult) {
	if prev := q.current.Swap(res); !sameVerdict(prev, res) {
		q.signal()
	}
}

// LicenseState returns the snapshot last given to UpdateLicenseState
func (q *Queue) LicenseState() *license.ValidationResult {
	return q.current.Load()
}

// SetOfflineMode switches the gate to the offline verdict provider
func (q *Queue) SetOfflineMode(offline bool) {
	if q.offline.Swap(offline) != offline {
		q.logger.Info("queue offline mode changed", slog.Bool("offline", offline))
		q.signal()
	}
}

// IsOfflineMode reports whether the gate uses the offline verdict provider
func (q *Queue) IsOfflineMode() bool {
	return q.offline.Load()
}

func (q *Queue) licenseSnapshot(ctx context.Context) *license.ValidationResult {
	if q.offline.Load() && q.offlineVerdict != nil {
		return q.offlineVerdict(ctx)
	}
	return q.current.Load()
}

func (q *Queue) currentTier(ctx context.Context) license.Type {
	snap := q.licenseSnapshot(ctx)
	if snap == nil || !snap.Valid || snap.License == nil {
		return license.TypeTrial
	}
	return snap.License.Type
}

// Get returns a copy of one job
func (q *Queue) Get(id string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.byID[id]
	if !ok {
		return nil, apperrors.ErrJobNotFound
	}
	return job.Clone(), nil
}

// List returns copies of the jobs matching filter in submission order
func (q *Queue) List(filter JobFilter) []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Job, 0)
	for _, j := range q.jobs {
		if !filter.matches(j) {
			continue
		}
		out = append(out, j.Clone())
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out
}

// Stats counts jobs by status
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := Stats{Total: len(q.jobs)}
	for _, j := range q.jobs {
		switch j.Status {
		case JobStatusPending:
			s.Pending++
		case JobStatusProcessing:
			s.Processing++
		case JobStatusCompleted:
			s.Completed++
		case JobStatusFailed:
			s.Failed++
		case JobStatusBlocked:
			s.Blocked++
		}
	}
	return s
}

// Run processes jobs with the given number of workers until ctx is done.
// A maintenance loop retries failed jobs when AutoRetry is set and persists
// the job set when a snapshot store is configured.
func (q *Queue) Run(ctx context.Context, workers int) error {
	if workers < 1 {
		workers = 1
	}
	q.logger.InfoContext(ctx, "starting job queue",
		slog.Int("workers", workers),
		slog.Bool("auto_retry", q.cfg.AutoRetry))

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		id := i
		g.Go(func() error {
			q.worker(gctx, id)
			return nil
		})
	}
	g.Go(func() error {
		q.maintain(gctx)
		return nil
	})
	err := g.Wait()

	if perr := q.Persist(context.Background()); perr != nil {
		q.logger.Error("failed to persist job queue", slog.String("error", perr.Error()))
	}
	q.logger.Info("job queue stopped")
	return err
}

func (q *Queue) worker(ctx context.Context, id int) {
	logger := q.logger.With(slog.Int("worker_id", id))
	logger.Debug("worker started")
	timer := time.NewTimer(q.cfg.PollInterval)
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			logger.Debug("worker stopped")
			return
		}
		if job := q.ProcessNextJob(ctx); job != nil {
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(q.cfg.PollInterval)
		select {
		case <-ctx.Done():
			logger.Debug("worker stopped")
			return
		case <-q.wake:
		case <-timer.C:
		}
	}
}

func (q *Queue) maintain(ctx context.Context) {
	ticker := time.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if q.cfg.AutoRetry {
				q.RetryFailedJobs(ctx)
			}
			if err := q.Persist(ctx); err != nil {
				q.logger.WarnContext(ctx, "failed to persist job queue", slog.String("error", err.Error()))
			}
		}
	}
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) emit(ctx context.Context, evs ...events.QueueEvent) {
	if q.sink == nil {
		return
	}
	for _, e := range evs {
		q.sink.Publish(ctx, e)
	}
}

func newEvent(t events.EventType, job *Job, now time.Time) events.QueueEvent {
	return events.QueueEvent{
		Type:       t,
		JobID:      job.ID,
		JobType:    job.Type,
		Priority:   string(job.Priority),
		Status:     string(job.Status),
		RetryCount: job.RetryCount,
		Timestamp:  now,
	}
}
