package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/telemetry-core/internal/infrastructure/config"
)

// storeTimeout bounds the store calls that record a job's outcome. They use
// their own context so a cancelled worker still records what happened.
const storeTimeout = 5 * time.Second

// Logger is the logging surface the queue needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Handler processes one job. Returning an error schedules a retry unless
// the error is wrapped with Permanent or the attempts are exhausted.
type Handler func(ctx context.Context, job *Job) error

// DeadLetter receives jobs that failed terminally.
type DeadLetter interface {
	PublishDeadLetter(ctx context.Context, job *Job) error
}

// Options configures one lane.
type Options struct {
	Name          string
	Concurrency   int
	MaxAttempts   int
	Backoff       time.Duration
	MaxBackoff    time.Duration
	Priority      int
	KeepCompleted int
	KeepFailed    int
	PollInterval  time.Duration
	LeaseTimeout  time.Duration
}

// OptionsFromConfig converts a lane's YAML configuration into Options.
func OptionsFromConfig(lc config.LaneConfig) Options {
	return Options{
		Name:          lc.Name,
		Concurrency:   lc.Concurrency,
		MaxAttempts:   lc.MaxAttempts,
		Backoff:       lc.Backoff(),
		Priority:      lc.Priority,
		KeepCompleted: lc.KeepCompleted,
		KeepFailed:    lc.KeepFailed,
		PollInterval:  lc.Poll(),
		LeaseTimeout:  lc.Lease(),
	}
}

func (o Options) withDefaults(lane Lane) Options {
	if o.Name == "" {
		o.Name = string(lane)
	}
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 1
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 5 * time.Minute
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 100 * time.Millisecond
	}
	if o.LeaseTimeout <= 0 {
		o.LeaseTimeout = 30 * time.Second
	}
	return o
}

// Queue is one processing lane: a named set of jobs in a Store plus the
// worker pool that drains it.
type Queue struct {
	lane       Lane
	opts       Options
	store      Store
	logger     Logger
	metrics    *Metrics
	deadLetter DeadLetter
	wake       chan struct{}

	mu        sync.Mutex
	started   bool
	stopped   bool
	cancel    context.CancelFunc
	jobCancel context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a lane over store. Workers do not run until Start.
func New(lane Lane, store Store, opts Options) *Queue {
	opts = opts.withDefaults(lane)
	return &Queue{
		lane:   lane,
		opts:   opts,
		store:  store,
		logger: noopLogger{},
		wake:   make(chan struct{}, opts.Concurrency),
	}
}

// SetLogger sets the logger for queue operations.
func (q *Queue) SetLogger(logger Logger) {
	if logger != nil {
		q.logger = logger
	}
}

// SetMetrics attaches Prometheus metrics. nil disables them.
func (q *Queue) SetMetrics(m *Metrics) {
	q.metrics = m
}

// SetDeadLetter sets the sink for terminally failed jobs. nil disables it.
func (q *Queue) SetDeadLetter(dl DeadLetter) {
	q.deadLetter = dl
}

// Lane returns the lane this queue serves.
func (q *Queue) Lane() Lane { return q.lane }

// Name returns the store-level queue name.
func (q *Queue) Name() string { return q.opts.Name }

// Add enqueues data as a new waiting job.
func (q *Queue) Add(ctx context.Context, data Ingestion) (*Job, error) {
	q.mu.Lock()
	stopped := q.stopped
	q.mu.Unlock()
	if stopped {
		return nil, ErrStopped
	}

	job := &Job{
		ID:          uuid.NewString(),
		Queue:       q.opts.Name,
		Priority:    q.opts.Priority,
		Data:        data,
		State:       StateWaiting,
		MaxAttempts: q.opts.MaxAttempts,
		EnqueuedAt:  time.Now(),
	}
	if err := q.store.Add(ctx, job); err != nil {
		return nil, err
	}
	q.metrics.recordAdded(string(q.lane))
	q.signal()
	return job, nil
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Start launches the worker pool and the stalled-job sweeper.
func (q *Queue) Start(ctx context.Context, handler Handler) error {
	if handler == nil {
		return ErrNoHandler
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return ErrAlreadyStarted
	}
	if q.stopped {
		return ErrStopped
	}
	q.started = true

	pollCtx, cancel := context.WithCancel(ctx)
	jobCtx, jobCancel := context.WithCancel(context.WithoutCancel(ctx))
	q.cancel = cancel
	q.jobCancel = jobCancel

	if n, err := q.store.RecoverStalled(ctx, q.opts.Name); err != nil {
		q.logger.Warn("stalled job recovery failed", "lane", q.lane, "error", err)
	} else if n > 0 {
		q.logger.Info("recovered stalled jobs", "lane", q.lane, "count", n)
	}

	for i := 0; i < q.opts.Concurrency; i++ {
		q.wg.Add(1)
		go q.worker(pollCtx, jobCtx, handler)
	}
	q.wg.Add(1)
	go q.sweep(pollCtx)

	q.logger.Info("queue started",
		"lane", q.lane,
		"name", q.opts.Name,
		"concurrency", q.opts.Concurrency,
		"max_attempts", q.opts.MaxAttempts,
	)
	return nil
}

// Stop closes intake, stops polling and waits up to timeout for in-flight
// jobs to finish. Jobs still running at the deadline have their context
// cancelled and ErrStopTimeout is returned.
func (q *Queue) Stop(timeout time.Duration) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return nil
	}
	q.stopped = true
	cancel, jobCancel := q.cancel, q.jobCancel
	q.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		jobCancel()
		q.logger.Info("queue stopped", "lane", q.lane)
		return nil
	case <-time.After(timeout):
		jobCancel()
		q.logger.Warn("queue stop timed out with jobs in flight", "lane", q.lane)
		return ErrStopTimeout
	}
}

func (q *Queue) worker(pollCtx, jobCtx context.Context, handler Handler) {
	defer q.wg.Done()

	for {
		if pollCtx.Err() != nil {
			return
		}

		job, err := q.store.Reserve(pollCtx, q.opts.Name, q.opts.LeaseTimeout)
		if err != nil {
			if pollCtx.Err() != nil {
				return
			}
			q.logger.Error("reserving job failed", "lane", q.lane, "error", err)
		}
		if job == nil {
			select {
			case <-pollCtx.Done():
				return
			case <-q.wake:
			case <-time.After(q.opts.PollInterval):
			}
			continue
		}

		q.process(jobCtx, job, handler)
	}
}

// process runs one leased job. job.Attempts already includes this lease.
func (q *Queue) process(ctx context.Context, job *Job, handler Handler) {
	maxAttempts := job.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = q.opts.MaxAttempts
	}

	storeCtx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	// Leases that expired under a crashed worker still count, so a job can
	// come back with nothing left to spend.
	if job.Attempts > maxAttempts {
		if job.LastError == "" {
			job.LastError = errAttemptsExhausted.Error()
		}
		q.fail(storeCtx, job, errAttemptsExhausted)
		return
	}

	start := time.Now()
	err := invoke(ctx, handler, job)
	q.metrics.recordAttempt(string(q.lane), time.Since(start))

	if err == nil {
		now := time.Now()
		job.State = StateCompleted
		job.FinishedAt = &now
		job.LastError = ""
		if serr := q.store.Complete(storeCtx, job, q.opts.KeepCompleted); serr != nil {
			q.logger.Error("recording completed job failed", "lane", q.lane, "job_id", job.ID, "error", serr)
		}
		q.metrics.recordCompleted(string(q.lane))
		return
	}

	job.LastError = err.Error()

	if IsPermanent(err) || job.Attempts >= maxAttempts {
		q.fail(storeCtx, job, err)
		return
	}

	delay := q.backoff(job.Attempts)
	readyAt := time.Now().Add(delay)
	job.State = StateDelayed
	job.ReadyAt = &readyAt
	if serr := q.store.Retry(storeCtx, job, delay); serr != nil {
		q.logger.Error("scheduling retry failed", "lane", q.lane, "job_id", job.ID, "error", serr)
	}
	q.metrics.recordRetried(string(q.lane))
	q.logger.Warn("job attempt failed, retrying",
		"lane", q.lane,
		"job_id", job.ID,
		"attempt", job.Attempts,
		"max_attempts", maxAttempts,
		"delay", delay,
		"error", err,
	)
}

// fail moves job to the failed list and hands it to the dead-letter sink.
func (q *Queue) fail(ctx context.Context, job *Job, err error) {
	now := time.Now()
	job.State = StateFailed
	job.FinishedAt = &now
	if serr := q.store.Fail(ctx, job, q.opts.KeepFailed); serr != nil {
		q.logger.Error("recording failed job failed", "lane", q.lane, "job_id", job.ID, "error", serr)
	}
	q.metrics.recordFailed(string(q.lane))
	q.logger.Error("job failed",
		"lane", q.lane,
		"job_id", job.ID,
		"topic", job.Data.Topic,
		"attempts", job.Attempts,
		"error", err,
	)
	if q.deadLetter != nil {
		if derr := q.deadLetter.PublishDeadLetter(ctx, job); derr != nil {
			q.logger.Warn("dead-letter publish failed", "lane", q.lane, "job_id", job.ID, "error", derr)
		}
	}
}

// backoff returns base * 2^(attempt-1), capped at MaxBackoff.
func (q *Queue) backoff(attempt int) time.Duration {
	d := q.opts.Backoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= q.opts.MaxBackoff {
			return q.opts.MaxBackoff
		}
	}
	if d > q.opts.MaxBackoff {
		return q.opts.MaxBackoff
	}
	return d
}

func invoke(ctx context.Context, handler Handler, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, job)
}

// sweep periodically returns expired leases to waiting and refreshes the
// depth gauges.
func (q *Queue) sweep(ctx context.Context) {
	defer q.wg.Done()

	interval := q.opts.LeaseTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := q.store.RecoverStalled(ctx, q.opts.Name); err != nil {
				q.logger.Warn("stalled job recovery failed", "lane", q.lane, "error", err)
			} else if n > 0 {
				q.logger.Warn("recovered stalled jobs", "lane", q.lane, "count", n)
				q.signal()
			}
			if c, err := q.store.Counts(ctx, q.opts.Name); err == nil {
				q.metrics.recordCounts(string(q.lane), c)
			}
		}
	}
}

// Counts returns the lane's job counts.
func (q *Queue) Counts(ctx context.Context) (Counts, error) {
	return q.store.Counts(ctx, q.opts.Name)
}

// Failed returns up to limit failed jobs, most recent first.
func (q *Queue) Failed(ctx context.Context, limit int) ([]Job, error) {
	return q.store.Failed(ctx, q.opts.Name, limit)
}

// RetryFailed moves a failed job back to waiting with a fresh attempt budget.
func (q *Queue) RetryFailed(ctx context.Context, id string) (*Job, error) {
	job, err := q.store.Requeue(ctx, q.opts.Name, id)
	if err != nil {
		return nil, err
	}
	q.signal()
	q.logger.Info("failed job requeued", "lane", q.lane, "job_id", id)
	return job, nil
}
