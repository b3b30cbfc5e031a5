// Package queue implements the bounded-concurrency, at-least-once retrying
// task runner that decouples webhook receipt from message processing.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reanhealth/botgateway/internal/errs"
)

// ErrQueueClosed is returned by Enqueue after the queue has been stopped.
var ErrQueueClosed = errors.New("queue is closed")

// ErrQueueFull is returned when the job buffer is at capacity.
var ErrQueueFull = errors.New("queue is full")

// Processor executes one job. Errors classified retryable by errs.Retryable
// trigger the backoff/retry policy; validation errors complete the job as a
// no-op.
type Processor func(ctx context.Context, job Job) error

// DeadLetter receives jobs that exhausted their retry budget.
type DeadLetter func(job Job, err error)

// Options configure a Queue. Zero values fall back to defaults.
type Options struct {
	Workers     int
	Capacity    int
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	DeadLetter  DeadLetter
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 10
	}
	if o.Capacity <= 0 {
		o.Capacity = 1024
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 2 * time.Second
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 30 * time.Second
	}
	return o
}

// Queue runs jobs on a fixed worker pool and retries transient failures
// with exponential backoff.
type Queue struct {
	logger    *slog.Logger
	processor Processor
	opts      Options

	jobs   chan Job
	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	depth        atomic.Int64
	processed    atomic.Int64
	deadLettered atomic.Int64
}

// New creates a stopped queue; call Start before enqueueing.
func New(log *slog.Logger, processor Processor, opts Options) *Queue {
	if log == nil {
		log = slog.Default()
	}
	opts = opts.withDefaults()
	return &Queue{
		logger:    log.With(slog.String("component", "queue")),
		processor: processor,
		opts:      opts,
		jobs:      make(chan Job, opts.Capacity),
	}
}

// Start launches the worker pool. The pool drains until Stop is called.
func (q *Queue) Start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(context.WithoutCancel(ctx))
	q.group, _ = errgroup.WithContext(q.ctx)
	for i := 0; i < q.opts.Workers; i++ {
		q.group.Go(func() error {
			q.run()
			return nil
		})
	}
	q.logger.Info("queue started", slog.Int("workers", q.opts.Workers), slog.Int("capacity", q.opts.Capacity))
}

// Stop closes the queue for new work and waits for in-flight jobs.
// Jobs waiting on a retry timer are dead-lettered rather than run.
func (q *Queue) Stop(ctx context.Context) error {
	if !q.closed.CompareAndSwap(false, true) {
		return nil
	}
	q.cancel()
	done := make(chan struct{})
	go func() {
		_ = q.group.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueue appends a job and returns immediately without waiting for
// processing. Max attempts default from the queue options.
func (q *Queue) Enqueue(job Job) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = q.opts.MaxAttempts
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	select {
	case q.jobs <- job:
		q.depth.Add(1)
		return nil
	default:
		return ErrQueueFull
	}
}

// Depth returns the number of buffered jobs not yet picked up by a worker.
func (q *Queue) Depth() int64 {
	return q.depth.Load()
}

// Processed returns the count of jobs that completed successfully.
func (q *Queue) Processed() int64 {
	return q.processed.Load()
}

// DeadLettered returns the count of jobs abandoned after exhausting retries.
func (q *Queue) DeadLettered() int64 {
	return q.deadLettered.Load()
}

func (q *Queue) run() {
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			q.depth.Add(-1)
			q.process(job)
		}
	}
}

func (q *Queue) process(job Job) {
	err := q.safeProcess(job)
	if err == nil {
		q.processed.Add(1)
		return
	}
	if !errs.Retryable(err) {
		// Non-message traffic (handshakes, pings) completes as a no-op.
		q.logger.Debug("job completed as no-op",
			slog.String("job_id", job.ID),
			slog.String("kind", string(errs.KindOf(err))),
			slog.Any("error", err))
		q.processed.Add(1)
		return
	}

	job.Attempts++
	if job.Attempts >= job.MaxAttempts {
		q.deadLettered.Add(1)
		q.logger.Error("job permanently failed",
			slog.String("job_id", job.ID),
			slog.String("tenant_id", job.TenantID),
			slog.String("channel", job.Channel.String()),
			slog.Int("attempts", job.Attempts),
			slog.Any("error", err))
		if q.opts.DeadLetter != nil {
			q.opts.DeadLetter(job, err)
		}
		return
	}

	delay := NextDelay(job.Attempts, q.opts.BaseDelay, q.opts.MaxDelay)
	q.logger.Warn("job failed, scheduling retry",
		slog.String("job_id", job.ID),
		slog.Int("attempt", job.Attempts),
		slog.Duration("delay", delay),
		slog.Any("error", err))
	time.AfterFunc(delay, func() {
		q.resubmit(job, err)
	})
}

func (q *Queue) resubmit(job Job, cause error) {
	if q.closed.Load() {
		q.deadLettered.Add(1)
		q.logger.Warn("queue closed, dead-lettering retry", slog.String("job_id", job.ID))
		if q.opts.DeadLetter != nil {
			q.opts.DeadLetter(job, cause)
		}
		return
	}
	select {
	case q.jobs <- job:
		q.depth.Add(1)
	default:
		q.deadLettered.Add(1)
		q.logger.Error("queue full, dead-lettering retry", slog.String("job_id", job.ID))
		if q.opts.DeadLetter != nil {
			q.opts.DeadLetter(job, cause)
		}
	}
}

func (q *Queue) safeProcess(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.New(errs.KindInternal, "panic processing job %s: %v", job.ID, r)
			q.logger.Error("panic recovered in job processor", slog.String("job_id", job.ID), slog.Any("panic", r))
		}
	}()
	ctx := q.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return q.processor(ctx, job)
}

// NextDelay returns the retry backoff for the given completed attempt
// count: min(base * 2^(attempts-1), max).
func NextDelay(attempts int, base, max time.Duration) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
