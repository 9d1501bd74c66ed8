package jobqueue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/flexcoop/archivist/internal/errs"
	"github.com/flexcoop/archivist/internal/log"
)

// ProgressFunc lets a worker report progress milestones (spec.md §4.5:
// "model load, segment N/total, encode, write, link, upload").
type ProgressFunc func(percent int)

// ProcessFunc performs the actual caption pipeline work for one job. It
// must check ctx.Done() between safe checkpoints so cancellation is
// cooperative (spec.md §5).
type ProcessFunc func(ctx context.Context, job Job, progress ProgressFunc) error

// Config configures the worker pool (spec.md §6 WORKER_COUNT/JOB_MAX_RETRIES/
// JOB_RETRY_BASE_S/JOB_RETRY_CAP_S).
type Config struct {
	Workers      int
	MaxRetries   int
	RetryBase    time.Duration
	RetryCap     time.Duration
	HeartbeatTTL time.Duration // not read by Pool; claimed jobs are never requeued on a timeout
}

// DefaultConfig mirrors spec.md §4.5/§6 defaults.
func DefaultConfig() Config {
	return Config{
		Workers:      2,
		MaxRetries:   3,
		RetryBase:    60 * time.Second,
		RetryCap:     time.Hour,
		HeartbeatTTL: 5 * time.Minute,
	}
}

// Pool runs a fixed set of workers against a Queue, grounded on xg2g's
// internal/gpu.Queue worker-semaphore/dispatcher shape, adapted to claim
// by job id instead of channel receive so single-in-flight-per-path and
// cooperative cancellation both hold. Worker fan-out uses errgroup, the
// same way xg2g's daemon.App.Run bounds its own set of long-lived
// goroutines, instead of a bare sync.WaitGroup.
type Pool struct {
	queue   *Queue
	cfg     Config
	process ProcessFunc

	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	group *errgroup.Group
	stop  chan struct{}
}

// NewPool constructs a worker pool over queue, invoking fn for each claimed
// job.
func NewPool(queue *Queue, cfg Config, fn ProcessFunc) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Pool{
		queue:   queue,
		cfg:     cfg,
		process: fn,
		cancels: make(map[string]context.CancelFunc),
		stop:    make(chan struct{}),
	}
}

// Start launches cfg.Workers goroutines under a single errgroup. It
// returns immediately; worker goroutines run until ctx is cancelled or
// Shutdown closes p.stop, and always return nil (a worker never dies on a
// job failure — spec.md §4.5 "no worker thread is killed" — so the group
// context is never cancelled by a worker itself, only by the caller).
func (p *Pool) Start(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	p.group = g
	for i := 0; i < p.cfg.Workers; i++ {
		workerID := workerName(i)
		g.Go(func() error {
			p.workerLoop(gctx, workerID)
			return nil
		})
	}
}

func workerName(i int) string {
	const letters = "0123456789"
	if i < len(letters) {
		return "worker-" + string(letters[i])
	}
	return "worker-n"
}

// Shutdown signals all workers to stop claiming new jobs, waits up to
// grace for in-flight jobs to reach a safe checkpoint, and returns. Jobs
// still running at the deadline are left running; spec.md §5 only
// requires workers to pause at the *next* checkpoint, not to be killed.
func (p *Pool) Shutdown(grace time.Duration) {
	close(p.stop)
	done := make(chan struct{})
	go func() {
		if p.group != nil {
			_ = p.group.Wait()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
	}
}

// Cancel requests cancellation of jobID, whether queued or running.
func (p *Pool) Cancel(jobID string) error {
	p.mu.Lock()
	cancel, running := p.cancels[jobID]
	p.mu.Unlock()
	if running {
		cancel()
		return nil
	}
	return p.queue.Cancel(jobID)
}

func (p *Pool) workerLoop(ctx context.Context, workerID string) {
	logger := log.WithComponent("jobqueue.worker").With().Str("worker", workerID).Logger()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-p.queue.Wake():
		case <-ticker.C:
		}

		select {
		case <-p.stop:
			return
		default:
		}

		job := p.queue.claimNext(workerID)
		if job == nil {
			continue
		}
		p.runJob(ctx, workerID, *job, logger)
	}
}

func (p *Pool) runJob(ctx context.Context, workerID string, job Job, logger zerolog.Logger) {
	jobCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancels[job.ID] = cancel
	p.mu.Unlock()
	defer func() {
		cancel()
		p.mu.Lock()
		delete(p.cancels, job.ID)
		p.mu.Unlock()
	}()

	progress := func(percent int) { p.queue.setProgress(job.ID, percent) }

	logger.Info().Str("job_id", job.ID).Str("video_path", job.VideoPath).Int("attempt", job.Attempt).Msg("job started")

	err := p.safeProcess(jobCtx, job, progress)

	switch {
	case err == nil:
		p.queue.finish(job.ID, StateSucceeded, nil, 0)
		logger.Info().Str("job_id", job.ID).Msg("job succeeded")

	case errors.Is(err, context.Canceled):
		p.queue.finish(job.ID, StateCancelled, errs.New(errs.KindStateConflict, "cancelled"), 0)
		logger.Info().Str("job_id", job.ID).Msg("job cancelled")

	default:
		jobErr := toJobError(err, job.Attempt)
		if jobErr.Kind.Retriable() && job.Attempt < p.cfg.MaxRetries {
			wait := p.backoffFor(job.Attempt)
			p.queue.finish(job.ID, StateFailed, jobErr, wait)
			logger.Warn().Str("job_id", job.ID).Str("kind", string(jobErr.Kind)).Dur("retry_in", wait).Msg("job failed, scheduling retry")
		} else {
			p.queue.finish(job.ID, StateFailed, jobErr, 0)
			logger.Error().Str("job_id", job.ID).Str("kind", string(jobErr.Kind)).Msg("job failed terminally")
		}
	}
}

// safeProcess recovers from panics inside the process function so a
// worker goroutine never dies (spec.md §4.5 "Failure semantics").
func (p *Pool) safeProcess(ctx context.Context, job Job, progress ProgressFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.New(errs.KindTranscribeFailed, "panic in job processor")
		}
	}()
	return p.process(ctx, job, progress)
}

func toJobError(err error, attempt int) *errs.Error {
	if kind, ok := errs.OfKind(err); ok {
		return &errs.Error{Kind: kind, Message: err.Error(), Attempt: attempt, Cause: err}
	}
	return &errs.Error{Kind: errs.KindTranscribeFailed, Message: err.Error(), Attempt: attempt, Cause: err}
}

// backoffFor computes the exponential retry delay for the given attempt
// number using cenkalti/backoff/v5, clamped to spec.md §4.5's base 60s /
// cap 1h.
func (p *Pool) backoffFor(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(p.cfg.RetryBase),
		backoff.WithMaxInterval(p.cfg.RetryCap),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0),
	)

	var d time.Duration
	for i := 0; i <= attempt; i++ {
		next, err := b.NextBackOff()
		if err != nil {
			return p.cfg.RetryCap
		}
		d = next
	}
	if d > p.cfg.RetryCap {
		d = p.cfg.RetryCap
	}
	return d
}
