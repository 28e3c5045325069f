package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/fulfillment/internal/domain/shared"
	"go.uber.org/zap"
)

// JobExecutor runs jobs of one kind
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) (any, error)
}

// ExecutorFunc adapts a function to JobExecutor
type ExecutorFunc func(ctx context.Context, job *Job) (any, error)

// Execute calls f
func (f ExecutorFunc) Execute(ctx context.Context, job *Job) (any, error) {
	return f(ctx, job)
}

// KindOptions override the scheduler defaults for one job kind.
// A negative MaxRetries disables retries; zero values use the defaults.
type KindOptions struct {
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	Workers       int
	QueueSize     int
	JobTimeout    time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	// Retention is how long finished jobs stay queryable
	Retention time.Duration
}

// DefaultSchedulerConfig returns default scheduler configuration
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Workers:       4,
		QueueSize:     256,
		JobTimeout:    2 * time.Minute,
		RetryAttempts: 3,
		RetryDelay:    5 * time.Second,
		Retention:     time.Hour,
	}
}

// Validate checks the configuration
func (c SchedulerConfig) Validate() error {
	if c.Workers <= 0 || c.QueueSize <= 0 {
		return fmt.Errorf("%w: workers and queue size must be positive", ErrInvalidConfig)
	}
	if c.JobTimeout <= 0 {
		return fmt.Errorf("%w: job timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

type kindEntry struct {
	executor JobExecutor
	opts     KindOptions
}

// Scheduler is a bounded worker pool over a job queue. Submitted jobs can be
// awaited, queried by id, and announce completion on the event bus.
type Scheduler struct {
	config    SchedulerConfig
	logger    *zap.Logger
	publisher shared.EventPublisher
	now       func() time.Time

	kinds map[JobKind]kindEntry
	queue chan *Job

	mu        sync.RWMutex
	jobs      map[uuid.UUID]*Job
	isRunning bool

	quit   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithPublisher publishes a JobCompletedEvent for every finished job
func WithPublisher(p shared.EventPublisher) Option {
	return func(s *Scheduler) {
		s.publisher = p
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// NewScheduler creates a new scheduler instance
func NewScheduler(config SchedulerConfig, logger *zap.Logger, opts ...Option) (*Scheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	s := &Scheduler{
		config: config,
		logger: logger,
		now:    time.Now,
		kinds:  make(map[JobKind]kindEntry),
		queue:  make(chan *Job, config.QueueSize),
		jobs:   make(map[uuid.UUID]*Job),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register binds an executor to a job kind. Register before Start.
func (s *Scheduler) Register(kind JobKind, executor JobExecutor, opts KindOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds[kind] = kindEntry{executor: executor, opts: opts}
}

// Start starts the worker pool
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true
	s.quit = make(chan struct{})

	// detached so that request cancellation does not stop the pool
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.logger.Info("Job scheduler started",
		zap.Int("workers", s.config.Workers),
		zap.Int("queue_size", s.config.QueueSize),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop stops accepting jobs and lets running jobs finish until ctx ends,
// after which they are cancelled. Jobs still queued fail with
// ErrSchedulerNotRunning.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	close(s.quit)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var stopErr error
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("Job scheduler stop timed out, cancelling running jobs")
		s.cancel()
		<-done
		stopErr = ctx.Err()
	}
	s.cancel()

	for {
		select {
		case job := <-s.queue:
			s.complete(context.Background(), job, nil, ErrSchedulerNotRunning)
		default:
			s.logger.Info("Job scheduler stopped")
			return stopErr
		}
	}
}

// IsRunning reports whether the pool accepts jobs
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// SubmitJob queues a job of the given kind
func (s *Scheduler) SubmitJob(ctx context.Context, kind JobKind, payload any) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil, ErrSchedulerNotRunning
	}
	entry, ok := s.kinds[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJobKind, kind)
	}
	s.pruneLocked()

	job := newJob(kind, payload, s.maxRetries(entry.opts), s.now())
	select {
	case s.queue <- job:
	default:
		return nil, ErrJobQueueFull
	}
	s.jobs[job.ID] = job

	s.logger.Debug("Job submitted",
		zap.String("job_id", job.ID.String()),
		zap.String("kind", string(kind)),
	)
	return job, nil
}

// Get returns a job by id while it is retained
func (s *Scheduler) Get(id uuid.UUID) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job, nil
}

func (s *Scheduler) maxRetries(opts KindOptions) int {
	switch {
	case opts.MaxRetries < 0:
		return 0
	case opts.MaxRetries > 0:
		return opts.MaxRetries
	default:
		return s.config.RetryAttempts
	}
}

func (s *Scheduler) pruneLocked() {
	if s.config.Retention <= 0 {
		return
	}
	cutoff := s.now().Add(-s.config.Retention)
	for id, job := range s.jobs {
		if job.terminalBefore(cutoff) {
			delete(s.jobs, id)
		}
	}
}

func (s *Scheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()
	for {
		// a stop wins over queued work
		select {
		case <-s.quit:
			return
		default:
		}
		select {
		case <-s.quit:
			return
		case <-ctx.Done():
			return
		case job := <-s.queue:
			s.processJob(ctx, job, workerID)
		}
	}
}

func (s *Scheduler) processJob(ctx context.Context, job *Job, workerID int) {
	s.mu.RLock()
	entry := s.kinds[job.Kind]
	s.mu.RUnlock()

	job.start(s.now())
	log := s.logger.With(
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("kind", string(job.Kind)),
	)
	log.Debug("Processing job")

	timeout := entry.opts.Timeout
	if timeout <= 0 {
		timeout = s.config.JobTimeout
	}
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	result, err := s.execute(jobCtx, entry.executor, job)
	cancel()

	if err == nil {
		log.Info("Job completed successfully")
		s.complete(ctx, job, result, nil)
		return
	}

	if ctx.Err() == nil && job.retryable() {
		delay := entry.opts.RetryDelay
		if delay <= 0 {
			delay = s.config.RetryDelay
		}
		log.Warn("Job failed, scheduling retry", zap.Error(err), zap.Duration("delay", delay))
		job.requeue(err)
		s.wg.Add(1)
		go s.retryAfter(ctx, job, delay)
		return
	}

	log.Error("Job failed", zap.Error(err))
	s.complete(ctx, job, nil, err)
}

func (s *Scheduler) execute(ctx context.Context, executor JobExecutor, job *Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrJobPanicked, r)
		}
	}()
	return executor.Execute(ctx, job)
}

func (s *Scheduler) retryAfter(ctx context.Context, job *Job, delay time.Duration) {
	defer s.wg.Done()

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-s.quit:
		s.complete(ctx, job, nil, ErrSchedulerNotRunning)
		return
	case <-ctx.Done():
		s.complete(ctx, job, nil, ErrSchedulerNotRunning)
		return
	}

	// completion publishes events whose handlers may submit jobs, so it
	// must run outside the lock
	s.mu.RLock()
	running, enqueued := s.isRunning, false
	if running {
		select {
		case s.queue <- job:
			enqueued = true
		default:
		}
	}
	s.mu.RUnlock()

	switch {
	case !running:
		s.complete(ctx, job, nil, ErrSchedulerNotRunning)
	case !enqueued:
		s.complete(ctx, job, nil, ErrJobQueueFull)
	}
}

// complete finishes the job, publishes its completion event and only then
// releases waiters
func (s *Scheduler) complete(ctx context.Context, job *Job, result any, err error) {
	if !job.finish(result, err, s.now()) {
		return
	}
	if s.publisher != nil {
		if pubErr := s.publisher.Publish(context.WithoutCancel(ctx), NewJobCompletedEvent(job)); pubErr != nil {
			s.logger.Warn("failed to publish job completion",
				zap.String("job_id", job.ID.String()),
				zap.Error(pubErr),
			)
		}
	}
	close(job.done)
}
