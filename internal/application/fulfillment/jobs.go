package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/marketplace/fulfillment/internal/infrastructure/scheduler"
)

// Job kinds run by the scheduler
const (
	JobKindProcessOrder     scheduler.JobKind = "process_order"
	JobKindArchiveExecution scheduler.JobKind = "archive_execution"
)

// JobQueue submits and looks up background jobs
type JobQueue interface {
	SubmitJob(ctx context.Context, kind scheduler.JobKind, payload any) (*scheduler.Job, error)
	Get(id uuid.UUID) (*scheduler.Job, error)
}

// JobRegistrar is the part of the scheduler that accepts executors
type JobRegistrar interface {
	Register(kind scheduler.JobKind, executor scheduler.JobExecutor, opts scheduler.KindOptions)
}

// JobSettings tunes the archive job retries
type JobSettings struct {
	ArchiveRetries    int
	ArchiveRetryDelay time.Duration
}

// RegisterJobs wires the fulfillment job kinds. Order processing is never
// retried: the executor is not idempotent across whole runs.
func RegisterJobs(r JobRegistrar, executor *Executor, archiver *ExecutionArchiver, settings JobSettings) {
	r.Register(JobKindProcessOrder, ProcessOrderJob(executor), scheduler.KindOptions{MaxRetries: -1})
	if archiver != nil {
		r.Register(JobKindArchiveExecution, archiver, scheduler.KindOptions{
			MaxRetries: settings.ArchiveRetries,
			RetryDelay: settings.ArchiveRetryDelay,
		})
	}
}

// ProcessOrderJob runs a RunRequest payload through the executor
func ProcessOrderJob(executor *Executor) scheduler.JobExecutor {
	return scheduler.ExecutorFunc(func(ctx context.Context, job *scheduler.Job) (any, error) {
		req, ok := job.Payload.(RunRequest)
		if !ok {
			return nil, fmt.Errorf("process_order: unexpected payload %T", job.Payload)
		}
		result, err := executor.Run(ctx, req)
		if err != nil {
			return nil, err
		}
		return result, nil
	})
}

// JobService exposes background job state
type JobService struct {
	queue JobQueue
}

// NewJobService creates a JobService
func NewJobService(queue JobQueue) *JobService {
	return &JobService{queue: queue}
}

// GetJob returns a snapshot of a retained job
func (s *JobService) GetJob(id uuid.UUID) (*scheduler.JobSnapshot, error) {
	job, err := s.queue.Get(id)
	if errors.Is(err, scheduler.ErrJobNotFound) {
		return nil, shared.WrapDomainError(shared.CodeNotFound, fmt.Sprintf("job %s not found", id), err)
	}
	if err != nil {
		return nil, err
	}
	snap := job.Snapshot()
	if r, ok := snap.Result.(*ExecutionResult); ok {
		snap.Result = NewExecutionResultView(r)
	}
	return &snap, nil
}
