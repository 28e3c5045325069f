package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/fulfillment/internal/domain/shared"
)

// JobStatus represents the status of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether the job will not run again
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// JobKind selects the executor of a job
type JobKind string

// Job is one unit of queued work. Its state is safe to read concurrently
// through Snapshot while a worker runs it.
type Job struct {
	ID      uuid.UUID
	Kind    JobKind
	Payload any

	mu          sync.RWMutex
	status      JobStatus
	result      any
	err         error
	attempts    int
	maxRetries  int
	createdAt   time.Time
	startedAt   *time.Time
	completedAt *time.Time
	done        chan struct{}
}

func newJob(kind JobKind, payload any, maxRetries int, now time.Time) *Job {
	return &Job{
		ID:         uuid.New(),
		Kind:       kind,
		Payload:    payload,
		status:     JobStatusPending,
		maxRetries: maxRetries,
		createdAt:  now,
		done:       make(chan struct{}),
	}
}

// Wait blocks until the job reaches a terminal status or ctx ends. It
// returns the job's final error, nil on success.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		j.mu.RLock()
		defer j.mu.RUnlock()
		return j.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the job reaches a terminal status
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Result returns the executor's result once the job succeeded
func (j *Job) Result() any {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.result
}

// JobSnapshot is a point-in-time copy of a job's state
type JobSnapshot struct {
	ID          uuid.UUID  `json:"id"`
	Kind        JobKind    `json:"kind"`
	Status      JobStatus  `json:"status"`
	Attempts    int        `json:"attempts"`
	MaxRetries  int        `json:"max_retries"`
	Error       string     `json:"error,omitempty"`
	Result      any        `json:"result,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Snapshot copies the job state
func (j *Job) Snapshot() JobSnapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	s := JobSnapshot{
		ID:          j.ID,
		Kind:        j.Kind,
		Status:      j.status,
		Attempts:    j.attempts,
		MaxRetries:  j.maxRetries,
		Result:      j.result,
		CreatedAt:   j.createdAt,
		StartedAt:   j.startedAt,
		CompletedAt: j.completedAt,
	}
	if j.err != nil {
		s.Error = j.err.Error()
	}
	return s
}

func (j *Job) start(now time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = JobStatusRunning
	j.attempts++
	j.startedAt = &now
	j.err = nil
}

// retryable reports whether a failed attempt may run again
func (j *Job) retryable() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.attempts <= j.maxRetries
}

func (j *Job) requeue(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = JobStatusPending
	j.err = err
}

// finish records the terminal state. It reports false when the job was
// already terminal.
func (j *Job) finish(result any, err error, now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.IsTerminal() {
		return false
	}
	if err != nil {
		j.status = JobStatusFailed
	} else {
		j.status = JobStatusSucceeded
	}
	j.result = result
	j.err = err
	j.completedAt = &now
	return true
}

func (j *Job) terminalBefore(cutoff time.Time) bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.completedAt != nil && j.completedAt.Before(cutoff)
}

// EventTypeJobCompleted is published when a job reaches a terminal status
const EventTypeJobCompleted = "job.completed"

// AggregateTypeJob is the aggregate type of job events
const AggregateTypeJob = "Job"

// JobCompletedEvent carries the final state of a job
type JobCompletedEvent struct {
	shared.BaseDomainEvent
	JobID    uuid.UUID `json:"job_id"`
	Kind     JobKind   `json:"kind"`
	Status   JobStatus `json:"status"`
	Attempts int       `json:"attempts"`
	Error    string    `json:"error,omitempty"`
}

// NewJobCompletedEvent builds the completion event of a terminal job
func NewJobCompletedEvent(j *Job) *JobCompletedEvent {
	s := j.Snapshot()
	return &JobCompletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeJobCompleted, AggregateTypeJob, j.ID),
		JobID:           j.ID,
		Kind:            j.Kind,
		Status:          s.Status,
		Attempts:        s.Attempts,
		Error:           s.Error,
	}
}
