package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/marketplace/fulfillment/internal/domain/workflow"
	"github.com/marketplace/fulfillment/internal/infrastructure/logger"
	"github.com/marketplace/fulfillment/internal/infrastructure/scheduler"
	"go.uber.org/zap"
)

// ArchiveStore is the object store finished executions are archived to
type ArchiveStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	PresignDownload(ctx context.Context, key string, expiresIn time.Duration) (string, time.Time, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// ArchiveKey is the object key of an execution archive
func ArchiveKey(orderID string, executionID uuid.UUID) string {
	return fmt.Sprintf("executions/%s/%s.json", orderID, executionID)
}

// ExecutionArchive is the archived document of one execution
type ExecutionArchive struct {
	Execution  *ExecutionView `json:"execution"`
	Log        []StepLogView  `json:"log"`
	ArchivedAt time.Time      `json:"archived_at"`
}

// ArchiveDownload is a time-limited link to an archive
type ArchiveDownload struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type archiveJob struct {
	ExecutionID uuid.UUID
	OrderID     string
}

// ExecutionArchiver writes finished executions and their step log to the
// archive store. It listens for execution finished events and does the
// upload as an archive_execution job so failed uploads are retried.
type ExecutionArchiver struct {
	store      ArchiveStore
	executions workflow.ExecutionRepository
	logs       workflow.StepLogRepository
	queue      JobQueue
	logger     *zap.Logger
	linkTTL    time.Duration
	now        func() time.Time
}

// NewExecutionArchiver creates an ExecutionArchiver. queue may be set later
// with SetQueue when the scheduler is built after the archiver.
func NewExecutionArchiver(store ArchiveStore, executions workflow.ExecutionRepository, logs workflow.StepLogRepository, linkTTL time.Duration, log *zap.Logger) *ExecutionArchiver {
	if log == nil {
		log = zap.NewNop()
	}
	if linkTTL <= 0 {
		linkTTL = 15 * time.Minute
	}
	return &ExecutionArchiver{
		store:      store,
		executions: executions,
		logs:       logs,
		logger:     log,
		linkTTL:    linkTTL,
		now:        time.Now,
	}
}

// SetQueue sets the queue archive jobs are submitted to
func (a *ExecutionArchiver) SetQueue(queue JobQueue) {
	a.queue = queue
}

// EventTypes implements shared.EventHandler
func (a *ExecutionArchiver) EventTypes() []string {
	return []string{workflow.EventTypeExecutionFinished}
}

// Handle implements shared.EventHandler. Without a queue the archive is
// written inline.
func (a *ExecutionArchiver) Handle(ctx context.Context, event shared.DomainEvent) error {
	finished, ok := event.(*workflow.ExecutionFinishedEvent)
	if !ok {
		return nil
	}
	payload := archiveJob{ExecutionID: finished.ExecutionID, OrderID: finished.OrderID}
	if a.queue == nil {
		return a.archive(ctx, payload)
	}
	job, err := a.queue.SubmitJob(ctx, JobKindArchiveExecution, payload)
	if err != nil {
		return fmt.Errorf("submit archive job for execution %s: %w", finished.ExecutionID, err)
	}
	logger.WithLogger(ctx, a.logger).Debug("Archive job submitted",
		zap.String("job_id", job.ID.String()),
		zap.String("execution_id", finished.ExecutionID.String()),
	)
	return nil
}

// Execute implements scheduler.JobExecutor
func (a *ExecutionArchiver) Execute(ctx context.Context, job *scheduler.Job) (any, error) {
	payload, ok := job.Payload.(archiveJob)
	if !ok {
		return nil, fmt.Errorf("archive_execution: unexpected payload %T", job.Payload)
	}
	if err := a.archive(ctx, payload); err != nil {
		return nil, err
	}
	return ArchiveKey(payload.OrderID, payload.ExecutionID), nil
}

// Archive writes the archive of one execution
func (a *ExecutionArchiver) Archive(ctx context.Context, executionID uuid.UUID) (string, error) {
	exec, err := a.executions.FindByID(ctx, executionID)
	if err != nil {
		return "", err
	}
	payload := archiveJob{ExecutionID: exec.ID, OrderID: exec.OrderID}
	if err := a.archive(ctx, payload); err != nil {
		return "", err
	}
	return ArchiveKey(exec.OrderID, exec.ID), nil
}

func (a *ExecutionArchiver) archive(ctx context.Context, job archiveJob) error {
	exec, err := a.executions.FindByID(ctx, job.ExecutionID)
	if err != nil {
		return fmt.Errorf("load execution %s: %w", job.ExecutionID, err)
	}
	if !exec.Status.IsTerminal() {
		return shared.NewDomainError(shared.CodeInvalidState,
			fmt.Sprintf("execution %s is still %s", exec.ID, exec.Status))
	}
	entries, err := a.logs.ListByExecution(ctx, exec.ID)
	if err != nil {
		return fmt.Errorf("load step log of execution %s: %w", exec.ID, err)
	}
	body, err := json.Marshal(ExecutionArchive{
		Execution:  NewExecutionView(exec),
		Log:        NewStepLogViews(entries),
		ArchivedAt: a.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode archive of execution %s: %w", exec.ID, err)
	}
	key := ArchiveKey(exec.OrderID, exec.ID)
	if err := a.store.Put(ctx, key, body, "application/json"); err != nil {
		return shared.WrapDomainError(shared.CodeExternalCall, fmt.Sprintf("upload archive %s", key), err)
	}
	logger.WithLogger(ctx, a.logger).Info("Execution archived",
		zap.String("key", key),
		zap.String("order_id", exec.OrderID),
		zap.Int("entries", len(entries)),
	)
	return nil
}

// DownloadURL returns a presigned link to the archive of an execution
func (a *ExecutionArchiver) DownloadURL(ctx context.Context, executionID uuid.UUID) (*ArchiveDownload, error) {
	exec, err := a.executions.FindByID(ctx, executionID)
	if err != nil {
		return nil, err
	}
	key := ArchiveKey(exec.OrderID, exec.ID)
	exists, err := a.store.Exists(ctx, key)
	if err != nil {
		return nil, shared.WrapDomainError(shared.CodeExternalCall, fmt.Sprintf("look up archive %s", key), err)
	}
	if !exists {
		return nil, shared.NewDomainError(shared.CodeNotFound, fmt.Sprintf("execution %s has not been archived", executionID))
	}
	url, expiresAt, err := a.store.PresignDownload(ctx, key, a.linkTTL)
	if err != nil {
		return nil, shared.WrapDomainError(shared.CodeExternalCall, fmt.Sprintf("presign archive %s", key), err)
	}
	return &ArchiveDownload{Key: key, URL: url, ExpiresAt: expiresAt}, nil
}
