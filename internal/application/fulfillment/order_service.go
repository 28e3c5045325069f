package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/marketplace/fulfillment/internal/domain/workflow"
	"github.com/marketplace/fulfillment/internal/infrastructure/scheduler"
)

// OrderStatus is the latest execution of an order and the step log of
// every execution of it
type OrderStatus struct {
	OrderID         string         `json:"order_id"`
	LatestExecution *ExecutionView `json:"latest_execution"`
	Executions      int            `json:"executions"`
	Logs            []StepLogView  `json:"workflow_logs"`
}

// OrderService is the entry point for processing orders
type OrderService struct {
	executor   *Executor
	executions workflow.ExecutionRepository
	logs       workflow.StepLogRepository
	queue      JobQueue
}

// NewOrderService creates an OrderService. With a nil queue orders run on
// the calling goroutine.
func NewOrderService(executor *Executor, executions workflow.ExecutionRepository, logs workflow.StepLogRepository, queue JobQueue) *OrderService {
	return &OrderService{
		executor:   executor,
		executions: executions,
		logs:       logs,
		queue:      queue,
	}
}

// ProcessOrder runs the order through its workflow and waits for the result
func (s *OrderService) ProcessOrder(ctx context.Context, req RunRequest) (*ExecutionResult, error) {
	if s.queue == nil {
		return s.executor.Run(ctx, req)
	}
	job, err := s.submit(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := job.Wait(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, shared.WrapDomainError(shared.CodeTimedOut,
				fmt.Sprintf("order %s still processing as job %s", req.OrderID, job.ID), err)
		}
		return nil, err
	}
	result, ok := job.Result().(*ExecutionResult)
	if !ok {
		return nil, shared.NewDomainError(shared.CodeComputation, fmt.Sprintf("job %s returned no execution result", job.ID))
	}
	return result, nil
}

// SubmitOrder queues the order and returns the job without waiting
func (s *OrderService) SubmitOrder(ctx context.Context, req RunRequest) (*scheduler.JobSnapshot, error) {
	if s.queue == nil {
		return nil, shared.NewDomainError(shared.CodeConfiguration, "asynchronous processing is not enabled")
	}
	job, err := s.submit(ctx, req)
	if err != nil {
		return nil, err
	}
	snap := job.Snapshot()
	return &snap, nil
}

func (s *OrderService) submit(ctx context.Context, req RunRequest) (*scheduler.Job, error) {
	if req.OrderID == "" {
		return nil, shared.NewDomainError(shared.CodeValidation, "order_id is required")
	}
	if req.Order == nil {
		return nil, shared.NewDomainError(shared.CodeValidation, "order data is required")
	}
	if err := req.Order.Validate(); err != nil {
		return nil, err
	}
	job, err := s.queue.SubmitJob(ctx, JobKindProcessOrder, req)
	switch {
	case errors.Is(err, scheduler.ErrJobQueueFull):
		return nil, shared.WrapDomainError(shared.CodeLimitExceeded, "order queue is full", err)
	case errors.Is(err, scheduler.ErrSchedulerNotRunning):
		return nil, shared.WrapDomainError(shared.CodeConfiguration, "order queue is not running", err)
	case err != nil:
		return nil, err
	}
	return job, nil
}

// GetOrderStatus returns the latest execution of an order with its log
func (s *OrderService) GetOrderStatus(ctx context.Context, orderID string) (*OrderStatus, error) {
	executions, err := s.executions.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(executions) == 0 {
		return nil, shared.NewDomainError(shared.CodeNotFound, fmt.Sprintf("no executions for order %s", orderID))
	}
	entries, err := s.logs.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &OrderStatus{
		OrderID:         orderID,
		LatestExecution: NewExecutionView(executions[len(executions)-1]),
		Executions:      len(executions),
		Logs:            NewStepLogViews(entries),
	}, nil
}
