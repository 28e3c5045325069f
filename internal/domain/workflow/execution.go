package workflow

import (
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/fulfillment/internal/domain/shared"
)

// AggregateTypeWorkflowExecution is the aggregate type for workflow executions
const AggregateTypeWorkflowExecution = "WorkflowExecution"

// ExecutionStatus is the lifecycle state of a workflow execution
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

// WorkflowExecution records one order-processing attempt.
// It is mutated only by the executor and frozen once terminal.
type WorkflowExecution struct {
	shared.BaseAggregateRoot
	OrderID              string
	WorkflowDefinitionID uuid.UUID
	WorkflowType         WorkflowType
	Status               ExecutionStatus
	StartedAt            time.Time
	EndedAt              *time.Time
	CompletedSteps       int
	TotalSteps           int
	FailedStep           string
	ErrorKind            shared.ErrorKind
	ErrorMessage         string
}

// NewWorkflowExecution starts a running execution for an order
func NewWorkflowExecution(orderID string, def *WorkflowDefinition, now time.Time) *WorkflowExecution {
	exec := &WorkflowExecution{
		BaseAggregateRoot:    shared.NewBaseAggregateRoot(),
		OrderID:              orderID,
		WorkflowDefinitionID: def.ID,
		WorkflowType:         def.WorkflowType,
		Status:               ExecutionStatusRunning,
		StartedAt:            now,
		TotalSteps:           def.StepCount(),
	}
	exec.CreatedAt = now
	exec.UpdatedAt = now
	return exec
}

// RecordStepCompleted counts a successfully completed step
func (e *WorkflowExecution) RecordStepCompleted() error {
	if e.Status.IsTerminal() {
		return shared.ErrInvalidState
	}
	e.CompletedSteps++
	return nil
}

// Complete marks the execution completed
func (e *WorkflowExecution) Complete(now time.Time) error {
	if e.Status.IsTerminal() {
		return shared.ErrInvalidState
	}
	e.Status = ExecutionStatusCompleted
	e.finish(now)
	return nil
}

// Fail marks the execution failed on a required step
func (e *WorkflowExecution) Fail(step string, kind shared.ErrorKind, message string, now time.Time) error {
	if e.Status.IsTerminal() {
		return shared.ErrInvalidState
	}
	e.Status = ExecutionStatusFailed
	e.FailedStep = step
	e.ErrorKind = kind
	e.ErrorMessage = message
	e.finish(now)
	return nil
}

func (e *WorkflowExecution) finish(now time.Time) {
	e.EndedAt = &now
	e.UpdatedAt = now
	e.AddDomainEvent(NewExecutionFinishedEvent(e))
}

// Duration returns the elapsed run time, zero while running
func (e *WorkflowExecution) Duration() time.Duration {
	if e.EndedAt == nil {
		return 0
	}
	return e.EndedAt.Sub(e.StartedAt)
}
