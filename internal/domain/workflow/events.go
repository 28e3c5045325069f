package workflow

import (
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/fulfillment/internal/domain/shared"
)

// Event type constants
const (
	EventTypeExecutionFinished = "workflow.execution.finished"
	EventTypeWorkflowActivated = "workflow.definition.activated"
)

// ExecutionFinishedEvent is raised when an execution reaches a terminal status
type ExecutionFinishedEvent struct {
	shared.BaseDomainEvent
	ExecutionID    uuid.UUID        `json:"execution_id"`
	OrderID        string           `json:"order_id"`
	WorkflowID     uuid.UUID        `json:"workflow_id"`
	WorkflowType   WorkflowType     `json:"workflow_type"`
	Status         ExecutionStatus  `json:"status"`
	CompletedSteps int              `json:"completed_steps"`
	TotalSteps     int              `json:"total_steps"`
	FailedStep     string           `json:"failed_step,omitempty"`
	ErrorKind      shared.ErrorKind `json:"error_kind,omitempty"`
	Duration       time.Duration    `json:"duration"`
}

// NewExecutionFinishedEvent creates an ExecutionFinishedEvent from an execution
func NewExecutionFinishedEvent(e *WorkflowExecution) *ExecutionFinishedEvent {
	return &ExecutionFinishedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeExecutionFinished, AggregateTypeWorkflowExecution, e.ID),
		ExecutionID:     e.ID,
		OrderID:         e.OrderID,
		WorkflowID:      e.WorkflowDefinitionID,
		WorkflowType:    e.WorkflowType,
		Status:          e.Status,
		CompletedSteps:  e.CompletedSteps,
		TotalSteps:      e.TotalSteps,
		FailedStep:      e.FailedStep,
		ErrorKind:       e.ErrorKind,
		Duration:        e.Duration(),
	}
}

// WorkflowActivatedEvent is raised when a definition becomes the active one for its type
type WorkflowActivatedEvent struct {
	shared.BaseDomainEvent
	WorkflowID   uuid.UUID    `json:"workflow_id"`
	WorkflowType WorkflowType `json:"workflow_type"`
	Name         string       `json:"name"`
}

// NewWorkflowActivatedEvent creates a WorkflowActivatedEvent
func NewWorkflowActivatedEvent(d *WorkflowDefinition) *WorkflowActivatedEvent {
	return &WorkflowActivatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeWorkflowActivated, AggregateTypeWorkflowDefinition, d.ID),
		WorkflowID:      d.ID,
		WorkflowType:    d.WorkflowType,
		Name:            d.Name,
	}
}
