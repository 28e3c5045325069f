package workflow

import (
	"context"

	"github.com/google/uuid"
)

// DefinitionFilter narrows a definition listing
type DefinitionFilter struct {
	WorkflowType WorkflowType
	Active       *bool
}

// DefinitionRepository persists workflow definitions
type DefinitionRepository interface {
	// FindByID finds a definition by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*WorkflowDefinition, error)

	// FindActiveByType finds the active definition of a workflow type
	FindActiveByType(ctx context.Context, workflowType WorkflowType) (*WorkflowDefinition, error)

	// List lists definitions matching the filter, newest first
	List(ctx context.Context, filter DefinitionFilter) ([]*WorkflowDefinition, error)

	// Create inserts a definition. When the definition is active the previous
	// active definition of the same type is deactivated in the same transaction.
	Create(ctx context.Context, def *WorkflowDefinition) error

	// Activate makes a definition the active one for its type
	Activate(ctx context.Context, id uuid.UUID) (*WorkflowDefinition, error)

	// Deactivate clears the active flag of a definition
	Deactivate(ctx context.Context, id uuid.UUID) (*WorkflowDefinition, error)

	// Count returns the number of stored definitions
	Count(ctx context.Context) (int64, error)
}

// ExecutionRepository persists workflow execution summaries
type ExecutionRepository interface {
	Create(ctx context.Context, exec *WorkflowExecution) error
	Update(ctx context.Context, exec *WorkflowExecution) error
	FindByID(ctx context.Context, id uuid.UUID) (*WorkflowExecution, error)
	// ListByOrder lists executions of an order ordered by start time
	ListByOrder(ctx context.Context, orderID string) ([]*WorkflowExecution, error)
	// FindLatestByOrder returns the most recently started execution of an order
	FindLatestByOrder(ctx context.Context, orderID string) (*WorkflowExecution, error)
}

// StepLogRepository is the append-only execution log store
type StepLogRepository interface {
	// Append stores an entry and assigns it the next sequence of its execution
	Append(ctx context.Context, entry *StepLogEntry) error

	// ListByExecution returns the entries of an execution ordered by sequence
	ListByExecution(ctx context.Context, executionID uuid.UUID) ([]*StepLogEntry, error)

	// ListByOrder returns the entries of every execution of an order,
	// ordered by execution start and then sequence
	ListByOrder(ctx context.Context, orderID string) ([]*StepLogEntry, error)
}
