// Package fulfillment runs order fulfillment workflows: the executor, the
// step handlers it dispatches to, and the services and jobs built on them.
package fulfillment

import (
	"context"

	"github.com/google/uuid"
	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/marketplace/fulfillment/internal/domain/workflow"
)

// StepInput is what a handler receives for one step attempt.
// Order and State are private copies; changes to them are discarded.
type StepInput struct {
	OrderID     string
	ExecutionID uuid.UUID
	StepName    string
	Order       *workflow.OrderData
	Config      workflow.StepConfig
	State       *workflow.RunState
}

// StepResult is the outcome of one step attempt. Annotations are stamped
// onto the order by the executor after a successful step.
type StepResult struct {
	Success     bool
	Output      any
	Err         error
	ErrorKind   shared.ErrorKind
	Annotations map[string]string
}

// Succeeded returns a successful result
func Succeeded(output any) StepResult {
	return StepResult{Success: true, Output: output}
}

// Failed returns a failed result classified by the error
func Failed(output any, err error) StepResult {
	return StepResult{Output: output, Err: err, ErrorKind: shared.KindOf(err)}
}

// StepHandler executes one step type
type StepHandler interface {
	Type() workflow.StepType
	Handle(ctx context.Context, in StepInput) StepResult
}

// HandlerFunc adapts a function to StepHandler
type HandlerFunc struct {
	StepType workflow.StepType
	Fn       func(ctx context.Context, in StepInput) StepResult
}

// Type implements StepHandler
func (h HandlerFunc) Type() workflow.StepType { return h.StepType }

// Handle implements StepHandler
func (h HandlerFunc) Handle(ctx context.Context, in StepInput) StepResult { return h.Fn(ctx, in) }
