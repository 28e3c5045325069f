package workflow

import (
	"fmt"
	"strings"

	"github.com/marketplace/fulfillment/internal/domain/shared"
)

// AggregateTypeWorkflowDefinition is the aggregate type for workflow definitions
const AggregateTypeWorkflowDefinition = "WorkflowDefinition"

// WorkflowDefinition is a named, ordered list of steps for a workflow type.
// Definitions are never edited in place; a change produces a new definition.
type WorkflowDefinition struct {
	shared.BaseAggregateRoot
	Name         string
	WorkflowType WorkflowType
	Steps        []StepSpec
	Active       bool
}

// NewWorkflowDefinition creates and validates a workflow definition
func NewWorkflowDefinition(name string, workflowType WorkflowType, steps []StepSpec, active bool) (*WorkflowDefinition, error) {
	def := &WorkflowDefinition{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Name:              strings.TrimSpace(name),
		WorkflowType:      workflowType,
		Steps:             append([]StepSpec(nil), steps...),
		Active:            active,
	}
	if def.Name == "" {
		def.Name = fmt.Sprintf("%s-default", workflowType)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// Validate checks the definition type, step names, step types and configs
func (d *WorkflowDefinition) Validate() error {
	if !d.WorkflowType.IsValid() {
		return shared.NewDomainError(shared.CodeValidation, fmt.Sprintf("unknown workflow type %q", d.WorkflowType))
	}
	if len(d.Steps) == 0 {
		return shared.NewDomainError(shared.CodeValidation, "workflow must have at least one step")
	}
	seen := make(map[string]struct{}, len(d.Steps))
	for i, step := range d.Steps {
		if strings.TrimSpace(step.Name) == "" {
			return shared.NewDomainError(shared.CodeValidation, fmt.Sprintf("steps[%d]: name is required", i))
		}
		if _, dup := seen[step.Name]; dup {
			return shared.NewDomainError(shared.CodeValidation, fmt.Sprintf("duplicate step name %q", step.Name))
		}
		seen[step.Name] = struct{}{}
		if !step.Type.IsValid() {
			return shared.NewDomainError(shared.CodeValidation, fmt.Sprintf("step %q: unknown step type %q", step.Name, step.Type))
		}
		if step.Config == nil {
			cfg, err := DefaultStepConfig(step.Type)
			if err != nil {
				return err
			}
			d.Steps[i].Config = cfg
		} else if step.Config.StepType() != step.Type {
			return shared.NewDomainError(shared.CodeValidation,
				fmt.Sprintf("step %q: config for %q does not match step type %q", step.Name, step.Config.StepType(), step.Type))
		}
	}
	return nil
}

// Activate marks the definition as the active one for its type
func (d *WorkflowDefinition) Activate() {
	if d.Active {
		return
	}
	d.Active = true
	d.Touch()
	d.AddDomainEvent(NewWorkflowActivatedEvent(d))
}

// Deactivate clears the active flag
func (d *WorkflowDefinition) Deactivate() {
	if !d.Active {
		return
	}
	d.Active = false
	d.Touch()
}

// StepCount returns the number of steps
func (d *WorkflowDefinition) StepCount() int {
	return len(d.Steps)
}
