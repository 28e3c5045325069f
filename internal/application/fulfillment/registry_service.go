package fulfillment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/marketplace/fulfillment/internal/domain/workflow"
	"github.com/marketplace/fulfillment/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// CreateWorkflowCommand describes a new workflow definition
type CreateWorkflowCommand struct {
	Name         string
	WorkflowType workflow.WorkflowType
	Steps        []workflow.StepSpec
	Active       bool
}

// WorkflowService manages workflow definitions
type WorkflowService struct {
	definitions workflow.DefinitionRepository
	handlers    *HandlerRegistry
	publisher   shared.EventPublisher
	logger      *zap.Logger
}

// NewWorkflowService creates a WorkflowService. When handlers is set,
// definitions naming a step type without a registered handler are rejected.
func NewWorkflowService(definitions workflow.DefinitionRepository, handlers *HandlerRegistry, publisher shared.EventPublisher, log *zap.Logger) *WorkflowService {
	if log == nil {
		log = zap.NewNop()
	}
	return &WorkflowService{
		definitions: definitions,
		handlers:    handlers,
		publisher:   publisher,
		logger:      log,
	}
}

// CreateWorkflow validates and stores a definition. An active definition
// replaces the active one of its type.
func (s *WorkflowService) CreateWorkflow(ctx context.Context, cmd CreateWorkflowCommand) (*workflow.WorkflowDefinition, error) {
	def, err := workflow.NewWorkflowDefinition(cmd.Name, cmd.WorkflowType, cmd.Steps, false)
	if err != nil {
		return nil, err
	}
	if s.handlers != nil {
		for _, step := range def.Steps {
			if _, err := s.handlers.Get(step.Type); err != nil {
				return nil, err
			}
		}
	}
	if cmd.Active {
		def.Activate()
	}
	if err := s.definitions.Create(ctx, def); err != nil {
		return nil, fmt.Errorf("create workflow definition: %w", err)
	}
	s.publish(ctx, def)

	logger.WithLogger(ctx, s.logger).Info("Workflow definition created",
		zap.String("workflow_id", def.ID.String()),
		zap.String("workflow_type", string(def.WorkflowType)),
		zap.Int("steps", def.StepCount()),
		zap.Bool("active", def.Active),
	)
	return def, nil
}

// ListWorkflows lists definitions matching the filter
func (s *WorkflowService) ListWorkflows(ctx context.Context, filter workflow.DefinitionFilter) ([]*workflow.WorkflowDefinition, error) {
	if filter.WorkflowType != "" && !filter.WorkflowType.IsValid() {
		return nil, shared.NewDomainError(shared.CodeValidation, fmt.Sprintf("unknown workflow type %q", filter.WorkflowType))
	}
	return s.definitions.List(ctx, filter)
}

// GetWorkflow returns a definition by id
func (s *WorkflowService) GetWorkflow(ctx context.Context, id uuid.UUID) (*workflow.WorkflowDefinition, error) {
	return s.definitions.FindByID(ctx, id)
}

// ActivateWorkflow makes a definition the active one of its type
func (s *WorkflowService) ActivateWorkflow(ctx context.Context, id uuid.UUID) (*workflow.WorkflowDefinition, error) {
	current, err := s.definitions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	def, err := s.definitions.Activate(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Active {
		current.Activate()
		s.publish(ctx, current)
		logger.WithLogger(ctx, s.logger).Info("Workflow definition activated",
			zap.String("workflow_id", id.String()),
			zap.String("workflow_type", string(def.WorkflowType)),
		)
	}
	return def, nil
}

// DeactivateWorkflow clears the active flag of a definition
func (s *WorkflowService) DeactivateWorkflow(ctx context.Context, id uuid.UUID) (*workflow.WorkflowDefinition, error) {
	return s.definitions.Deactivate(ctx, id)
}

// SeedDefaults stores the built-in definitions when none exist. It reports
// how many were created.
func (s *WorkflowService) SeedDefaults(ctx context.Context) (int, error) {
	count, err := s.definitions.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count workflow definitions: %w", err)
	}
	if count > 0 {
		return 0, nil
	}
	defs, err := workflow.DefaultDefinitions()
	if err != nil {
		return 0, err
	}
	for _, def := range defs {
		if err := s.definitions.Create(ctx, def); err != nil {
			return 0, fmt.Errorf("seed %s workflow: %w", def.WorkflowType, err)
		}
		def.ClearDomainEvents()
	}
	logger.WithLogger(ctx, s.logger).Info("Default workflow definitions seeded", zap.Int("count", len(defs)))
	return len(defs), nil
}

func (s *WorkflowService) publish(ctx context.Context, def *workflow.WorkflowDefinition) {
	events := def.GetDomainEvents()
	def.ClearDomainEvents()
	if s.publisher == nil || len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		logger.WithLogger(ctx, s.logger).Warn("failed to publish workflow events", zap.Error(err))
	}
}
