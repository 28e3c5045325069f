package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/marketplace/fulfillment/internal/domain/workflow"
	"github.com/marketplace/fulfillment/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormExecutionRepository implements workflow.ExecutionRepository using GORM
type GormExecutionRepository struct {
	db *gorm.DB
}

// NewGormExecutionRepository creates a new GormExecutionRepository
func NewGormExecutionRepository(db *gorm.DB) *GormExecutionRepository {
	return &GormExecutionRepository{db: db}
}

// Create inserts a new execution summary
func (r *GormExecutionRepository) Create(ctx context.Context, exec *workflow.WorkflowExecution) error {
	return r.db.WithContext(ctx).Create(models.WorkflowExecutionModelFromDomain(exec)).Error
}

// Update saves the mutable fields of an execution. A terminal execution
// in the store is never overwritten.
func (r *GormExecutionRepository) Update(ctx context.Context, exec *workflow.WorkflowExecution) error {
	result := r.db.WithContext(ctx).
		Model(&models.WorkflowExecutionModel{}).
		Where("id = ? AND status = ?", exec.ID, workflow.ExecutionStatusRunning).
		Updates(map[string]any{
			"status":          exec.Status,
			"ended_at":        exec.EndedAt,
			"completed_steps": exec.CompletedSteps,
			"failed_step":     exec.FailedStep,
			"error_kind":      exec.ErrorKind,
			"error_message":   exec.ErrorMessage,
			"version":         gorm.Expr("version + 1"),
			"updated_at":      exec.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrInvalidState
	}
	exec.IncrementVersion()
	return nil
}

// FindByID finds an execution by its ID
func (r *GormExecutionRepository) FindByID(ctx context.Context, id uuid.UUID) (*workflow.WorkflowExecution, error) {
	var model models.WorkflowExecutionModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListByOrder lists executions of an order ordered by start time
func (r *GormExecutionRepository) ListByOrder(ctx context.Context, orderID string) ([]*workflow.WorkflowExecution, error) {
	var rows []models.WorkflowExecutionModel
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("started_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	execs := make([]*workflow.WorkflowExecution, len(rows))
	for i := range rows {
		execs[i] = rows[i].ToDomain()
	}
	return execs, nil
}

// FindLatestByOrder returns the most recently started execution of an order
func (r *GormExecutionRepository) FindLatestByOrder(ctx context.Context, orderID string) (*workflow.WorkflowExecution, error) {
	var model models.WorkflowExecutionModel
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("started_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Ensure GormExecutionRepository implements workflow.ExecutionRepository
var _ workflow.ExecutionRepository = (*GormExecutionRepository)(nil)
