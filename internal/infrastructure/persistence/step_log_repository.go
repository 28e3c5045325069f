package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/marketplace/fulfillment/internal/domain/workflow"
	"github.com/marketplace/fulfillment/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormStepLogRepository implements the append-only workflow.StepLogRepository.
// Entries are never updated or deleted.
type GormStepLogRepository struct {
	db *gorm.DB
}

// NewGormStepLogRepository creates a new GormStepLogRepository
func NewGormStepLogRepository(db *gorm.DB) *GormStepLogRepository {
	return &GormStepLogRepository{db: db}
}

// Append assigns the next sequence of the execution and inserts the entry.
// The unique (execution_id, sequence) index rejects a racing writer.
func (r *GormStepLogRepository) Append(ctx context.Context, entry *workflow.StepLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last int
		if err := tx.Model(&models.StepLogEntryModel{}).
			Where("execution_id = ?", entry.ExecutionID).
			Select("COALESCE(MAX(sequence), 0)").
			Scan(&last).Error; err != nil {
			return err
		}
		entry.Sequence = last + 1
		return tx.Create(models.StepLogEntryModelFromDomain(entry)).Error
	})
}

// ListByExecution returns the entries of an execution ordered by sequence
func (r *GormStepLogRepository) ListByExecution(ctx context.Context, executionID uuid.UUID) ([]*workflow.StepLogEntry, error) {
	var rows []models.StepLogEntryModel
	if err := r.db.WithContext(ctx).
		Where("execution_id = ?", executionID).
		Order("sequence ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toStepLogEntries(rows), nil
}

// ListByOrder returns the entries of every execution of an order, ordered by
// execution start and then sequence
func (r *GormStepLogRepository) ListByOrder(ctx context.Context, orderID string) ([]*workflow.StepLogEntry, error) {
	var rows []models.StepLogEntryModel
	if err := r.db.WithContext(ctx).
		Select("step_log_entries.*").
		Joins("JOIN workflow_executions ON workflow_executions.id = step_log_entries.execution_id").
		Where("workflow_executions.order_id = ?", orderID).
		Order("workflow_executions.started_at ASC").
		Order("step_log_entries.sequence ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toStepLogEntries(rows), nil
}

func toStepLogEntries(rows []models.StepLogEntryModel) []*workflow.StepLogEntry {
	entries := make([]*workflow.StepLogEntry, len(rows))
	for i := range rows {
		entries[i] = rows[i].ToDomain()
	}
	return entries
}

// Ensure GormStepLogRepository implements workflow.StepLogRepository
var _ workflow.StepLogRepository = (*GormStepLogRepository)(nil)
