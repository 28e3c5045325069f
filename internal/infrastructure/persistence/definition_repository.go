package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/marketplace/fulfillment/internal/domain/workflow"
	"github.com/marketplace/fulfillment/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormDefinitionRepository implements workflow.DefinitionRepository using GORM
type GormDefinitionRepository struct {
	db *gorm.DB
}

// NewGormDefinitionRepository creates a new GormDefinitionRepository
func NewGormDefinitionRepository(db *gorm.DB) *GormDefinitionRepository {
	return &GormDefinitionRepository{db: db}
}

// FindByID finds a definition by its ID
func (r *GormDefinitionRepository) FindByID(ctx context.Context, id uuid.UUID) (*workflow.WorkflowDefinition, error) {
	return r.findByID(r.db.WithContext(ctx), id)
}

func (r *GormDefinitionRepository) findByID(db *gorm.DB, id uuid.UUID) (*workflow.WorkflowDefinition, error) {
	var model models.WorkflowDefinitionModel
	if err := db.Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// FindActiveByType finds the active definition of a workflow type
func (r *GormDefinitionRepository) FindActiveByType(ctx context.Context, workflowType workflow.WorkflowType) (*workflow.WorkflowDefinition, error) {
	var model models.WorkflowDefinitionModel
	err := r.db.WithContext(ctx).
		Where("workflow_type = ? AND active = ?", workflowType, true).
		Order("created_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// List lists definitions matching the filter, newest first
func (r *GormDefinitionRepository) List(ctx context.Context, filter workflow.DefinitionFilter) ([]*workflow.WorkflowDefinition, error) {
	query := r.db.WithContext(ctx).Model(&models.WorkflowDefinitionModel{})
	if filter.WorkflowType != "" {
		query = query.Where("workflow_type = ?", filter.WorkflowType)
	}
	if filter.Active != nil {
		query = query.Where("active = ?", *filter.Active)
	}

	var rows []models.WorkflowDefinitionModel
	if err := query.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}

	defs := make([]*workflow.WorkflowDefinition, 0, len(rows))
	for i := range rows {
		def, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Create inserts a definition, deactivating the previous active definition of
// the same type in the same transaction when the new one is active.
func (r *GormDefinitionRepository) Create(ctx context.Context, def *workflow.WorkflowDefinition) error {
	model, err := models.WorkflowDefinitionModelFromDomain(def)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if def.Active {
			if err := deactivateType(tx, def.WorkflowType, uuid.Nil); err != nil {
				return err
			}
		}
		return tx.Create(model).Error
	})
}

// Activate makes a definition the active one for its type
func (r *GormDefinitionRepository) Activate(ctx context.Context, id uuid.UUID) (*workflow.WorkflowDefinition, error) {
	var out *workflow.WorkflowDefinition
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		def, err := r.findByID(tx, id)
		if err != nil {
			return err
		}
		if !def.Active {
			if err := deactivateType(tx, def.WorkflowType, id); err != nil {
				return err
			}
			if err := setActive(tx, id, true); err != nil {
				return err
			}
		}
		out, err = r.findByID(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Deactivate clears the active flag of a definition
func (r *GormDefinitionRepository) Deactivate(ctx context.Context, id uuid.UUID) (*workflow.WorkflowDefinition, error) {
	var out *workflow.WorkflowDefinition
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		def, err := r.findByID(tx, id)
		if err != nil {
			return err
		}
		if def.Active {
			if err := setActive(tx, id, false); err != nil {
				return err
			}
		}
		out, err = r.findByID(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of stored definitions
func (r *GormDefinitionRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.WorkflowDefinitionModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func deactivateType(tx *gorm.DB, workflowType workflow.WorkflowType, except uuid.UUID) error {
	return tx.Model(&models.WorkflowDefinitionModel{}).
		Where("workflow_type = ? AND active = ? AND id <> ?", workflowType, true, except).
		Updates(map[string]any{
			"active":     false,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now(),
		}).Error
}

func setActive(tx *gorm.DB, id uuid.UUID, active bool) error {
	result := tx.Model(&models.WorkflowDefinitionModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"active":     active,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Ensure GormDefinitionRepository implements workflow.DefinitionRepository
var _ workflow.DefinitionRepository = (*GormDefinitionRepository)(nil)
