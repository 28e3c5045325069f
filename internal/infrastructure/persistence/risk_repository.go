package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/marketplace/fulfillment/internal/domain/risk"
	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/marketplace/fulfillment/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormAssessmentRepository implements risk.AssessmentRepository using GORM
type GormAssessmentRepository struct {
	db *gorm.DB
}

// NewGormAssessmentRepository creates a new GormAssessmentRepository
func NewGormAssessmentRepository(db *gorm.DB) *GormAssessmentRepository {
	return &GormAssessmentRepository{db: db}
}

// Create inserts a new assessment
func (r *GormAssessmentRepository) Create(ctx context.Context, a *risk.RiskAssessment) error {
	return r.db.WithContext(ctx).Create(models.RiskAssessmentModelFromDomain(a)).Error
}

// Update saves the review fields with optimistic locking on Version.
// Scores and signals are immutable after creation.
func (r *GormAssessmentRepository) Update(ctx context.Context, a *risk.RiskAssessment) error {
	result := r.db.WithContext(ctx).
		Model(&models.RiskAssessmentModel{}).
		Where("id = ? AND version = ?", a.ID, a.Version).
		Updates(map[string]any{
			"review_status": a.ReviewStatus,
			"reviewed_by":   a.ReviewedBy,
			"reviewed_at":   a.ReviewedAt,
			"review_notes":  a.ReviewNotes,
			"version":       gorm.Expr("version + 1"),
			"updated_at":    a.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	a.IncrementVersion()
	return nil
}

// FindByID finds an assessment by its ID
func (r *GormAssessmentRepository) FindByID(ctx context.Context, id uuid.UUID) (*risk.RiskAssessment, error) {
	var model models.RiskAssessmentModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// ListBySubject lists a subject's assessments with paging and the total count
func (r *GormAssessmentRepository) ListBySubject(ctx context.Context, subjectID string, filter shared.Filter) ([]*risk.RiskAssessment, int64, error) {
	base := r.db.WithContext(ctx).Model(&models.RiskAssessmentModel{}).Where("subject_id = ?", subjectID)
	if status, ok := filter.Filters["review_status"].(string); ok && status != "" {
		base = base.Where("review_status = ?", status)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.RiskAssessmentModel
	if err := paginate(base, filter, AssessmentSortFields, "created_at").Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	out := make([]*risk.RiskAssessment, 0, len(rows))
	for i := range rows {
		a, err := rows[i].ToDomain()
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, nil
}

// GormProfileRepository implements risk.ProfileRepository using GORM
type GormProfileRepository struct {
	db *gorm.DB
}

// NewGormProfileRepository creates a new GormProfileRepository
func NewGormProfileRepository(db *gorm.DB) *GormProfileRepository {
	return &GormProfileRepository{db: db}
}

// FindByUserID returns shared.ErrNotFound when the user has no profile
func (r *GormProfileRepository) FindByUserID(ctx context.Context, userID string) (*risk.BehavioralProfile, error) {
	var model models.BehavioralProfileModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// Save inserts or replaces a profile
func (r *GormProfileRepository) Save(ctx context.Context, p *risk.BehavioralProfile) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
		}).
		Create(models.BehavioralProfileModelFromDomain(p)).Error
}

// Ensure the repositories implement their domain ports
var (
	_ risk.AssessmentRepository = (*GormAssessmentRepository)(nil)
	_ risk.ProfileRepository    = (*GormProfileRepository)(nil)
)
