package risk

import (
	"context"

	"github.com/google/uuid"
	"github.com/marketplace/fulfillment/internal/domain/shared"
)

// AssessmentRepository persists risk assessments
type AssessmentRepository interface {
	Create(ctx context.Context, a *RiskAssessment) error
	// Update saves review fields with optimistic locking on Version
	Update(ctx context.Context, a *RiskAssessment) error
	FindByID(ctx context.Context, id uuid.UUID) (*RiskAssessment, error)
	// ListBySubject lists a subject's assessments, newest first
	ListBySubject(ctx context.Context, subjectID string, filter shared.Filter) ([]*RiskAssessment, int64, error)
}

// ProfileRepository reads and writes behavioral profiles
type ProfileRepository interface {
	// FindByUserID returns shared.ErrNotFound when the user has no profile
	FindByUserID(ctx context.Context, userID string) (*BehavioralProfile, error)
	// Save inserts or replaces a profile
	Save(ctx context.Context, p *BehavioralProfile) error
}
