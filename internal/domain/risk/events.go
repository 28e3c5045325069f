package risk

import (
	"github.com/google/uuid"
	"github.com/marketplace/fulfillment/internal/domain/shared"
)

// EventTypeAssessmentReviewed is raised when an investigator reviews an assessment
const EventTypeAssessmentReviewed = "risk.assessment.reviewed"

// AssessmentReviewedEvent carries the review outcome
type AssessmentReviewedEvent struct {
	shared.BaseDomainEvent
	AssessmentID uuid.UUID    `json:"assessment_id"`
	SubjectID    string       `json:"subject_id"`
	Status       ReviewStatus `json:"status"`
	ReviewedBy   string       `json:"reviewed_by"`
}

// NewAssessmentReviewedEvent creates an AssessmentReviewedEvent
func NewAssessmentReviewedEvent(a *RiskAssessment) *AssessmentReviewedEvent {
	return &AssessmentReviewedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeAssessmentReviewed, AggregateTypeRiskAssessment, a.ID),
		AssessmentID:    a.ID,
		SubjectID:       a.SubjectID,
		Status:          a.ReviewStatus,
		ReviewedBy:      a.ReviewedBy,
	}
}
