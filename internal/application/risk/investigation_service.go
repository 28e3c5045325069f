package risk

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/fulfillment/internal/domain/risk"
	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/marketplace/fulfillment/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// ReviewInput is an investigator's verdict on an assessment
type ReviewInput struct {
	Reviewer string
	Notes    string
}

// AssessmentList is one page of a subject's assessments
type AssessmentList struct {
	Items    []*risk.RiskAssessment
	Total    int64
	Page     int
	PageSize int
}

// InvestigationService serves fraud investigation queries and records
// reviews. Reviews never change how future transactions are scored.
type InvestigationService struct {
	assessments risk.AssessmentRepository
	publisher   shared.EventPublisher
	logger      *zap.Logger
	now         func() time.Time
}

// NewInvestigationService creates an InvestigationService
func NewInvestigationService(assessments risk.AssessmentRepository, log *zap.Logger) *InvestigationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &InvestigationService{assessments: assessments, logger: log, now: time.Now}
}

// SetEventPublisher publishes review events
func (s *InvestigationService) SetEventPublisher(p shared.EventPublisher) {
	s.publisher = p
}

// GetAssessment returns one assessment
func (s *InvestigationService) GetAssessment(ctx context.Context, id uuid.UUID) (*risk.RiskAssessment, error) {
	return s.assessments.FindByID(ctx, id)
}

// ListBySubject lists a subject's assessments, newest first
func (s *InvestigationService) ListBySubject(ctx context.Context, subjectID string, page, pageSize int) (*AssessmentList, error) {
	if subjectID == "" {
		return nil, shared.NewDomainError(shared.CodeValidation, "subject_id is required")
	}
	filter := shared.DefaultFilter()
	if page > 0 {
		filter.Page = page
	}
	if pageSize > 0 {
		filter.PageSize = pageSize
	}
	items, total, err := s.assessments.ListBySubject(ctx, subjectID, filter)
	if err != nil {
		return nil, err
	}
	return &AssessmentList{Items: items, Total: total, Page: filter.Page, PageSize: filter.PageSize}, nil
}

// MarkFalsePositive records that a flagged transaction was legitimate
func (s *InvestigationService) MarkFalsePositive(ctx context.Context, id uuid.UUID, in ReviewInput) (*risk.RiskAssessment, error) {
	return s.review(ctx, id, func(a *risk.RiskAssessment) error {
		return a.MarkFalsePositive(in.Reviewer, in.Notes, s.now())
	})
}

// ConfirmFraud records that a flagged transaction was fraudulent
func (s *InvestigationService) ConfirmFraud(ctx context.Context, id uuid.UUID, in ReviewInput) (*risk.RiskAssessment, error) {
	return s.review(ctx, id, func(a *risk.RiskAssessment) error {
		return a.ConfirmFraud(in.Reviewer, in.Notes, s.now())
	})
}

func (s *InvestigationService) review(ctx context.Context, id uuid.UUID, apply func(*risk.RiskAssessment) error) (*risk.RiskAssessment, error) {
	assessment, err := s.assessments.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := apply(assessment); err != nil {
		return nil, err
	}
	if err := s.assessments.Update(ctx, assessment); err != nil {
		return nil, err
	}

	logger.WithLogger(ctx, s.logger).Info("Risk assessment reviewed",
		zap.String("assessment_id", id.String()),
		zap.String("status", string(assessment.ReviewStatus)),
		zap.String("reviewed_by", assessment.ReviewedBy),
	)
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, assessment.GetDomainEvents()...); err != nil {
			logger.WithLogger(ctx, s.logger).Warn("failed to publish review event", zap.Error(err))
		}
	}
	assessment.ClearDomainEvents()
	return assessment, nil
}
