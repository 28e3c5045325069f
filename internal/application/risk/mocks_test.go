package risk

import (
	"context"

	"github.com/google/uuid"
	"github.com/marketplace/fulfillment/internal/domain/risk"
	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/stretchr/testify/mock"
)

type mockProfileRepository struct {
	mock.Mock
}

func (m *mockProfileRepository) FindByUserID(ctx context.Context, userID string) (*risk.BehavioralProfile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*risk.BehavioralProfile), args.Error(1)
}

func (m *mockProfileRepository) Save(ctx context.Context, p *risk.BehavioralProfile) error {
	return m.Called(ctx, p).Error(0)
}

type mockAssessmentRepository struct {
	mock.Mock
}

func (m *mockAssessmentRepository) Create(ctx context.Context, a *risk.RiskAssessment) error {
	return m.Called(ctx, a).Error(0)
}

func (m *mockAssessmentRepository) Update(ctx context.Context, a *risk.RiskAssessment) error {
	return m.Called(ctx, a).Error(0)
}

func (m *mockAssessmentRepository) FindByID(ctx context.Context, id uuid.UUID) (*risk.RiskAssessment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*risk.RiskAssessment), args.Error(1)
}

func (m *mockAssessmentRepository) ListBySubject(ctx context.Context, subjectID string, filter shared.Filter) ([]*risk.RiskAssessment, int64, error) {
	args := m.Called(ctx, subjectID, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*risk.RiskAssessment), args.Get(1).(int64), args.Error(2)
}

// fixedScorer returns a preset score regardless of input
type fixedScorer struct {
	source  risk.Source
	score   int
	signals []string
	seen    *risk.BehavioralProfile
}

func (s *fixedScorer) Source() risk.Source { return s.source }

func (s *fixedScorer) Score(_ risk.Transaction, profile *risk.BehavioralProfile) risk.ScoreResult {
	s.seen = profile
	return risk.ScoreResult{Source: s.source, Score: s.score, Signals: s.signals}
}
