package risk

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/marketplace/fulfillment/internal/domain/risk"
	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	events []shared.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.events = append(p.events, events...)
	return nil
}

func flaggedAssessment() *risk.RiskAssessment {
	return risk.NewRiskAssessment("cust-1", "ord-1", []risk.ScoreResult{
		{Source: risk.SourceRule, Score: 75, Signals: []string{risk.SignalAmountSpike}},
	}, noon)
}

func TestInvestigationService_MarkFalsePositive(t *testing.T) {
	repo := &mockAssessmentRepository{}
	a := flaggedAssessment()
	repo.On("FindByID", mock.Anything, a.ID).Return(a, nil)
	repo.On("Update", mock.Anything, a).Return(nil).Once()

	publisher := &recordingPublisher{}
	svc := NewInvestigationService(repo, nil)
	svc.SetEventPublisher(publisher)

	got, err := svc.MarkFalsePositive(context.Background(), a.ID, ReviewInput{Reviewer: "analyst-7", Notes: "known customer"})
	require.NoError(t, err)
	assert.Equal(t, risk.ReviewStatusFalsePositive, got.ReviewStatus)
	assert.Equal(t, "analyst-7", got.ReviewedBy)
	assert.NotNil(t, got.ReviewedAt)
	assert.Equal(t, 75, got.Score, "reviews do not rescore")
	require.Len(t, publisher.events, 1)
	assert.Equal(t, risk.EventTypeAssessmentReviewed, publisher.events[0].EventType())
	assert.Empty(t, got.GetDomainEvents())

	_, err = svc.ConfirmFraud(context.Background(), a.ID, ReviewInput{Reviewer: "analyst-8"})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrInvalidState)
	assert.Equal(t, risk.ReviewStatusFalsePositive, a.ReviewStatus, "first verdict stands")
	repo.AssertNumberOfCalls(t, "Update", 1)
}

func TestInvestigationService_ConfirmFraud(t *testing.T) {
	repo := &mockAssessmentRepository{}
	a := flaggedAssessment()
	repo.On("FindByID", mock.Anything, a.ID).Return(a, nil)
	repo.On("Update", mock.Anything, a).Return(nil)

	svc := NewInvestigationService(repo, nil)
	got, err := svc.ConfirmFraud(context.Background(), a.ID, ReviewInput{Reviewer: "analyst-7"})
	require.NoError(t, err)
	assert.Equal(t, risk.ReviewStatusConfirmedFraud, got.ReviewStatus)
}

func TestInvestigationService_ReviewErrors(t *testing.T) {
	t.Run("missing reviewer", func(t *testing.T) {
		repo := &mockAssessmentRepository{}
		a := flaggedAssessment()
		repo.On("FindByID", mock.Anything, a.ID).Return(a, nil)

		_, err := NewInvestigationService(repo, nil).MarkFalsePositive(context.Background(), a.ID, ReviewInput{})
		assert.Equal(t, shared.KindValidation, shared.KindOf(err))
		repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("unknown assessment", func(t *testing.T) {
		repo := &mockAssessmentRepository{}
		id := uuid.New()
		repo.On("FindByID", mock.Anything, id).Return(nil, shared.ErrNotFound)

		_, err := NewInvestigationService(repo, nil).ConfirmFraud(context.Background(), id, ReviewInput{Reviewer: "a"})
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestInvestigationService_ListBySubject(t *testing.T) {
	t.Run("requires a subject", func(t *testing.T) {
		_, err := NewInvestigationService(&mockAssessmentRepository{}, nil).ListBySubject(context.Background(), "", 1, 10)
		assert.Equal(t, shared.KindValidation, shared.KindOf(err))
	})

	t.Run("applies paging", func(t *testing.T) {
		repo := &mockAssessmentRepository{}
		items := []*risk.RiskAssessment{flaggedAssessment(), flaggedAssessment()}
		repo.On("ListBySubject", mock.Anything, "cust-1", mock.MatchedBy(func(f shared.Filter) bool {
			return f.Page == 2 && f.PageSize == 2
		})).Return(items, int64(5), nil)

		list, err := NewInvestigationService(repo, nil).ListBySubject(context.Background(), "cust-1", 2, 2)
		require.NoError(t, err)
		assert.Len(t, list.Items, 2)
		assert.Equal(t, int64(5), list.Total)
		assert.Equal(t, 2, list.Page)
	})

	t.Run("defaults paging", func(t *testing.T) {
		repo := &mockAssessmentRepository{}
		repo.On("ListBySubject", mock.Anything, "cust-1", shared.DefaultFilter()).Return([]*risk.RiskAssessment{}, int64(0), nil)

		list, err := NewInvestigationService(repo, nil).ListBySubject(context.Background(), "cust-1", 0, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, list.Page)
		assert.Equal(t, 50, list.PageSize)
	})
}
