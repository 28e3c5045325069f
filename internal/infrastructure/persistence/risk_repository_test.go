package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/fulfillment/internal/domain/risk"
	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAssessment(subject string, score int, at time.Time) *risk.RiskAssessment {
	return risk.NewRiskAssessment(subject, "ord-"+uuid.NewString()[:8], []risk.ScoreResult{
		{Source: risk.SourceRule, Score: score, Signals: []string{risk.SignalHighVelocity}},
		{Source: risk.SourceHeuristic, Score: score, Signals: []string{risk.SignalNewDevice}},
		{Source: risk.SourceRegion, Score: score},
	}, at)
}

func TestGormAssessmentRepository_CreateAndReview(t *testing.T) {
	repo := NewGormAssessmentRepository(newSQLiteDB(t))
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	a := newAssessment("user-1", 80, now)
	require.NoError(t, repo.Create(ctx, a))

	found, err := repo.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Score, found.Score)
	assert.Equal(t, a.Tier, found.Tier)
	assert.Equal(t, []string{risk.SignalHighVelocity}, found.RuleSignals)
	assert.Empty(t, found.RegionSignals)
	assert.ElementsMatch(t, a.TriggeredSignals, found.TriggeredSignals)
	assert.Equal(t, a.RecommendedActions, found.RecommendedActions)
	assert.Equal(t, risk.ReviewStatusUnreviewed, found.ReviewStatus)

	require.NoError(t, found.ConfirmFraud("analyst", "chargeback filed", now.Add(time.Hour)))
	require.NoError(t, repo.Update(ctx, found))
	assert.Equal(t, 2, found.Version)

	reviewed, err := repo.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, risk.ReviewStatusConfirmedFraud, reviewed.ReviewStatus)
	assert.Equal(t, "analyst", reviewed.ReviewedBy)
	require.NotNil(t, reviewed.ReviewedAt)

	t.Run("stale version conflicts", func(t *testing.T) {
		// a still carries version 1
		err := repo.Update(ctx, a)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestGormAssessmentRepository_ListBySubject(t *testing.T) {
	repo := NewGormAssessmentRepository(newSQLiteDB(t))
	ctx := context.Background()
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, newAssessment("user-1", 10*i, start.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, repo.Create(ctx, newAssessment("user-2", 50, start)))

	page, total, err := repo.ListBySubject(ctx, "user-1", shared.Filter{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page, 2)
	assert.True(t, page[0].CreatedAt.After(page[1].CreatedAt), "newest first by default")

	last, _, err := repo.ListBySubject(ctx, "user-1", shared.Filter{Page: 3, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, last, 1)

	byScore, _, err := repo.ListBySubject(ctx, "user-1", shared.Filter{OrderBy: "score", OrderDir: "asc"})
	require.NoError(t, err)
	require.Len(t, byScore, 5)
	assert.LessOrEqual(t, byScore[0].Score, byScore[4].Score)

	t.Run("unknown sort field falls back", func(t *testing.T) {
		rows, _, err := repo.ListBySubject(ctx, "user-1", shared.Filter{OrderBy: "score; DROP TABLE risk_assessments"})
		require.NoError(t, err)
		assert.Len(t, rows, 5)
	})

	t.Run("review status filter", func(t *testing.T) {
		rows, total, err := repo.ListBySubject(ctx, "user-1", shared.Filter{
			Filters: map[string]interface{}{"review_status": string(risk.ReviewStatusFalsePositive)},
		})
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, rows)
	})
}

func TestGormProfileRepository(t *testing.T) {
	repo := NewGormProfileRepository(newSQLiteDB(t))
	ctx := context.Background()
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := repo.FindByUserID(ctx, "user-9")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	p := risk.NewBehavioralProfile("user-9", created)
	p.HomeCountry = "KE"
	p.RecordTransaction(decimal.NewFromInt(100), "device-a", created.Add(24*time.Hour))
	require.NoError(t, repo.Save(ctx, p))

	p.RecordTransaction(decimal.NewFromInt(300), "device-b", created.Add(48*time.Hour))
	p.RecordFailedPayment(created.Add(49 * time.Hour))
	require.NoError(t, repo.Save(ctx, p))

	found, err := repo.FindByUserID(ctx, "user-9")
	require.NoError(t, err)
	assert.Equal(t, 2, found.TransactionCount)
	assert.True(t, decimal.NewFromInt(200).Equal(found.AverageAmount), "got %s", found.AverageAmount)
	assert.ElementsMatch(t, []string{"device-a", "device-b"}, found.KnownDevices)
	assert.Equal(t, 1, found.RecentFailedPayments)
	assert.Equal(t, "KE", found.HomeCountry)
	require.NotNil(t, found.LastTransactionAt)
}
