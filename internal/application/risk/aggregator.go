// Package risk screens transactions by combining independent sub-scores and
// serves investigator reviews of the resulting assessments.
package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marketplace/fulfillment/internal/domain/risk"
	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/marketplace/fulfillment/internal/infrastructure/logger"
	"github.com/marketplace/fulfillment/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ScoringConfig selects the weights and market data of the sub-scorers
type ScoringConfig struct {
	Rule              risk.RuleWeights
	Heuristic         risk.HeuristicWeights
	Region            risk.RegionWeights
	NewAccountAge     time.Duration
	FailedPaymentsCap int
	MobileMoneyNorms  map[string]decimal.Decimal
	HighRiskLocations []string
}

// NewScorers builds the rule, heuristic and region scorers
func NewScorers(cfg ScoringConfig) []risk.Scorer {
	return []risk.Scorer{
		risk.NewRuleScorer(cfg.Rule),
		risk.NewHeuristicScorer(cfg.Heuristic, cfg.NewAccountAge, cfg.FailedPaymentsCap),
		risk.NewRegionScorer(cfg.Region, cfg.MobileMoneyNorms, cfg.HighRiskLocations),
	}
}

// Aggregator runs every scorer against a transaction and the subject's
// behavioral profile, combines the sub-scores and persists the assessment.
type Aggregator struct {
	scorers     []risk.Scorer
	profiles    risk.ProfileRepository
	assessments risk.AssessmentRepository
	logger      *zap.Logger
	metrics     *telemetry.WorkflowMetrics
	now         func() time.Time
}

// AggregatorOption configures an Aggregator
type AggregatorOption func(*Aggregator)

// WithMetrics records assessments per tier
func WithMetrics(m *telemetry.WorkflowMetrics) AggregatorOption {
	return func(a *Aggregator) {
		a.metrics = m
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) {
		a.now = now
	}
}

// NewAggregator creates an Aggregator over the given scorers
func NewAggregator(
	scorers []risk.Scorer,
	profiles risk.ProfileRepository,
	assessments risk.AssessmentRepository,
	log *zap.Logger,
	opts ...AggregatorOption,
) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	a := &Aggregator{
		scorers:     scorers,
		profiles:    profiles,
		assessments: assessments,
		logger:      log,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assess scores a transaction and persists the assessment. A subject without
// a stored profile is scored without history.
func (a *Aggregator) Assess(ctx context.Context, tx risk.Transaction) (*risk.RiskAssessment, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "risk", "assess")
	defer span.End()

	if tx.OccurredAt.IsZero() {
		tx.OccurredAt = a.now()
	}
	profile, err := a.loadProfile(ctx, tx.SubjectID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	results := make([]risk.ScoreResult, 0, len(a.scorers))
	for _, scorer := range a.scorers {
		results = append(results, scorer.Score(tx, profile))
	}
	assessment := risk.NewRiskAssessment(tx.SubjectID, tx.OrderID, results, a.now())

	if err := a.assessments.Create(ctx, assessment); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("persist risk assessment: %w", err)
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrRiskScore, assessment.Score,
		telemetry.SpanAttrRiskTier, string(assessment.Tier),
	)
	telemetry.SetOK(span)
	a.metrics.RecordRiskAssessment(ctx, string(assessment.Tier))

	logger.WithLogger(ctx, a.logger).Info("Risk assessed",
		zap.String("subject_id", tx.SubjectID),
		zap.Int("rule", assessment.RuleScore),
		zap.Int("heuristic", assessment.HeuristicScore),
		zap.Int("region", assessment.RegionScore),
		zap.Int("score", assessment.Score),
		zap.String("tier", string(assessment.Tier)),
		zap.Strings("signals", assessment.TriggeredSignals),
	)
	return assessment, nil
}

// RecordTransaction folds a screened transaction into the subject's profile,
// creating the profile on first sight
func (a *Aggregator) RecordTransaction(ctx context.Context, tx risk.Transaction) error {
	profile, err := a.loadProfile(ctx, tx.SubjectID)
	if err != nil {
		return err
	}
	if tx.OccurredAt.IsZero() {
		tx.OccurredAt = a.now()
	}
	// the profile learns the customer's local hour
	at := tx.LocalTime()
	if profile == nil {
		profile = risk.NewBehavioralProfile(tx.SubjectID, at)
		profile.HomeCountry = tx.OriginCountry
	}
	profile.RecordTransaction(tx.Amount, tx.DeviceFingerprint, at)
	if err := a.profiles.Save(ctx, profile); err != nil {
		return fmt.Errorf("save behavioral profile: %w", err)
	}
	return nil
}

// RecordFailedPayment counts a failed payment against the subject's profile
func (a *Aggregator) RecordFailedPayment(ctx context.Context, subjectID string) error {
	profile, err := a.loadProfile(ctx, subjectID)
	if err != nil {
		return err
	}
	now := a.now()
	if profile == nil {
		profile = risk.NewBehavioralProfile(subjectID, now)
	}
	profile.RecordFailedPayment(now)
	return a.profiles.Save(ctx, profile)
}

func (a *Aggregator) loadProfile(ctx context.Context, subjectID string) (*risk.BehavioralProfile, error) {
	profile, err := a.profiles.FindByUserID(ctx, subjectID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load behavioral profile: %w", err)
	}
	return profile, nil
}
