package risk

import (
	"sort"
	"time"

	"github.com/marketplace/fulfillment/internal/domain/shared"
)

// AggregateTypeRiskAssessment is the aggregate type for risk assessments
const AggregateTypeRiskAssessment = "RiskAssessment"

// ReviewStatus is the outcome of an investigator review
type ReviewStatus string

const (
	ReviewStatusUnreviewed     ReviewStatus = "unreviewed"
	ReviewStatusConfirmedFraud ReviewStatus = "confirmed_fraud"
	ReviewStatusFalsePositive  ReviewStatus = "false_positive"
)

// RiskAssessment is the persisted result of screening one transaction.
// Reviews are recorded for investigation only and never feed back into scoring.
type RiskAssessment struct {
	shared.BaseAggregateRoot
	SubjectID          string
	OrderID            string
	RuleScore          int
	HeuristicScore     int
	RegionScore        int
	Score              int
	Tier               Tier
	RuleSignals        []string
	HeuristicSignals   []string
	RegionSignals      []string
	TriggeredSignals   []string
	RecommendedActions []string
	ReviewStatus       ReviewStatus
	ReviewedBy         string
	ReviewedAt         *time.Time
	ReviewNotes        string
}

// NewRiskAssessment combines sub-scores into an assessment
func NewRiskAssessment(subjectID, orderID string, results []ScoreResult, now time.Time) *RiskAssessment {
	a := &RiskAssessment{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		SubjectID:         subjectID,
		OrderID:           orderID,
		ReviewStatus:      ReviewStatusUnreviewed,
	}
	a.CreatedAt = now
	a.UpdatedAt = now

	signals := make(map[string]struct{})
	for _, r := range results {
		switch r.Source {
		case SourceRule:
			a.RuleScore = Clamp(r.Score)
			a.RuleSignals = append([]string(nil), r.Signals...)
		case SourceHeuristic:
			a.HeuristicScore = Clamp(r.Score)
			a.HeuristicSignals = append([]string(nil), r.Signals...)
		case SourceRegion:
			a.RegionScore = Clamp(r.Score)
			a.RegionSignals = append([]string(nil), r.Signals...)
		}
		for _, s := range r.Signals {
			signals[s] = struct{}{}
		}
	}

	a.TriggeredSignals = make([]string, 0, len(signals))
	for s := range signals {
		a.TriggeredSignals = append(a.TriggeredSignals, s)
	}
	sort.Strings(a.TriggeredSignals)

	a.Score = Combine(a.RuleScore, a.HeuristicScore, a.RegionScore)
	a.Tier = TierFor(a.Score)
	a.RecommendedActions = ActionsFor(a.Score)
	return a
}

// ShouldBlock reports whether the assessment blocks at the given threshold
func (a *RiskAssessment) ShouldBlock(threshold int) bool {
	return a.Tier == TierHigh && a.Score >= threshold
}

// IsReviewed reports whether an investigator has recorded a review
func (a *RiskAssessment) IsReviewed() bool {
	return a.ReviewStatus != ReviewStatusUnreviewed && a.ReviewStatus != ""
}

// MarkFalsePositive records that the flagged transaction was legitimate
func (a *RiskAssessment) MarkFalsePositive(reviewer, notes string, now time.Time) error {
	return a.review(ReviewStatusFalsePositive, reviewer, notes, now)
}

// ConfirmFraud records that the flagged transaction was fraudulent
func (a *RiskAssessment) ConfirmFraud(reviewer, notes string, now time.Time) error {
	return a.review(ReviewStatusConfirmedFraud, reviewer, notes, now)
}

func (a *RiskAssessment) review(status ReviewStatus, reviewer, notes string, now time.Time) error {
	if reviewer == "" {
		return shared.NewDomainError(shared.CodeValidation, "reviewer is required")
	}
	if a.IsReviewed() {
		return shared.WrapDomainError(shared.CodeInvalidState, "assessment has already been reviewed", shared.ErrInvalidState)
	}
	a.ReviewStatus = status
	a.ReviewedBy = reviewer
	a.ReviewNotes = notes
	a.ReviewedAt = &now
	a.UpdatedAt = now
	a.AddDomainEvent(NewAssessmentReviewedEvent(a))
	return nil
}
