package risk

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Source names a sub-scorer
type Source string

const (
	SourceRule      Source = "rule"
	SourceHeuristic Source = "heuristic"
	SourceRegion    Source = "region"
)

// Signal names
const (
	SignalRapidSuccession        = "rapid_succession"
	SignalHighVelocity           = "high_velocity"
	SignalAmountSpike            = "amount_spike"
	SignalAmountDeviation        = "amount_deviation"
	SignalUnrecognizedDevice     = "unrecognized_device"
	SignalOffHours               = "off_hours"
	SignalUnusualAmount          = "unusual_amount_ratio"
	SignalNewDevice              = "new_device"
	SignalNewAccount             = "new_account"
	SignalFailedPayments         = "recent_failed_payments"
	SignalHourDeviation          = "unusual_hour"
	SignalUnverifiedRecipient    = "unverified_recipient"
	SignalAboveMobileMoneyNorm   = "above_mobile_money_norm"
	SignalIncompleteVerification = "incomplete_identity_verification"
	SignalCrossBorder            = "cross_border"
	SignalHighRiskLocation       = "high_risk_location"
)

// ScoreResult is the output of one sub-scorer
type ScoreResult struct {
	Source  Source
	Score   int
	Signals []string
}

// Scorer produces an independent sub-score. The profile may be nil for a
// subject without history.
type Scorer interface {
	Source() Source
	Score(tx Transaction, profile *BehavioralProfile) ScoreResult
}

// RuleWeights are the points each rule contributes
type RuleWeights struct {
	RapidSuccession    int
	HighVelocity       int
	AmountSpike        int
	AmountDeviation    int
	UnrecognizedDevice int
	OffHours           int
}

// DefaultRuleWeights returns the standard rule weights
func DefaultRuleWeights() RuleWeights {
	return RuleWeights{
		RapidSuccession:    40,
		HighVelocity:       20,
		AmountSpike:        35,
		AmountDeviation:    20,
		UnrecognizedDevice: 25,
		OffHours:           10,
	}
}

// RuleScorer applies fixed velocity, amount, device and timing rules
type RuleScorer struct {
	Weights RuleWeights
}

// NewRuleScorer creates a RuleScorer
func NewRuleScorer(weights RuleWeights) *RuleScorer {
	return &RuleScorer{Weights: weights}
}

// Source implements Scorer
func (s *RuleScorer) Source() Source { return SourceRule }

// Score implements Scorer
func (s *RuleScorer) Score(tx Transaction, profile *BehavioralProfile) ScoreResult {
	res := ScoreResult{Source: SourceRule}
	add := func(signal string, points int) {
		res.Signals = append(res.Signals, signal)
		res.Score += points
	}

	if profile != nil && profile.LastTransactionAt != nil {
		since := tx.OccurredAt.Sub(*profile.LastTransactionAt)
		switch {
		case since >= 0 && since < time.Minute:
			add(SignalRapidSuccession, s.Weights.RapidSuccession)
		case since >= 0 && since < 10*time.Minute:
			add(SignalHighVelocity, s.Weights.HighVelocity)
		}
	}

	if profile != nil && profile.AverageAmount.IsPositive() {
		ratio := tx.Amount.Div(profile.AverageAmount)
		switch {
		case ratio.GreaterThanOrEqual(decimal.NewFromInt(3)):
			add(SignalAmountSpike, s.Weights.AmountSpike)
		case ratio.GreaterThanOrEqual(decimal.NewFromInt(2)):
			add(SignalAmountDeviation, s.Weights.AmountDeviation)
		}
	}

	if tx.DeviceFingerprint != "" && profile != nil && len(profile.KnownDevices) > 0 && !profile.KnowsDevice(tx.DeviceFingerprint) {
		add(SignalUnrecognizedDevice, s.Weights.UnrecognizedDevice)
	}

	if hour := tx.LocalHour(); hour >= 0 && hour <= 5 {
		add(SignalOffHours, s.Weights.OffHours)
	}

	res.Score = Clamp(res.Score)
	return res
}

// HeuristicWeights weight each profile feature; a feature value in [0,1]
// contributes value x weight points
type HeuristicWeights struct {
	AmountRatio    float64
	NewDevice      float64
	NewAccount     float64
	FailedPayments float64
	HourDeviation  float64
}

// DefaultHeuristicWeights returns the standard feature weights
func DefaultHeuristicWeights() HeuristicWeights {
	return HeuristicWeights{
		AmountRatio:    30,
		NewDevice:      20,
		NewAccount:     15,
		FailedPayments: 20,
		HourDeviation:  15,
	}
}

// HeuristicScorer scores a transaction against the stored behavioral profile
type HeuristicScorer struct {
	Weights        HeuristicWeights
	NewAccountAge  time.Duration
	FailedPayments int
}

// NewHeuristicScorer creates a HeuristicScorer. Accounts younger than
// newAccountAge count as new; failedPaymentsCap failures saturate that feature.
func NewHeuristicScorer(weights HeuristicWeights, newAccountAge time.Duration, failedPaymentsCap int) *HeuristicScorer {
	if failedPaymentsCap <= 0 {
		failedPaymentsCap = 3
	}
	return &HeuristicScorer{Weights: weights, NewAccountAge: newAccountAge, FailedPayments: failedPaymentsCap}
}

// Source implements Scorer
func (s *HeuristicScorer) Source() Source { return SourceHeuristic }

// Score implements Scorer
func (s *HeuristicScorer) Score(tx Transaction, profile *BehavioralProfile) ScoreResult {
	res := ScoreResult{Source: SourceHeuristic}
	if profile == nil {
		return res
	}

	var total float64
	feature := func(signal string, value, weight float64) {
		value = clampUnit(value)
		total += value * weight
		if value >= 0.5 {
			res.Signals = append(res.Signals, signal)
		}
	}

	if profile.AverageAmount.IsPositive() {
		ratio, _ := tx.Amount.Div(profile.AverageAmount).Float64()
		feature(SignalUnusualAmount, (ratio-1)/4, s.Weights.AmountRatio)
	}
	if tx.DeviceFingerprint != "" && profile.HasHistory() && !profile.KnowsDevice(tx.DeviceFingerprint) {
		feature(SignalNewDevice, 1, s.Weights.NewDevice)
	}
	if s.NewAccountAge > 0 && profile.AccountAge(tx.OccurredAt) < s.NewAccountAge {
		feature(SignalNewAccount, 1, s.Weights.NewAccount)
	}
	if profile.RecentFailedPayments > 0 {
		feature(SignalFailedPayments, float64(profile.RecentFailedPayments)/float64(s.FailedPayments), s.Weights.FailedPayments)
	}
	if profile.HasHistory() {
		feature(SignalHourDeviation, profile.HourDeviation(tx.LocalHour())/12, s.Weights.HourDeviation)
	}

	res.Score = Clamp(int(total + 0.5))
	return res
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// RegionWeights are the points each regional signal contributes
type RegionWeights struct {
	UnverifiedRecipient    int
	AboveMobileMoneyNorm   int
	IncompleteVerification int
	CrossBorder            int
	HighRiskLocation       int
}

// DefaultRegionWeights returns the standard regional weights
func DefaultRegionWeights() RegionWeights {
	return RegionWeights{
		UnverifiedRecipient:    30,
		AboveMobileMoneyNorm:   25,
		IncompleteVerification: 20,
		CrossBorder:            15,
		HighRiskLocation:       40,
	}
}

// RegionScorer applies market-specific signals such as mobile money norms
type RegionScorer struct {
	Weights           RegionWeights
	mobileMoneyNorms  map[string]decimal.Decimal
	highRiskLocations map[string]struct{}
}

// NewRegionScorer creates a RegionScorer. Norms are keyed by provider and
// locations are matched case-insensitively.
func NewRegionScorer(weights RegionWeights, mobileMoneyNorms map[string]decimal.Decimal, highRiskLocations []string) *RegionScorer {
	norms := make(map[string]decimal.Decimal, len(mobileMoneyNorms))
	for provider, norm := range mobileMoneyNorms {
		norms[strings.ToLower(provider)] = norm
	}
	locations := make(map[string]struct{}, len(highRiskLocations))
	for _, loc := range highRiskLocations {
		locations[strings.ToLower(loc)] = struct{}{}
	}
	return &RegionScorer{Weights: weights, mobileMoneyNorms: norms, highRiskLocations: locations}
}

// Source implements Scorer
func (s *RegionScorer) Source() Source { return SourceRegion }

// Score implements Scorer
func (s *RegionScorer) Score(tx Transaction, profile *BehavioralProfile) ScoreResult {
	res := ScoreResult{Source: SourceRegion}
	add := func(signal string, points int) {
		res.Signals = append(res.Signals, signal)
		res.Score += points
	}

	if tx.Recipient != "" && !tx.RecipientVerified {
		add(SignalUnverifiedRecipient, s.Weights.UnverifiedRecipient)
	}
	if norm, ok := s.mobileMoneyNorms[strings.ToLower(tx.Provider)]; ok && tx.Amount.GreaterThan(norm) {
		add(SignalAboveMobileMoneyNorm, s.Weights.AboveMobileMoneyNorm)
	}
	if profile != nil && !profile.IdentityVerified {
		add(SignalIncompleteVerification, s.Weights.IncompleteVerification)
	}
	if profile != nil && profile.HomeCountry != "" && tx.OriginCountry != "" &&
		!strings.EqualFold(profile.HomeCountry, tx.OriginCountry) {
		add(SignalCrossBorder, s.Weights.CrossBorder)
	}
	if s.isHighRisk(tx.Location) || s.isHighRisk(tx.OriginCountry) {
		add(SignalHighRiskLocation, s.Weights.HighRiskLocation)
	}

	res.Score = Clamp(res.Score)
	return res
}

func (s *RegionScorer) isHighRisk(location string) bool {
	if location == "" {
		return false
	}
	_, ok := s.highRiskLocations[strings.ToLower(location)]
	return ok
}
