package risk

// Tier is a discrete risk classification
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// Tier thresholds
const (
	HighThreshold       = 70
	MediumThreshold     = 40
	MonitoringThreshold = 20
)

// Mitigation actions
const (
	ActionBlockTransaction       = "block_transaction"
	ActionManualReview           = "manual_review"
	ActionNotifySecurity         = "notify_security"
	ActionAdditionalVerification = "additional_verification"
	ActionFlagMonitoring         = "flag_monitoring"
	ActionIncreaseMonitoring     = "increase_monitoring"
)

// TierFor maps a combined score to its tier
func TierFor(score int) Tier {
	switch {
	case score >= HighThreshold:
		return TierHigh
	case score >= MediumThreshold:
		return TierMedium
	default:
		return TierLow
	}
}

// ActionsFor returns the mitigation actions for a score. Actions are
// additive: a high score also receives the medium and monitoring actions.
func ActionsFor(score int) []string {
	actions := make([]string, 0, 6)
	if score >= HighThreshold {
		actions = append(actions, ActionBlockTransaction, ActionManualReview, ActionNotifySecurity)
	}
	if score >= MediumThreshold {
		actions = append(actions, ActionAdditionalVerification, ActionFlagMonitoring)
	}
	if score >= MonitoringThreshold {
		actions = append(actions, ActionIncreaseMonitoring)
	}
	return actions
}

// Clamp bounds a score to [0,100]
func Clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Combine returns the maximum of the sub-scores so that one strong signal
// escalates risk without overlapping weak signals compounding.
func Combine(scores ...int) int {
	combined := 0
	for _, s := range scores {
		if c := Clamp(s); c > combined {
			combined = c
		}
	}
	return combined
}
