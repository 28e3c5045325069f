package workflow

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ShippingPolicy selects how a courier is chosen for a destination
type ShippingPolicy string

const (
	ShippingPolicyBestCoverage ShippingPolicy = "best_coverage"
	ShippingPolicyFastest      ShippingPolicy = "fastest"
	ShippingPolicyCheapest     ShippingPolicy = "cheapest"
)

// IsValid checks if the policy is known
func (p ShippingPolicy) IsValid() bool {
	switch p {
	case ShippingPolicyBestCoverage, ShippingPolicyFastest, ShippingPolicyCheapest:
		return true
	}
	return false
}

// Courier describes a delivery partner and the regions it serves
type Courier struct {
	Name string
	// Coverage maps a region to a coverage score in [0,100]
	Coverage map[string]int
	ETADays  int
	BaseCost decimal.Decimal
}

// CoverageFor returns the coverage score for a region, zero when not served
func (c Courier) CoverageFor(region string) int {
	for r, score := range c.Coverage {
		if strings.EqualFold(r, region) {
			return score
		}
	}
	return 0
}

// SelectCourier picks a courier covering the region according to the policy.
// Ties keep the earlier courier so the choice is deterministic.
func SelectCourier(couriers []Courier, region string, policy ShippingPolicy) (Courier, bool) {
	var (
		best  Courier
		found bool
	)
	for _, c := range couriers {
		if c.CoverageFor(region) <= 0 {
			continue
		}
		if !found || better(c, best, region, policy) {
			best = c
			found = true
		}
	}
	return best, found
}

func better(candidate, current Courier, region string, policy ShippingPolicy) bool {
	switch policy {
	case ShippingPolicyFastest:
		return candidate.ETADays < current.ETADays
	case ShippingPolicyCheapest:
		return candidate.BaseCost.LessThan(current.BaseCost)
	default:
		return candidate.CoverageFor(region) > current.CoverageFor(region)
	}
}
