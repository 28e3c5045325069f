package wallet

import (
	"fmt"
	"strings"

	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ProviderLimits holds single-transaction ceilings per provider.
// It is built once at startup and never mutated afterwards.
type ProviderLimits struct {
	limits map[string]decimal.Decimal
}

// NewProviderLimits copies the given ceilings into an immutable set.
// Provider names are case-insensitive.
func NewProviderLimits(limits map[string]decimal.Decimal) ProviderLimits {
	copied := make(map[string]decimal.Decimal, len(limits))
	for provider, limit := range limits {
		copied[strings.ToLower(provider)] = limit
	}
	return ProviderLimits{limits: copied}
}

// Limit returns the ceiling for a provider and whether one is configured
func (l ProviderLimits) Limit(provider string) (decimal.Decimal, bool) {
	limit, ok := l.limits[strings.ToLower(provider)]
	return limit, ok
}

// Check returns ErrLimitExceeded when the amount is above the provider ceiling.
// Providers without a configured ceiling are unrestricted.
func (l ProviderLimits) Check(provider string, amount decimal.Decimal) error {
	limit, ok := l.Limit(provider)
	if !ok {
		return nil
	}
	if amount.GreaterThan(limit) {
		return shared.WrapDomainError(shared.CodeLimitExceeded,
			fmt.Sprintf("amount %s exceeds %s single-transaction limit %s", amount.StringFixed(2), provider, limit.StringFixed(2)),
			shared.ErrLimitExceeded)
	}
	return nil
}
