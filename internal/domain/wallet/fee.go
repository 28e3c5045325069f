package wallet

import "github.com/shopspring/decimal"

// FeeSchedule computes transfer fees
type FeeSchedule struct {
	BaseFee                decimal.Decimal
	Percentage             decimal.Decimal // fraction of the amount, 0.015 = 1.5%
	CrossProviderSurcharge decimal.Decimal
	MaxFee                 decimal.Decimal // zero disables the cap
}

// Fee returns base + percentage of amount + surcharge when providers differ,
// capped at MaxFee and rounded to two decimal places.
func (s FeeSchedule) Fee(amount decimal.Decimal, from, to AccountRef) decimal.Decimal {
	fee := s.BaseFee.Add(amount.Mul(s.Percentage))
	if from.Provider != to.Provider {
		fee = fee.Add(s.CrossProviderSurcharge)
	}
	if s.MaxFee.IsPositive() && fee.GreaterThan(s.MaxFee) {
		fee = s.MaxFee
	}
	return fee.Round(2)
}
