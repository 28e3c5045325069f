package risk

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// BehavioralProfile holds per-user rolling aggregates used for scoring
type BehavioralProfile struct {
	UserID               string
	AverageAmount        decimal.Decimal
	TransactionCount     int
	KnownDevices         []string
	LastTransactionAt    *time.Time
	TypicalHour          float64
	HomeCountry          string
	IdentityVerified     bool
	AccountCreatedAt     time.Time
	RecentFailedPayments int
	UpdatedAt            time.Time
}

// NewBehavioralProfile creates an empty profile for a user
func NewBehavioralProfile(userID string, createdAt time.Time) *BehavioralProfile {
	return &BehavioralProfile{
		UserID:           userID,
		AverageAmount:    decimal.Zero,
		AccountCreatedAt: createdAt,
		UpdatedAt:        createdAt,
	}
}

// KnowsDevice reports whether the fingerprint has been seen before
func (p *BehavioralProfile) KnowsDevice(fingerprint string) bool {
	for _, d := range p.KnownDevices {
		if d == fingerprint {
			return true
		}
	}
	return false
}

// HasHistory reports whether the profile has any recorded transaction
func (p *BehavioralProfile) HasHistory() bool {
	return p.TransactionCount > 0
}

// AccountAge returns how long the account has existed at the given time
func (p *BehavioralProfile) AccountAge(at time.Time) time.Duration {
	if p.AccountCreatedAt.IsZero() {
		return 0
	}
	return at.Sub(p.AccountCreatedAt)
}

// RecordTransaction folds a transaction into the rolling aggregates
func (p *BehavioralProfile) RecordTransaction(amount decimal.Decimal, device string, at time.Time) {
	n := decimal.NewFromInt(int64(p.TransactionCount))
	p.AverageAmount = p.AverageAmount.Mul(n).Add(amount).Div(n.Add(decimal.NewFromInt(1))).Round(2)

	hour := float64(at.Hour())
	if p.TransactionCount == 0 {
		p.TypicalHour = hour
	} else {
		p.TypicalHour = (p.TypicalHour*float64(p.TransactionCount) + hour) / float64(p.TransactionCount+1)
	}

	p.TransactionCount++
	if device != "" && !p.KnowsDevice(device) {
		p.KnownDevices = append(p.KnownDevices, device)
	}
	last := at
	p.LastTransactionAt = &last
	p.UpdatedAt = at
}

// RecordFailedPayment increments the recent failed payment counter
func (p *BehavioralProfile) RecordFailedPayment(at time.Time) {
	p.RecentFailedPayments++
	p.UpdatedAt = at
}

// HourDeviation returns the circular distance in hours between the given
// hour and the typical hour, in [0,12]
func (p *BehavioralProfile) HourDeviation(hour int) float64 {
	diff := math.Abs(float64(hour) - p.TypicalHour)
	if diff > 12 {
		diff = 24 - diff
	}
	return diff
}
