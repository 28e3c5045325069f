package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestBehavioralProfile_RecordTransaction(t *testing.T) {
	p := NewBehavioralProfile("user-1", noon.AddDate(0, -1, 0))

	p.RecordTransaction(decimal.NewFromInt(100), "dev-a", noon)
	p.RecordTransaction(decimal.NewFromInt(200), "dev-a", noon.Add(time.Hour))
	p.RecordTransaction(decimal.NewFromInt(300), "dev-b", noon.Add(2*time.Hour))

	assert.Equal(t, 3, p.TransactionCount)
	assert.True(t, decimal.NewFromInt(200).Equal(p.AverageAmount), "got %s", p.AverageAmount)
	assert.Equal(t, []string{"dev-a", "dev-b"}, p.KnownDevices)
	assert.Equal(t, noon.Add(2*time.Hour), *p.LastTransactionAt)
	assert.InDelta(t, 13.0, p.TypicalHour, 0.001)
}

func TestBehavioralProfile_HourDeviation(t *testing.T) {
	p := &BehavioralProfile{TypicalHour: 23}
	assert.InDelta(t, 2.0, p.HourDeviation(1), 0.001)
	assert.InDelta(t, 11.0, p.HourDeviation(12), 0.001)
}
