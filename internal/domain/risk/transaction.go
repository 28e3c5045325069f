package risk

import (
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
)

// Transaction is the payment being screened together with its device context
type Transaction struct {
	SubjectID         string
	OrderID           string
	Amount            decimal.Decimal
	Currency          string
	OccurredAt        time.Time
	Provider          string
	Recipient         string
	RecipientVerified bool
	OriginCountry     string
	Location          string
	DeviceFingerprint string
	IPAddress         string
	// TimeZone is the IANA zone of the customer, e.g. Africa/Nairobi
	TimeZone string
}

// LocalTime returns OccurredAt in the customer's time zone. An empty or
// unknown zone leaves the time as recorded.
func (t Transaction) LocalTime() time.Time {
	if t.TimeZone == "" {
		return t.OccurredAt
	}
	loc, err := time.LoadLocation(t.TimeZone)
	if err != nil {
		return t.OccurredAt
	}
	return t.OccurredAt.In(loc)
}

// LocalHour returns the hour of day in the customer's time zone
func (t Transaction) LocalHour() int {
	return t.LocalTime().Hour()
}
