package workflow

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/marketplace/fulfillment/internal/domain/wallet"
	"github.com/shopspring/decimal"
)

// PaymentMethod describes how an order is paid
type PaymentMethod string

const (
	PaymentMethodWallet         PaymentMethod = "wallet"
	PaymentMethodCard           PaymentMethod = "card"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

// IsValid checks if the payment method is known
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodWallet, PaymentMethodCard, PaymentMethodCashOnDelivery:
		return true
	}
	return false
}

// OrderItem is a single order line
type OrderItem struct {
	ProductID string          `json:"product_id"`
	VendorID  string          `json:"vendor_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// LineTotal returns quantity x unit price
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// PaymentInfo carries the payment instructions of an order
type PaymentInfo struct {
	Method PaymentMethod      `json:"method"`
	From   *wallet.AccountRef `json:"from,omitempty"`
	To     *wallet.AccountRef `json:"to,omitempty"`
	Token  string             `json:"token,omitempty"`
	// RecipientVerified marks a wallet recipient whose identity is confirmed
	RecipientVerified bool `json:"recipient_verified,omitempty"`
}

// ShippingAddress is the delivery destination
type ShippingAddress struct {
	Region  string `json:"region"`
	City    string `json:"city,omitempty"`
	Country string `json:"country"`
}

// DeviceContext describes the device and session placing the order
type DeviceContext struct {
	Fingerprint string `json:"fingerprint,omitempty"`
	IPAddress   string `json:"ip_address,omitempty"`
	Country     string `json:"country,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
	// TimeZone is an IANA zone name such as Africa/Nairobi
	TimeZone string `json:"time_zone,omitempty"`
}

// OrderData is the order payload a workflow runs against
type OrderData struct {
	CustomerID  string            `json:"customer_id"`
	Items       []OrderItem       `json:"items"`
	Subtotal    decimal.Decimal   `json:"subtotal"`
	Currency    string            `json:"currency"`
	Payment     PaymentInfo       `json:"payment"`
	Shipping    ShippingAddress   `json:"shipping"`
	Device      DeviceContext     `json:"device"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// Annotation keys stamped by steps
const (
	AnnotationRiskActions = "risk.recommended_actions"
	AnnotationRiskTier    = "risk.tier"
	AnnotationRiskScore   = "risk.score"
)

// ItemsTotal sums the line totals of all items
func (o *OrderData) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// Annotate sets an annotation on the order
func (o *OrderData) Annotate(key, value string) {
	if o.Annotations == nil {
		o.Annotations = make(map[string]string)
	}
	o.Annotations[key] = value
}

// Validate checks the order is well formed before a workflow runs
func (o *OrderData) Validate() error {
	var problems []string
	if strings.TrimSpace(o.CustomerID) == "" {
		problems = append(problems, "customer_id is required")
	}
	if len(o.Items) == 0 {
		problems = append(problems, "at least one item is required")
	}
	for i, item := range o.Items {
		if item.ProductID == "" {
			problems = append(problems, fmt.Sprintf("items[%d].product_id is required", i))
		}
		if item.VendorID == "" {
			problems = append(problems, fmt.Sprintf("items[%d].vendor_id is required", i))
		}
		if item.Quantity <= 0 {
			problems = append(problems, fmt.Sprintf("items[%d].quantity must be positive", i))
		}
		if item.UnitPrice.IsNegative() {
			problems = append(problems, fmt.Sprintf("items[%d].unit_price must not be negative", i))
		}
	}
	if o.Subtotal.IsNegative() {
		problems = append(problems, "subtotal must not be negative")
	} else if len(o.Items) > 0 && !o.Subtotal.Equal(o.ItemsTotal()) {
		problems = append(problems, fmt.Sprintf("subtotal %s does not match item total %s",
			o.Subtotal.StringFixed(2), o.ItemsTotal().StringFixed(2)))
	}
	if o.Currency == "" {
		problems = append(problems, "currency is required")
	}
	if o.Device.TimeZone != "" {
		if _, err := time.LoadLocation(o.Device.TimeZone); err != nil {
			problems = append(problems, fmt.Sprintf("unknown device.time_zone %q", o.Device.TimeZone))
		}
	}
	if !o.Payment.Method.IsValid() {
		problems = append(problems, fmt.Sprintf("unknown payment method %q", o.Payment.Method))
	}
	if o.Payment.Method == PaymentMethodWallet {
		if o.Payment.From == nil || !o.Payment.From.IsValid() {
			problems = append(problems, "payment.from is required for wallet payments")
		}
		if o.Payment.To == nil || !o.Payment.To.IsValid() {
			problems = append(problems, "payment.to is required for wallet payments")
		}
	}
	if len(problems) > 0 {
		return shared.NewDomainError(shared.CodeValidation, "invalid order data: "+strings.Join(problems, "; "))
	}
	return nil
}

// Clone returns a deep copy of the order
func (o *OrderData) Clone() *OrderData {
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	if o.Annotations != nil {
		c.Annotations = make(map[string]string, len(o.Annotations))
		for k, v := range o.Annotations {
			c.Annotations[k] = v
		}
	}
	return &c
}
