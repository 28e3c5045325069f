package workflow

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemAvailability is the inventory_check result for one item
type ItemAvailability struct {
	ProductID  string `json:"product_id"`
	Requested  int    `json:"requested"`
	Available  int    `json:"available"`
	Sufficient bool   `json:"sufficient"`
}

// InventoryCheckOutput is the result of inventory_check
type InventoryCheckOutput struct {
	AllAvailable bool               `json:"all_available"`
	Items        []ItemAvailability `json:"items"`
}

// FraudCheckOutput is the result of fraud_check
type FraudCheckOutput struct {
	AssessmentID       uuid.UUID `json:"assessment_id"`
	Score              int       `json:"score"`
	Tier               string    `json:"tier"`
	TriggeredSignals   []string  `json:"triggered_signals"`
	RecommendedActions []string  `json:"recommended_actions"`
	BlockThreshold     int       `json:"block_threshold"`
	Blocked            bool      `json:"blocked"`
}

// PaymentOutput is the result of payment_processing
type PaymentOutput struct {
	Method     PaymentMethod   `json:"method"`
	Status     string          `json:"status"`
	TransferID *uuid.UUID      `json:"transfer_id,omitempty"`
	Reference  string          `json:"reference,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Fee        decimal.Decimal `json:"fee"`
}

// AllocationLine is the inventory_allocation result for one item
type AllocationLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Status    string `json:"status"`
}

// AllocationOutput is the result of inventory_allocation
type AllocationOutput struct {
	Items []AllocationLine `json:"items"`
}

// VendorGroup is a sub-order holding one vendor's items
type VendorGroup struct {
	VendorID string          `json:"vendor_id"`
	Items    []OrderItem     `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// SplitOutput is the result of order_splitting
type SplitOutput struct {
	SplitRequired bool          `json:"split_required"`
	Groups        []VendorGroup `json:"groups"`
}

// Shipment is one courier assignment
type Shipment struct {
	VendorID          string    `json:"vendor_id,omitempty"`
	Courier           string    `json:"courier"`
	TrackingNumber    string    `json:"tracking_number"`
	ETADays           int       `json:"eta_days"`
	EstimatedDelivery time.Time `json:"estimated_delivery"`
}

// ShippingOutput is the result of shipping_assignment
type ShippingOutput struct {
	Policy    ShippingPolicy `json:"policy"`
	Region    string         `json:"region"`
	Shipments []Shipment     `json:"shipments"`
}

// NotificationOutput is the result of vendor_notification and customer_notification
type NotificationOutput struct {
	Provider   string   `json:"provider"`
	Recipients []string `json:"recipients"`
	References []string `json:"references"`
}

// AnalyticsOutput is the result of analytics_tracking
type AnalyticsOutput struct {
	Provider  string `json:"provider"`
	EventName string `json:"event_name"`
	Reference string `json:"reference"`
}
