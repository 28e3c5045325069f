package testutil

import (
	"github.com/marketplace/fulfillment/internal/domain/wallet"
	"github.com/marketplace/fulfillment/internal/domain/workflow"
	"github.com/shopspring/decimal"
)

// OrderBuilder builds order payloads. The default order is a single KES
// wallet-paid line shipped to Nairobi from a known device.
type OrderBuilder struct {
	order workflow.OrderData
}

// NewOrder starts an order for customerID
func NewOrder(customerID string) *OrderBuilder {
	return &OrderBuilder{order: workflow.OrderData{
		CustomerID: customerID,
		Currency:   "KES",
		Payment: workflow.PaymentInfo{
			Method:            workflow.PaymentMethodWallet,
			From:              &wallet.AccountRef{Provider: "mpesa", AccountID: customerID},
			To:                &wallet.AccountRef{Provider: "mpesa", AccountID: "marketplace"},
			RecipientVerified: true,
		},
		Shipping: workflow.ShippingAddress{Region: "nairobi", City: "Nairobi", Country: "KE"},
		Device:   workflow.DeviceContext{Fingerprint: "device-" + customerID, Country: "KE"},
	}}
}

// Item appends an order line
func (b *OrderBuilder) Item(productID, vendorID string, quantity int, unitPrice string) *OrderBuilder {
	b.order.Items = append(b.order.Items, workflow.OrderItem{
		ProductID: productID,
		VendorID:  vendorID,
		Quantity:  quantity,
		UnitPrice: decimal.RequireFromString(unitPrice),
	})
	return b
}

// Card switches payment to a card token
func (b *OrderBuilder) Card(token string) *OrderBuilder {
	b.order.Payment = workflow.PaymentInfo{Method: workflow.PaymentMethodCard, Token: token}
	return b
}

// ShipTo changes the delivery region
func (b *OrderBuilder) ShipTo(region string) *OrderBuilder {
	b.order.Shipping.Region = region
	return b
}

// Build returns the order with its subtotal set to the sum of its lines
func (b *OrderBuilder) Build() *workflow.OrderData {
	o := b.order
	o.Items = append([]workflow.OrderItem(nil), b.order.Items...)
	o.Subtotal = o.ItemsTotal()
	return &o
}
