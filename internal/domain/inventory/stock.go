package inventory

import (
	"context"
	"time"

	"github.com/marketplace/fulfillment/internal/domain/shared"
)

// StockLevel is the stock position of one product
type StockLevel struct {
	ProductID     string
	VendorID      string
	CurrentStock  int
	ReservedStock int
	UpdatedAt     time.Time
}

// Available returns current minus reserved stock
func (s StockLevel) Available() int {
	return s.CurrentStock - s.ReservedStock
}

// CanReserve reports whether the quantity can be reserved
func (s StockLevel) CanReserve(quantity int) bool {
	return quantity > 0 && s.Available() >= quantity
}

// Allocation is a ledger row recording that an order reserved a product
type Allocation struct {
	OrderID   string
	ProductID string
	Quantity  int
	CreatedAt time.Time
}

// ReservationStatus is the outcome of a single reservation
type ReservationStatus string

const (
	ReservationReserved        ReservationStatus = "reserved"
	ReservationAlreadyReserved ReservationStatus = "already_reserved"
	ReservationInsufficient    ReservationStatus = "insufficient"
)

// ErrInsufficientStock is returned when stock cannot cover a request
var ErrInsufficientStock = shared.NewDomainError(shared.CodeValidation, "Insufficient stock")

// Store is the inventory collaborator. Reservations are applied with a
// single atomic increment and are idempotent per (order_id, product_id).
type Store interface {
	// GetStock returns stock levels keyed by product ID; unknown products are absent
	GetStock(ctx context.Context, productIDs []string) (map[string]StockLevel, error)

	// Reserve increments reserved stock for an order line. A repeated call
	// for the same order and product returns ReservationAlreadyReserved
	// without reserving again. ReservationInsufficient is returned with
	// ErrInsufficientStock when stock cannot cover the quantity.
	Reserve(ctx context.Context, orderID, productID string, quantity int) (ReservationStatus, error)

	// ListAllocations returns the ledger rows of an order
	ListAllocations(ctx context.Context, orderID string) ([]Allocation, error)

	// SetStock inserts or replaces a stock level
	SetStock(ctx context.Context, level StockLevel) error
}
