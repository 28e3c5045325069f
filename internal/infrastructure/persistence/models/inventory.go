package models

import (
	"time"

	"github.com/marketplace/fulfillment/internal/domain/inventory"
)

// StockLevelModel is the persistence model for per-product stock
type StockLevelModel struct {
	ProductID     string    `gorm:"type:varchar(100);primaryKey"`
	VendorID      string    `gorm:"type:varchar(100);not null;index"`
	CurrentStock  int       `gorm:"not null;default:0"`
	ReservedStock int       `gorm:"not null;default:0"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StockLevelModel) TableName() string {
	return "inventory_stock"
}

// ToDomain converts the model to a domain StockLevel
func (m *StockLevelModel) ToDomain() inventory.StockLevel {
	return inventory.StockLevel{
		ProductID:     m.ProductID,
		VendorID:      m.VendorID,
		CurrentStock:  m.CurrentStock,
		ReservedStock: m.ReservedStock,
		UpdatedAt:     m.UpdatedAt,
	}
}

// StockLevelModelFromDomain creates a model from a domain stock level
func StockLevelModelFromDomain(s inventory.StockLevel) *StockLevelModel {
	return &StockLevelModel{
		ProductID:     s.ProductID,
		VendorID:      s.VendorID,
		CurrentStock:  s.CurrentStock,
		ReservedStock: s.ReservedStock,
		UpdatedAt:     s.UpdatedAt,
	}
}

// AllocationModel is one row of the allocation ledger. The composite key
// makes a reservation idempotent per order and product.
type AllocationModel struct {
	OrderID   string    `gorm:"type:varchar(100);primaryKey"`
	ProductID string    `gorm:"type:varchar(100);primaryKey"`
	Quantity  int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AllocationModel) TableName() string {
	return "inventory_allocations"
}

// ToDomain converts the model to a domain Allocation
func (m *AllocationModel) ToDomain() inventory.Allocation {
	return inventory.Allocation{
		OrderID:   m.OrderID,
		ProductID: m.ProductID,
		Quantity:  m.Quantity,
		CreatedAt: m.CreatedAt,
	}
}
