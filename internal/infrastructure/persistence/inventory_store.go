package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/marketplace/fulfillment/internal/domain/inventory"
	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/marketplace/fulfillment/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormInventoryStore implements inventory.Store using GORM.
// Reservations never read-modify-write: the ledger insert and the guarded
// increment run as single statements in one transaction.
type GormInventoryStore struct {
	db *gorm.DB
}

// NewGormInventoryStore creates a new GormInventoryStore
func NewGormInventoryStore(db *gorm.DB) *GormInventoryStore {
	return &GormInventoryStore{db: db}
}

// GetStock returns stock levels keyed by product ID
func (s *GormInventoryStore) GetStock(ctx context.Context, productIDs []string) (map[string]inventory.StockLevel, error) {
	out := make(map[string]inventory.StockLevel, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}
	var rows []models.StockLevelModel
	if err := s.db.WithContext(ctx).Where("product_id IN ?", productIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		out[rows[i].ProductID] = rows[i].ToDomain()
	}
	return out, nil
}

// Reserve records the allocation and increments reserved stock atomically.
// The increment only happens when the ledger row is new.
func (s *GormInventoryStore) Reserve(ctx context.Context, orderID, productID string, quantity int) (inventory.ReservationStatus, error) {
	if quantity <= 0 {
		return "", shared.NewDomainError(shared.CodeValidation, "reservation quantity must be positive")
	}

	status := inventory.ReservationReserved
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		inserted := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.AllocationModel{
			OrderID:   orderID,
			ProductID: productID,
			Quantity:  quantity,
			CreatedAt: now,
		})
		if inserted.Error != nil {
			return inserted.Error
		}
		if inserted.RowsAffected == 0 {
			status = inventory.ReservationAlreadyReserved
			return nil
		}

		updated := tx.Model(&models.StockLevelModel{}).
			Where("product_id = ? AND current_stock - reserved_stock >= ?", productID, quantity).
			UpdateColumns(map[string]any{
				"reserved_stock": gorm.Expr("reserved_stock + ?", quantity),
				"updated_at":     now,
			})
		if updated.Error != nil {
			return updated.Error
		}
		if updated.RowsAffected == 0 {
			// rolls the ledger row back with the transaction
			return inventory.ErrInsufficientStock
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, inventory.ErrInsufficientStock) {
			return inventory.ReservationInsufficient, err
		}
		return "", err
	}
	return status, nil
}

// ListAllocations returns the ledger rows of an order
func (s *GormInventoryStore) ListAllocations(ctx context.Context, orderID string) ([]inventory.Allocation, error) {
	var rows []models.AllocationModel
	if err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, product_id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]inventory.Allocation, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// SetStock inserts or replaces a stock level
func (s *GormInventoryStore) SetStock(ctx context.Context, level inventory.StockLevel) error {
	if level.UpdatedAt.IsZero() {
		level.UpdatedAt = time.Now()
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "product_id"}},
			UpdateAll: true,
		}).
		Create(models.StockLevelModelFromDomain(level)).Error
}

// Ensure GormInventoryStore implements inventory.Store
var _ inventory.Store = (*GormInventoryStore)(nil)
