package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/marketplace/fulfillment/internal/domain/wallet"
	"github.com/marketplace/fulfillment/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormTransferRepository implements wallet.TransferRepository using GORM
type GormTransferRepository struct {
	db *gorm.DB
}

// NewGormTransferRepository creates a new GormTransferRepository
func NewGormTransferRepository(db *gorm.DB) *GormTransferRepository {
	return &GormTransferRepository{db: db}
}

// Create inserts a new transfer
func (r *GormTransferRepository) Create(ctx context.Context, t *wallet.WalletTransfer) error {
	model, err := models.WalletTransferModelFromDomain(t)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(model).Error
}

// Update saves the transfer when the stored version matches t.Version and
// increments the version on success.
func (r *GormTransferRepository) Update(ctx context.Context, t *wallet.WalletTransfer) error {
	model, err := models.WalletTransferModelFromDomain(t)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).
		Model(&models.WalletTransferModel{}).
		Where("id = ? AND version = ?", t.ID, t.Version).
		Updates(map[string]any{
			"status":                 model.Status,
			"current_phase":          model.CurrentPhase,
			"debit_reference":        model.DebitReference,
			"credit_reference":       model.CreditReference,
			"compensation_reference": model.CompensationReference,
			"failure_reason":         model.FailureReason,
			"compensation_log":       model.CompensationLog,
			"version":                gorm.Expr("version + 1"),
			"updated_at":             t.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	t.IncrementVersion()
	return nil
}

// FindByID finds a transfer by its ID
func (r *GormTransferRepository) FindByID(ctx context.Context, id uuid.UUID) (*wallet.WalletTransfer, error) {
	var model models.WalletTransferModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// FindLatestByOrder finds the most recently created transfer for an order
func (r *GormTransferRepository) FindLatestByOrder(ctx context.Context, orderID string) (*wallet.WalletTransfer, error) {
	var model models.WalletTransferModel
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// ListInFlight lists transfers that have not reached a terminal status
func (r *GormTransferRepository) ListInFlight(ctx context.Context) ([]*wallet.WalletTransfer, error) {
	var rows []models.WalletTransferModel
	if err := r.db.WithContext(ctx).
		Where("status IN ?", []wallet.TransferStatus{
			wallet.TransferStatusPending,
			wallet.TransferStatusDebited,
			wallet.TransferStatusCredited,
		}).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*wallet.WalletTransfer, 0, len(rows))
	for i := range rows {
		t, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Ensure GormTransferRepository implements wallet.TransferRepository
var _ wallet.TransferRepository = (*GormTransferRepository)(nil)
