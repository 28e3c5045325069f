package wallet

import (
	"context"

	"github.com/google/uuid"
)

// TransferRepository persists wallet transfers
type TransferRepository interface {
	// Create inserts a new transfer
	Create(ctx context.Context, t *WalletTransfer) error

	// Update saves a transfer with optimistic locking on Version.
	// On success Version is incremented.
	Update(ctx context.Context, t *WalletTransfer) error

	// FindByID finds a transfer by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*WalletTransfer, error)

	// FindLatestByOrder finds the most recently created transfer for an order
	FindLatestByOrder(ctx context.Context, orderID string) (*WalletTransfer, error)

	// ListInFlight lists transfers that have not reached a terminal status
	ListInFlight(ctx context.Context) ([]*WalletTransfer, error)
}
