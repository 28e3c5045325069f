package wallet

import (
	"github.com/google/uuid"
	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// EventTypeTransferFinished is raised when a transfer reaches a terminal status
const EventTypeTransferFinished = "wallet.transfer.finished"

// TransferFinishedEvent carries the final state of a transfer
type TransferFinishedEvent struct {
	shared.BaseDomainEvent
	TransferID uuid.UUID       `json:"transfer_id"`
	OrderID    string          `json:"order_id"`
	Status     TransferStatus  `json:"status"`
	Amount     decimal.Decimal `json:"amount"`
	Fee        decimal.Decimal `json:"fee"`
}

// NewTransferFinishedEvent creates a TransferFinishedEvent
func NewTransferFinishedEvent(t *WalletTransfer) *TransferFinishedEvent {
	return &TransferFinishedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeTransferFinished, AggregateTypeWalletTransfer, t.ID),
		TransferID:      t.ID,
		OrderID:         t.OrderID,
		Status:          t.Status,
		Amount:          t.Amount,
		Fee:             t.Fee,
	}
}
