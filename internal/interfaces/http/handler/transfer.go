package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/marketplace/fulfillment/internal/application/payment"
	"github.com/marketplace/fulfillment/internal/domain/wallet"
	"github.com/shopspring/decimal"
)

// TransferHandler exposes wallet transfer sagas
type TransferHandler struct {
	BaseHandler
	saga *payment.SagaCoordinator
}

// NewTransferHandler creates a new TransferHandler
func NewTransferHandler(saga *payment.SagaCoordinator) *TransferHandler {
	return &TransferHandler{saga: saga}
}

// TransferResponse is the response form of a wallet transfer
type TransferResponse struct {
	ID                    uuid.UUID                    `json:"id"`
	OrderID               string                       `json:"order_id"`
	From                  wallet.AccountRef            `json:"from"`
	To                    wallet.AccountRef            `json:"to"`
	Amount                decimal.Decimal              `json:"amount"`
	Fee                   decimal.Decimal              `json:"fee"`
	Currency              string                       `json:"currency"`
	Status                wallet.TransferStatus        `json:"status"`
	CurrentPhase          wallet.Phase                 `json:"current_phase"`
	DebitReference        string                       `json:"debit_reference,omitempty"`
	CreditReference       string                       `json:"credit_reference,omitempty"`
	CompensationReference string                       `json:"compensation_reference,omitempty"`
	FailureReason         string                       `json:"failure_reason,omitempty"`
	CompensationLog       []wallet.CompensationAttempt `json:"compensation_log,omitempty"`
	Version               int                          `json:"version"`
	CreatedAt             time.Time                    `json:"created_at"`
	UpdatedAt             time.Time                    `json:"updated_at"`
}

// ToTransferResponse converts a transfer
func ToTransferResponse(t *wallet.WalletTransfer) TransferResponse {
	return TransferResponse{
		ID:                    t.ID,
		OrderID:               t.OrderID,
		From:                  t.From,
		To:                    t.To,
		Amount:                t.Amount,
		Fee:                   t.Fee,
		Currency:              t.Currency,
		Status:                t.Status,
		CurrentPhase:          t.CurrentPhase,
		DebitReference:        t.DebitReference,
		CreditReference:       t.CreditReference,
		CompensationReference: t.CompensationReference,
		FailureReason:         t.FailureReason,
		CompensationLog:       t.CompensationLog,
		Version:               t.Version,
		CreatedAt:             t.CreatedAt,
		UpdatedAt:             t.UpdatedAt,
	}
}

// Get returns one transfer
func (h *TransferHandler) Get(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	t, err := h.saga.GetTransfer(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, ToTransferResponse(t))
}

// Resume continues a transfer from its persisted phase. Terminal transfers
// are returned unchanged; a run that ends in failure answers with its error.
func (h *TransferHandler) Resume(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	t, err := h.saga.Resume(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, ToTransferResponse(t))
}
