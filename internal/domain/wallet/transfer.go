package wallet

import (
	"time"

	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// AggregateTypeWalletTransfer is the aggregate type for wallet transfers
const AggregateTypeWalletTransfer = "WalletTransfer"

// TransferStatus is the lifecycle state of a transfer
type TransferStatus string

const (
	TransferStatusPending                TransferStatus = "pending"
	TransferStatusDebited                TransferStatus = "debited"
	TransferStatusCredited               TransferStatus = "credited"
	TransferStatusCompleted              TransferStatus = "completed"
	TransferStatusFailed                 TransferStatus = "failed"
	TransferStatusRolledBack             TransferStatus = "rolled_back"
	TransferStatusRequiresReconciliation TransferStatus = "requires_reconciliation"
)

// IsTerminal reports whether the transfer is finished
func (s TransferStatus) IsTerminal() bool {
	switch s {
	case TransferStatusCompleted, TransferStatusFailed, TransferStatusRolledBack, TransferStatusRequiresReconciliation:
		return true
	}
	return false
}

// Phase is the external call a transfer is performing
type Phase string

const (
	PhaseDebit      Phase = "debit"
	PhaseCredit     Phase = "credit"
	PhaseCompensate Phase = "compensate"
	PhaseDone       Phase = "done"
)

// CompensationAttempt records one try at crediting the source back
type CompensationAttempt struct {
	Attempt   int       `json:"attempt"`
	At        time.Time `json:"at"`
	Success   bool      `json:"success"`
	Reference string    `json:"reference,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// WalletTransfer moves money between two provider accounts as a saga:
// debit the source, credit the destination, and credit the source back
// if the second leg fails.
type WalletTransfer struct {
	shared.BaseAggregateRoot
	OrderID               string
	From                  AccountRef
	To                    AccountRef
	Amount                decimal.Decimal
	Fee                   decimal.Decimal
	Currency              string
	Status                TransferStatus
	CurrentPhase          Phase
	DebitReference        string
	CreditReference       string
	CompensationReference string
	FailureReason         string
	CompensationLog       []CompensationAttempt
}

// NewWalletTransfer creates a pending transfer positioned at the debit phase
func NewWalletTransfer(orderID string, from, to AccountRef, amount, fee decimal.Decimal, currency string) (*WalletTransfer, error) {
	if !amount.IsPositive() {
		return nil, shared.NewDomainError(shared.CodeValidation, "transfer amount must be positive")
	}
	if !from.IsValid() || !to.IsValid() {
		return nil, shared.NewDomainError(shared.CodeValidation, "transfer requires source and destination accounts")
	}
	if fee.IsNegative() {
		return nil, shared.NewDomainError(shared.CodeValidation, "transfer fee must not be negative")
	}
	return &WalletTransfer{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		OrderID:           orderID,
		From:              from,
		To:                to,
		Amount:            amount,
		Fee:               fee,
		Currency:          currency,
		Status:            TransferStatusPending,
		CurrentPhase:      PhaseDebit,
	}, nil
}

// DebitTotal is the amount taken from the source: amount plus fee
func (t *WalletTransfer) DebitTotal() decimal.Decimal {
	return t.Amount.Add(t.Fee)
}

// MarkDebited records the debit reference and moves to the credit phase
func (t *WalletTransfer) MarkDebited(reference string) error {
	if t.Status != TransferStatusPending || reference == "" {
		return shared.ErrInvalidState
	}
	t.DebitReference = reference
	t.Status = TransferStatusDebited
	t.CurrentPhase = PhaseCredit
	t.Touch()
	return nil
}

// MarkDebitFailed ends the transfer; nothing was taken from the source
func (t *WalletTransfer) MarkDebitFailed(reason string) error {
	if t.Status != TransferStatusPending {
		return shared.ErrInvalidState
	}
	t.Status = TransferStatusFailed
	t.FailureReason = reason
	t.CurrentPhase = PhaseDone
	t.Touch()
	t.AddDomainEvent(NewTransferFinishedEvent(t))
	return nil
}

// MarkCredited records the credit reference and completes the transfer
func (t *WalletTransfer) MarkCredited(reference string) error {
	if t.Status != TransferStatusDebited || reference == "" || t.DebitReference == "" {
		return shared.ErrInvalidState
	}
	t.CreditReference = reference
	t.Status = TransferStatusCredited
	t.Touch()
	return t.complete()
}

func (t *WalletTransfer) complete() error {
	if t.DebitReference == "" || t.CreditReference == "" {
		return shared.ErrInvalidState
	}
	t.Status = TransferStatusCompleted
	t.CurrentPhase = PhaseDone
	t.AddDomainEvent(NewTransferFinishedEvent(t))
	return nil
}

// MarkCreditFailed moves a debited transfer into the compensation phase
func (t *WalletTransfer) MarkCreditFailed(reason string) error {
	if t.Status != TransferStatusDebited {
		return shared.ErrInvalidState
	}
	t.FailureReason = reason
	t.CurrentPhase = PhaseCompensate
	t.Touch()
	return nil
}

// RecordCompensationAttempt appends an attempt to the compensation log
func (t *WalletTransfer) RecordCompensationAttempt(at time.Time, reference string, err error) CompensationAttempt {
	attempt := CompensationAttempt{
		Attempt:   len(t.CompensationLog) + 1,
		At:        at,
		Success:   err == nil,
		Reference: reference,
	}
	if err != nil {
		attempt.Error = err.Error()
	}
	t.CompensationLog = append(t.CompensationLog, attempt)
	t.Touch()
	return attempt
}

// MarkRolledBack records the credit-back reference
func (t *WalletTransfer) MarkRolledBack(reference string) error {
	if t.CurrentPhase != PhaseCompensate || t.DebitReference == "" || reference == "" {
		return shared.ErrInvalidState
	}
	t.CompensationReference = reference
	t.Status = TransferStatusRolledBack
	t.CurrentPhase = PhaseDone
	t.Touch()
	t.AddDomainEvent(NewTransferFinishedEvent(t))
	return nil
}

// MarkRequiresReconciliation parks a transfer whose compensation could not be completed
func (t *WalletTransfer) MarkRequiresReconciliation(reason string) error {
	if t.CurrentPhase != PhaseCompensate {
		return shared.ErrInvalidState
	}
	if reason != "" {
		t.FailureReason = reason
	}
	t.Status = TransferStatusRequiresReconciliation
	t.CurrentPhase = PhaseDone
	t.Touch()
	t.AddDomainEvent(NewTransferFinishedEvent(t))
	return nil
}

// IsTerminal reports whether the transfer is finished
func (t *WalletTransfer) IsTerminal() bool {
	return t.Status.IsTerminal()
}
