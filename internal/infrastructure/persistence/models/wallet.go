package models

import (
	"encoding/json"
	"fmt"

	"github.com/marketplace/fulfillment/internal/domain/wallet"
	"github.com/shopspring/decimal"
)

// WalletTransferModel is the persistence model for wallet transfer sagas
type WalletTransferModel struct {
	AggregateModel
	OrderID               string                `gorm:"type:varchar(100);not null;index;uniqueIndex:uq_wallet_transfers_open_order,where:status <> 'failed' AND status <> 'rolled_back'"`
	FromProvider          string                `gorm:"type:varchar(50);not null"`
	FromAccountID         string                `gorm:"type:varchar(100);not null"`
	ToProvider            string                `gorm:"type:varchar(50);not null"`
	ToAccountID           string                `gorm:"type:varchar(100);not null"`
	Amount                decimal.Decimal       `gorm:"type:decimal(18,4);not null"`
	Fee                   decimal.Decimal       `gorm:"type:decimal(18,4);not null;default:0"`
	Currency              string                `gorm:"type:varchar(3);not null"`
	Status                wallet.TransferStatus `gorm:"type:varchar(30);not null;index"`
	CurrentPhase          wallet.Phase          `gorm:"type:varchar(20);not null"`
	DebitReference        string                `gorm:"type:varchar(100)"`
	CreditReference       string                `gorm:"type:varchar(100)"`
	CompensationReference string                `gorm:"type:varchar(100)"`
	FailureReason         string                `gorm:"type:text"`
	CompensationLog       string                `gorm:"type:jsonb;not null"`
}

// TableName returns the table name for GORM
func (WalletTransferModel) TableName() string {
	return "wallet_transfers"
}

// ToDomain converts the model to a domain WalletTransfer
func (m *WalletTransferModel) ToDomain() (*wallet.WalletTransfer, error) {
	var attempts []wallet.CompensationAttempt
	if m.CompensationLog != "" {
		if err := json.Unmarshal([]byte(m.CompensationLog), &attempts); err != nil {
			return nil, fmt.Errorf("decode compensation log of transfer %s: %w", m.ID, err)
		}
	}
	return &wallet.WalletTransfer{
		BaseAggregateRoot:     m.ToAggregateRoot(),
		OrderID:               m.OrderID,
		From:                  wallet.AccountRef{Provider: m.FromProvider, AccountID: m.FromAccountID},
		To:                    wallet.AccountRef{Provider: m.ToProvider, AccountID: m.ToAccountID},
		Amount:                m.Amount,
		Fee:                   m.Fee,
		Currency:              m.Currency,
		Status:                m.Status,
		CurrentPhase:          m.CurrentPhase,
		DebitReference:        m.DebitReference,
		CreditReference:       m.CreditReference,
		CompensationReference: m.CompensationReference,
		FailureReason:         m.FailureReason,
		CompensationLog:       attempts,
	}, nil
}

// WalletTransferModelFromDomain creates a model from a domain transfer
func WalletTransferModelFromDomain(t *wallet.WalletTransfer) (*WalletTransferModel, error) {
	log := t.CompensationLog
	if log == nil {
		log = []wallet.CompensationAttempt{}
	}
	encoded, err := json.Marshal(log)
	if err != nil {
		return nil, fmt.Errorf("encode compensation log of transfer %s: %w", t.ID, err)
	}
	m := &WalletTransferModel{
		OrderID:               t.OrderID,
		FromProvider:          t.From.Provider,
		FromAccountID:         t.From.AccountID,
		ToProvider:            t.To.Provider,
		ToAccountID:           t.To.AccountID,
		Amount:                t.Amount,
		Fee:                   t.Fee,
		Currency:              t.Currency,
		Status:                t.Status,
		CurrentPhase:          t.CurrentPhase,
		DebitReference:        t.DebitReference,
		CreditReference:       t.CreditReference,
		CompensationReference: t.CompensationReference,
		FailureReason:         t.FailureReason,
		CompensationLog:       string(encoded),
	}
	m.FromDomainAggregateRoot(t.BaseAggregateRoot)
	return m, nil
}
