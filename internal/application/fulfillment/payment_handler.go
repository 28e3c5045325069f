package fulfillment

import (
	"context"
	"fmt"

	"github.com/marketplace/fulfillment/internal/application/payment"
	"github.com/marketplace/fulfillment/internal/domain/provider"
	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/marketplace/fulfillment/internal/domain/wallet"
	"github.com/marketplace/fulfillment/internal/domain/workflow"
	"github.com/marketplace/fulfillment/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// Payment statuses reported in the step output
const (
	PaymentStatusCaptured = "captured"
	PaymentStatusDeferred = "deferred"
	PaymentStatusDeclined = "declined"
)

// DefaultCardProvider charges card payments when no provider is configured
const DefaultCardProvider = "card_gateway"

// WalletTransferer runs wallet-to-wallet transfers
type WalletTransferer interface {
	Transfer(ctx context.Context, req payment.TransferRequest) (*wallet.WalletTransfer, error)
}

// FailedPaymentRecorder counts failed payments against a customer profile
type FailedPaymentRecorder interface {
	RecordFailedPayment(ctx context.Context, subjectID string) error
}

// PaymentHandler collects payment by the order's payment method
type PaymentHandler struct {
	transfers    WalletTransferer
	client       provider.Client
	cardProvider string
	failures     FailedPaymentRecorder
	logger       *zap.Logger
}

// PaymentHandlerOption configures a PaymentHandler
type PaymentHandlerOption func(*PaymentHandler)

// WithCardProvider sets the default card provider
func WithCardProvider(name string) PaymentHandlerOption {
	return func(h *PaymentHandler) {
		if name != "" {
			h.cardProvider = name
		}
	}
}

// WithFailedPaymentRecorder feeds declined payments into the risk profile
func WithFailedPaymentRecorder(r FailedPaymentRecorder) PaymentHandlerOption {
	return func(h *PaymentHandler) {
		h.failures = r
	}
}

// NewPaymentHandler creates a PaymentHandler
func NewPaymentHandler(transfers WalletTransferer, client provider.Client, log *zap.Logger, opts ...PaymentHandlerOption) *PaymentHandler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &PaymentHandler{transfers: transfers, client: client, cardProvider: DefaultCardProvider, logger: log}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Type implements StepHandler
func (h *PaymentHandler) Type() workflow.StepType { return workflow.StepTypePaymentProcessing }

// Handle implements StepHandler
func (h *PaymentHandler) Handle(ctx context.Context, in StepInput) StepResult {
	var res StepResult
	switch in.Order.Payment.Method {
	case workflow.PaymentMethodWallet:
		res = h.wallet(ctx, in)
	case workflow.PaymentMethodCard:
		res = h.card(ctx, in)
	case workflow.PaymentMethodCashOnDelivery:
		res = Succeeded(&workflow.PaymentOutput{
			Method: workflow.PaymentMethodCashOnDelivery,
			Status: PaymentStatusDeferred,
			Amount: in.Order.Subtotal,
		})
	default:
		res = Failed(nil, shared.NewDomainError(shared.CodeValidation,
			fmt.Sprintf("unsupported payment method %q", in.Order.Payment.Method)))
	}

	if !res.Success && h.failures != nil && shared.KindOf(res.Err) == shared.KindExternalCall {
		if err := h.failures.RecordFailedPayment(ctx, in.Order.CustomerID); err != nil {
			logger.WithLogger(ctx, h.logger).Warn("failed to record failed payment", zap.Error(err))
		}
	}
	return res
}

func (h *PaymentHandler) wallet(ctx context.Context, in StepInput) StepResult {
	p := in.Order.Payment
	if p.From == nil || p.To == nil {
		return Failed(nil, shared.NewDomainError(shared.CodeValidation, "wallet payment requires source and destination accounts"))
	}
	t, err := h.transfers.Transfer(ctx, payment.TransferRequest{
		OrderID:  in.OrderID,
		From:     *p.From,
		To:       *p.To,
		Amount:   in.Order.Subtotal,
		Currency: in.Order.Currency,
	})
	if err != nil {
		return Failed(nil, err)
	}

	id := t.ID
	out := &workflow.PaymentOutput{
		Method:     workflow.PaymentMethodWallet,
		Status:     string(t.Status),
		TransferID: &id,
		Reference:  t.CreditReference,
		Amount:     t.Amount,
		Fee:        t.Fee,
	}
	switch t.Status {
	case wallet.TransferStatusCompleted:
		return Succeeded(out)
	case wallet.TransferStatusRequiresReconciliation:
		return Failed(out, shared.NewDomainError(shared.CodeRequiresReconciliation,
			fmt.Sprintf("transfer %s requires manual reconciliation: %s", t.ID, t.FailureReason)))
	default:
		return Failed(out, shared.WrapDomainError(shared.CodeExternalCall,
			fmt.Sprintf("transfer %s %s", t.ID, t.Status), fmt.Errorf("%s", t.FailureReason)))
	}
}

func (h *PaymentHandler) card(ctx context.Context, in StepInput) StepResult {
	providerName := h.cardProvider
	if cfg, ok := in.Config.(workflow.PaymentConfig); ok && cfg.CardProvider != "" {
		providerName = cfg.CardProvider
	}
	out := &workflow.PaymentOutput{Method: workflow.PaymentMethodCard, Amount: in.Order.Subtotal}

	resp, err := provider.Do(ctx, h.client, provider.Request{
		Provider:       providerName,
		Operation:      provider.OperationCharge,
		IdempotencyKey: in.OrderID + ":charge",
		Account:        in.Order.Payment.Token,
		Amount:         in.Order.Subtotal,
		Currency:       in.Order.Currency,
		Metadata:       map[string]string{"order_id": in.OrderID, "customer_id": in.Order.CustomerID},
	})
	if err != nil {
		out.Status = PaymentStatusDeclined
		return Failed(out, err)
	}
	out.Status = PaymentStatusCaptured
	out.Reference = resp.Reference
	return Succeeded(out)
}
