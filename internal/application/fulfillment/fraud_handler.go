package fulfillment

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/marketplace/fulfillment/internal/domain/risk"
	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/marketplace/fulfillment/internal/domain/workflow"
	"github.com/marketplace/fulfillment/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// DefaultBlockThreshold is the score at which a high-tier assessment blocks
const DefaultBlockThreshold = risk.HighThreshold

// RiskScreener scores transactions and maintains behavioral profiles
type RiskScreener interface {
	Assess(ctx context.Context, tx risk.Transaction) (*risk.RiskAssessment, error)
	RecordTransaction(ctx context.Context, tx risk.Transaction) error
}

// FraudCheckHandler screens the order payment. Only a high tier at or above
// the block threshold fails the step; lower tiers succeed and stamp the
// recommended actions onto the order.
type FraudCheckHandler struct {
	screener         RiskScreener
	defaultThreshold int
	logger           *zap.Logger
}

// NewFraudCheckHandler creates a FraudCheckHandler
func NewFraudCheckHandler(screener RiskScreener, defaultThreshold int, log *zap.Logger) *FraudCheckHandler {
	if defaultThreshold <= 0 {
		defaultThreshold = DefaultBlockThreshold
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FraudCheckHandler{screener: screener, defaultThreshold: defaultThreshold, logger: log}
}

// Type implements StepHandler
func (h *FraudCheckHandler) Type() workflow.StepType { return workflow.StepTypeFraudCheck }

// Handle implements StepHandler
func (h *FraudCheckHandler) Handle(ctx context.Context, in StepInput) StepResult {
	threshold := h.defaultThreshold
	if cfg, ok := in.Config.(workflow.FraudCheckConfig); ok && cfg.BlockThreshold > 0 {
		threshold = cfg.BlockThreshold
	}

	tx := TransactionFor(in.OrderID, in.Order)
	assessment, err := h.screener.Assess(ctx, tx)
	if err != nil {
		return Failed(nil, err)
	}
	if err := h.screener.RecordTransaction(ctx, tx); err != nil {
		logger.WithLogger(ctx, h.logger).Warn("failed to update behavioral profile",
			zap.String("subject_id", tx.SubjectID),
			zap.Error(err),
		)
	}

	out := &workflow.FraudCheckOutput{
		AssessmentID:       assessment.ID,
		Score:              assessment.Score,
		Tier:               string(assessment.Tier),
		TriggeredSignals:   assessment.TriggeredSignals,
		RecommendedActions: assessment.RecommendedActions,
		BlockThreshold:     threshold,
		Blocked:            assessment.ShouldBlock(threshold),
	}
	if out.Blocked {
		return Failed(out, shared.NewDomainError(shared.CodeValidation,
			fmt.Sprintf("transaction blocked: risk score %d (tier %s) at or above threshold %d", out.Score, out.Tier, threshold)))
	}

	res := Succeeded(out)
	res.Annotations = map[string]string{
		workflow.AnnotationRiskTier:    out.Tier,
		workflow.AnnotationRiskScore:   strconv.Itoa(out.Score),
		workflow.AnnotationRiskActions: strings.Join(out.RecommendedActions, ","),
	}
	return res
}

// TransactionFor builds the risk transaction screened for an order
func TransactionFor(orderID string, order *workflow.OrderData) risk.Transaction {
	tx := risk.Transaction{
		SubjectID:         order.CustomerID,
		OrderID:           orderID,
		Amount:            order.Subtotal,
		Currency:          order.Currency,
		Provider:          string(order.Payment.Method),
		RecipientVerified: true,
		OriginCountry:     order.Device.Country,
		Location:          order.Shipping.Region,
		DeviceFingerprint: order.Device.Fingerprint,
		IPAddress:         order.Device.IPAddress,
		TimeZone:          order.Device.TimeZone,
	}
	if order.Payment.Method == workflow.PaymentMethodWallet {
		if order.Payment.From != nil {
			tx.Provider = order.Payment.From.Provider
		}
		if order.Payment.To != nil {
			tx.Recipient = order.Payment.To.AccountID
		}
		tx.RecipientVerified = order.Payment.RecipientVerified
	}
	return tx
}
