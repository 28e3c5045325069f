// Package payment moves money between provider wallets as a compensating
// saga.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/marketplace/fulfillment/internal/domain/provider"
	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/marketplace/fulfillment/internal/domain/wallet"
	"github.com/marketplace/fulfillment/internal/infrastructure/logger"
	"github.com/marketplace/fulfillment/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// SagaConfig holds fee, limit and compensation settings
type SagaConfig struct {
	Fees                 wallet.FeeSchedule
	Limits               wallet.ProviderLimits
	CompensationAttempts int
	CompensationBackoff  time.Duration
}

// TransferRequest asks for amount to move from one account to another
type TransferRequest struct {
	OrderID  string
	From     wallet.AccountRef
	To       wallet.AccountRef
	Amount   decimal.Decimal
	Currency string
}

// SagaCoordinator runs wallet transfers. Every external call carries the
// idempotency key transfer_id:phase, and the transfer is persisted around
// each call so a crashed transfer can be resumed from its phase.
type SagaCoordinator struct {
	transfers wallet.TransferRepository
	client    provider.Client
	cfg       SagaConfig
	publisher shared.EventPublisher
	metrics   *telemetry.WorkflowMetrics
	logger    *zap.Logger
	now       func() time.Time
}

// SagaOption configures a SagaCoordinator
type SagaOption func(*SagaCoordinator)

// WithEventPublisher publishes transfer finished events
func WithEventPublisher(p shared.EventPublisher) SagaOption {
	return func(s *SagaCoordinator) {
		s.publisher = p
	}
}

// WithMetrics records finished transfers
func WithMetrics(m *telemetry.WorkflowMetrics) SagaOption {
	return func(s *SagaCoordinator) {
		s.metrics = m
	}
}

// WithClock replaces time.Now for compensation log timestamps
func WithClock(now func() time.Time) SagaOption {
	return func(s *SagaCoordinator) {
		s.now = now
	}
}

// NewSagaCoordinator creates a SagaCoordinator
func NewSagaCoordinator(transfers wallet.TransferRepository, client provider.Client, cfg SagaConfig, log *zap.Logger, opts ...SagaOption) *SagaCoordinator {
	if cfg.CompensationAttempts < 1 {
		cfg.CompensationAttempts = 1
	}
	if cfg.CompensationBackoff <= 0 {
		cfg.CompensationBackoff = 500 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &SagaCoordinator{
		transfers: transfers,
		client:    client,
		cfg:       cfg,
		logger:    log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Quote returns the fee for a transfer request
func (s *SagaCoordinator) Quote(req TransferRequest) decimal.Decimal {
	return s.cfg.Fees.Fee(req.Amount, req.From, req.To)
}

// Transfer validates the request, persists a new transfer and drives it to a
// terminal status. Validation and limit failures return no transfer and make
// no provider call. A transfer that fails or rolls back is returned without
// error; the caller reads the outcome from its status.
//
// An order has at most one live transfer. When the order already has one, a
// completed or reconciliation-bound transfer is returned as is and an
// unfinished one is resumed. Only a failed or rolled back transfer lets a
// new one start.
func (s *SagaCoordinator) Transfer(ctx context.Context, req TransferRequest) (*wallet.WalletTransfer, error) {
	if !req.Amount.IsPositive() {
		return nil, shared.NewDomainError(shared.CodeValidation, "transfer amount must be positive")
	}
	if !req.From.IsValid() || !req.To.IsValid() {
		return nil, shared.NewDomainError(shared.CodeValidation, "transfer requires source and destination accounts")
	}
	if err := s.cfg.Limits.Check(req.From.Provider, req.Amount); err != nil {
		return nil, err
	}

	if req.OrderID != "" {
		existing, err := s.existingForOrder(ctx, req.OrderID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, s.continueExisting(ctx, existing)
		}
	}
	fee := s.Quote(req)

	t, err := wallet.NewWalletTransfer(req.OrderID, req.From, req.To, req.Amount, fee, req.Currency)
	if err != nil {
		return nil, err
	}
	if err := s.transfers.Create(ctx, t); err != nil {
		if req.OrderID != "" {
			if racing, findErr := s.existingForOrder(ctx, req.OrderID); findErr == nil && racing != nil {
				return nil, shared.WrapDomainError(shared.CodeConcurrencyConflict,
					fmt.Sprintf("order %s already has transfer %s in progress", req.OrderID, racing.ID), err)
			}
		}
		return nil, fmt.Errorf("create transfer: %w", err)
	}

	logger.WithLogger(ctx, s.logger).Info("Wallet transfer started",
		zap.String("transfer_id", t.ID.String()),
		zap.String("order_id", t.OrderID),
		zap.String("from", t.From.String()),
		zap.String("to", t.To.String()),
		zap.String("amount", t.Amount.StringFixed(2)),
		zap.String("fee", t.Fee.StringFixed(2)),
	)
	return t, s.run(ctx, t)
}

// existingForOrder returns the order's latest transfer unless it failed or
// rolled back, in which case a new transfer may start
func (s *SagaCoordinator) existingForOrder(ctx context.Context, orderID string) (*wallet.WalletTransfer, error) {
	t, err := s.transfers.FindLatestByOrder(ctx, orderID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find transfer for order %s: %w", orderID, err)
	}
	switch t.Status {
	case wallet.TransferStatusFailed, wallet.TransferStatusRolledBack:
		return nil, nil
	}
	return t, nil
}

func (s *SagaCoordinator) continueExisting(ctx context.Context, t *wallet.WalletTransfer) error {
	log := logger.WithLogger(ctx, s.logger).With(
		zap.String("transfer_id", t.ID.String()),
		zap.String("order_id", t.OrderID),
		zap.String("status", string(t.Status)),
	)
	if t.IsTerminal() {
		log.Info("Order already has a wallet transfer")
		return nil
	}
	log.Info("Resuming wallet transfer for order")
	return s.run(ctx, t)
}

// Resume continues a non-terminal transfer from its persisted phase
func (s *SagaCoordinator) Resume(ctx context.Context, id uuid.UUID) (*wallet.WalletTransfer, error) {
	t, err := s.transfers.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.IsTerminal() {
		return t, nil
	}
	logger.WithLogger(ctx, s.logger).Info("Resuming wallet transfer",
		zap.String("transfer_id", t.ID.String()),
		zap.String("status", string(t.Status)),
		zap.String("phase", string(t.CurrentPhase)),
	)
	return t, s.run(ctx, t)
}

// GetTransfer returns a transfer by ID
func (s *SagaCoordinator) GetTransfer(ctx context.Context, id uuid.UUID) (*wallet.WalletTransfer, error) {
	return s.transfers.FindByID(ctx, id)
}

// ResumeInFlight resumes every transfer left unfinished by a previous
// process and returns how many reached a terminal status
func (s *SagaCoordinator) ResumeInFlight(ctx context.Context) (int, error) {
	inFlight, err := s.transfers.ListInFlight(ctx)
	if err != nil {
		return 0, fmt.Errorf("list in-flight transfers: %w", err)
	}
	var (
		finished int
		errs     []error
	)
	for _, t := range inFlight {
		if err := s.run(ctx, t); err != nil {
			errs = append(errs, fmt.Errorf("transfer %s: %w", t.ID, err))
			continue
		}
		if t.IsTerminal() {
			finished++
		}
	}
	if len(inFlight) > 0 {
		logger.WithLogger(ctx, s.logger).Info("Resumed in-flight transfers",
			zap.Int("found", len(inFlight)),
			zap.Int("finished", finished),
		)
	}
	return finished, errors.Join(errs...)
}

func (s *SagaCoordinator) run(ctx context.Context, t *wallet.WalletTransfer) error {
	ctx, span := telemetry.StartSpan(ctx, "saga.transfer",
		telemetry.WithSpanKind(trace.SpanKindInternal),
		telemetry.WithAttribute(telemetry.SpanAttrTransferID, t.ID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrOrderID, t.OrderID),
		telemetry.WithAttribute(telemetry.SpanAttrAmount, t.Amount.String()),
		telemetry.WithAttribute(telemetry.SpanAttrCurrency, t.Currency),
	)
	defer span.End()

	for !t.IsTerminal() {
		var err error
		switch {
		case t.Status == wallet.TransferStatusPending:
			err = s.debit(ctx, t)
		case t.CurrentPhase == wallet.PhaseCredit:
			err = s.credit(ctx, t)
		case t.CurrentPhase == wallet.PhaseCompensate:
			err = s.compensate(ctx, t)
		default:
			err = shared.NewDomainError(shared.CodeInvalidState,
				fmt.Sprintf("transfer in status %s has no runnable phase %s", t.Status, t.CurrentPhase))
		}
		if err != nil {
			telemetry.RecordError(span, err)
			return err
		}
	}

	telemetry.SetAttribute(span, telemetry.SpanAttrPhase, string(t.Status))
	telemetry.SetOK(span)
	s.metrics.RecordTransfer(ctx, string(t.Status))
	s.publish(ctx, t)
	return nil
}

func (s *SagaCoordinator) debit(ctx context.Context, t *wallet.WalletTransfer) error {
	resp, err := s.call(ctx, t, wallet.PhaseDebit, provider.OperationDebit, t.From, t.DebitTotal())
	if err != nil {
		if markErr := t.MarkDebitFailed(err.Error()); markErr != nil {
			return markErr
		}
		logger.WithLogger(ctx, s.logger).Warn("Wallet transfer debit failed",
			zap.String("transfer_id", t.ID.String()),
			zap.Error(err),
		)
		return s.save(ctx, t)
	}
	if err := t.MarkDebited(resp.Reference); err != nil {
		return err
	}
	return s.save(ctx, t)
}

func (s *SagaCoordinator) credit(ctx context.Context, t *wallet.WalletTransfer) error {
	resp, err := s.call(ctx, t, wallet.PhaseCredit, provider.OperationCredit, t.To, t.Amount)
	if err != nil {
		if markErr := t.MarkCreditFailed(err.Error()); markErr != nil {
			return markErr
		}
		logger.WithLogger(ctx, s.logger).Warn("Wallet transfer credit failed, compensating",
			zap.String("transfer_id", t.ID.String()),
			zap.Error(err),
		)
		return s.save(ctx, t)
	}
	if err := t.MarkCredited(resp.Reference); err != nil {
		return err
	}
	return s.save(ctx, t)
}

// compensate credits the source back for the full debit. It runs detached
// from the caller's cancellation: a debited transfer must end either rolled
// back or flagged for reconciliation.
func (s *SagaCoordinator) compensate(ctx context.Context, t *wallet.WalletTransfer) error {
	ctx = context.WithoutCancel(ctx)
	log := logger.WithLogger(ctx, s.logger).With(zap.String("transfer_id", t.ID.String()))

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.cfg.CompensationBackoff
	exp.MaxElapsedTime = 0
	exp.Reset()
	policy := backoff.WithMaxRetries(exp, uint64(s.cfg.CompensationAttempts-1))

	var reference string
	operation := func() error {
		resp, err := s.call(ctx, t, wallet.PhaseCompensate, provider.OperationCredit, t.From, t.DebitTotal())
		attempt := t.RecordCompensationAttempt(s.now(), referenceOf(resp, err), err)
		if saveErr := s.save(ctx, t); saveErr != nil {
			return backoff.Permanent(saveErr)
		}
		if err != nil {
			log.Warn("Compensation attempt failed", zap.Int("attempt", attempt.Attempt), zap.Error(err))
			return err
		}
		reference = resp.Reference
		return nil
	}

	err := backoff.Retry(operation, policy)
	var saveErr *backoff.PermanentError
	if errors.As(err, &saveErr) {
		return saveErr.Err
	}
	if err != nil {
		log.Error("Compensation exhausted, transfer requires manual reconciliation",
			zap.Int("attempts", len(t.CompensationLog)),
			zap.Error(err),
		)
		if markErr := t.MarkRequiresReconciliation(fmt.Sprintf("compensation failed: %v", err)); markErr != nil {
			return markErr
		}
		return s.save(ctx, t)
	}

	log.Info("Wallet transfer rolled back", zap.String("reference", reference))
	if err := t.MarkRolledBack(reference); err != nil {
		return err
	}
	return s.save(ctx, t)
}

func (s *SagaCoordinator) call(ctx context.Context, t *wallet.WalletTransfer, phase wallet.Phase, operation string, account wallet.AccountRef, amount decimal.Decimal) (*provider.Response, error) {
	ctx, span := telemetry.StartSpan(ctx, "saga."+string(phase),
		telemetry.WithAttribute(telemetry.SpanAttrTransferID, t.ID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrPhase, string(phase)),
		telemetry.WithAttribute(telemetry.SpanAttrProvider, account.Provider),
	)
	defer span.End()

	resp, err := provider.Do(ctx, s.client, provider.Request{
		Provider:       account.Provider,
		Operation:      operation,
		IdempotencyKey: IdempotencyKey(t.ID, phase),
		Account:        account.AccountID,
		Amount:         amount,
		Currency:       t.Currency,
		Metadata:       map[string]string{"order_id": t.OrderID, "transfer_id": t.ID.String()},
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetOK(span)
	return resp, nil
}

func (s *SagaCoordinator) save(ctx context.Context, t *wallet.WalletTransfer) error {
	if err := s.transfers.Update(ctx, t); err != nil {
		return fmt.Errorf("persist transfer %s: %w", t.ID, err)
	}
	return nil
}

func (s *SagaCoordinator) publish(ctx context.Context, t *wallet.WalletTransfer) {
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, t.GetDomainEvents()...); err != nil {
			logger.WithLogger(ctx, s.logger).Warn("failed to publish transfer event", zap.Error(err))
		}
	}
	t.ClearDomainEvents()
}

// IdempotencyKey returns the provider idempotency key of a transfer phase
func IdempotencyKey(id uuid.UUID, phase wallet.Phase) string {
	return id.String() + ":" + string(phase)
}

func referenceOf(resp *provider.Response, err error) string {
	if err != nil || resp == nil {
		return ""
	}
	return resp.Reference
}
