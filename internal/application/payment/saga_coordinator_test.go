package payment

import (
	"context"
	"testing"
	"time"

	domain "github.com/marketplace/fulfillment/internal/domain/provider"
	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/marketplace/fulfillment/internal/domain/wallet"
	"github.com/marketplace/fulfillment/internal/infrastructure/cache"
	"github.com/marketplace/fulfillment/internal/infrastructure/persistence"
	"github.com/marketplace/fulfillment/internal/infrastructure/provider"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	buyer  = wallet.AccountRef{Provider: "mpesa", AccountID: "buyer"}
	seller = wallet.AccountRef{Provider: "airtel", AccountID: "seller"}
)

type sagaFixture struct {
	saga      *SagaCoordinator
	fake      *provider.FakeClient
	store     *cache.InMemoryIdempotencyStore
	transfers wallet.TransferRepository
	client    domain.Client
	published []shared.DomainEvent
}

func (f *sagaFixture) Publish(_ context.Context, events ...shared.DomainEvent) error {
	f.published = append(f.published, events...)
	return nil
}

func newSagaFixture(t *testing.T) *sagaFixture {
	t.Helper()
	db, err := persistence.OpenSQLite("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, persistence.AutoMigrate(db.DB))

	f := &sagaFixture{
		fake:      provider.NewFakeClient(provider.WithOpeningBalance(decimal.NewFromInt(1000))),
		store:     cache.NewInMemoryIdempotencyStore(),
		transfers: persistence.NewGormTransferRepository(db.DB),
	}
	t.Cleanup(func() { _ = f.store.Close() })

	log := zaptest.NewLogger(t)
	f.client = provider.NewClientStack(f.fake, f.store, provider.RetryConfig{
		MaxAttempts:     1,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		CallTimeout:     time.Second,
	}, time.Hour, log, nil)

	f.saga = NewSagaCoordinator(f.transfers, f.client, SagaConfig{
		Fees:                 wallet.FeeSchedule{BaseFee: decimal.RequireFromString("2.50")},
		Limits:               wallet.NewProviderLimits(map[string]decimal.Decimal{"mpesa": decimal.NewFromInt(500)}),
		CompensationAttempts: 3,
		CompensationBackoff:  time.Millisecond,
	}, log, WithEventPublisher(f))
	return f
}

func request(amount int64) TransferRequest {
	return TransferRequest{
		OrderID:  "ord-1",
		From:     buyer,
		To:       seller,
		Amount:   decimal.NewFromInt(amount),
		Currency: "KES",
	}
}

func (f *sagaFixture) balance(ref wallet.AccountRef) decimal.Decimal {
	return f.fake.Balance(ref.Provider, ref.AccountID)
}

func TestSagaCoordinator_Completed(t *testing.T) {
	f := newSagaFixture(t)

	tr, err := f.saga.Transfer(context.Background(), request(100))
	require.NoError(t, err)

	assert.Equal(t, wallet.TransferStatusCompleted, tr.Status)
	assert.NotEmpty(t, tr.DebitReference)
	assert.NotEmpty(t, tr.CreditReference)
	assert.True(t, decimal.RequireFromString("2.50").Equal(tr.Fee))
	assert.True(t, decimal.RequireFromString("897.50").Equal(f.balance(buyer)))
	assert.True(t, decimal.NewFromInt(1100).Equal(f.balance(seller)))

	stored, err := f.transfers.FindByID(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, wallet.TransferStatusCompleted, stored.Status)
	assert.Equal(t, wallet.PhaseDone, stored.CurrentPhase)

	require.Len(t, f.published, 1)
	assert.Equal(t, wallet.EventTypeTransferFinished, f.published[0].EventType())

	calls := f.fake.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, IdempotencyKey(tr.ID, wallet.PhaseDebit), calls[0].IdempotencyKey)
	assert.Equal(t, IdempotencyKey(tr.ID, wallet.PhaseCredit), calls[1].IdempotencyKey)
	assert.True(t, decimal.RequireFromString("102.50").Equal(calls[0].Amount))
	assert.True(t, decimal.NewFromInt(100).Equal(calls[1].Amount))
}

func TestSagaCoordinator_CreditFailureRollsBack(t *testing.T) {
	f := newSagaFixture(t)
	f.fake.FailNext(seller.Provider, domain.OperationCredit, 1, false)
	f.fake.FailNext(buyer.Provider, domain.OperationCredit, 1, true)

	tr, err := f.saga.Transfer(context.Background(), request(100))
	require.NoError(t, err)

	assert.Equal(t, wallet.TransferStatusRolledBack, tr.Status)
	assert.NotEmpty(t, tr.CompensationReference)
	require.Len(t, tr.CompensationLog, 2)
	assert.False(t, tr.CompensationLog[0].Success)
	assert.True(t, tr.CompensationLog[1].Success)

	assert.True(t, decimal.NewFromInt(1000).Equal(f.balance(buyer)), "source made whole")
	assert.True(t, decimal.NewFromInt(1000).Equal(f.balance(seller)))

	stored, err := f.transfers.FindByID(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, wallet.TransferStatusRolledBack, stored.Status)
	assert.Len(t, stored.CompensationLog, 2)
}

func TestSagaCoordinator_CompensationExhausted(t *testing.T) {
	f := newSagaFixture(t)
	f.fake.FailNext(seller.Provider, domain.OperationCredit, 1, false)
	f.fake.FailNext(buyer.Provider, domain.OperationCredit, 10, false)

	tr, err := f.saga.Transfer(context.Background(), request(100))
	require.NoError(t, err)

	assert.Equal(t, wallet.TransferStatusRequiresReconciliation, tr.Status)
	assert.Len(t, tr.CompensationLog, 3)
	assert.Empty(t, tr.CompensationReference)
	assert.Contains(t, tr.FailureReason, "compensation failed")
	assert.Equal(t, 3, f.fake.CallCount(buyer.Provider, domain.OperationCredit))
	assert.True(t, decimal.RequireFromString("897.50").Equal(f.balance(buyer)))

	require.Len(t, f.published, 1)
	ev := f.published[0].(*wallet.TransferFinishedEvent)
	assert.Equal(t, wallet.TransferStatusRequiresReconciliation, ev.Status)
}

func TestSagaCoordinator_DebitFailure(t *testing.T) {
	f := newSagaFixture(t)
	f.fake.SetBalance(buyer.Provider, buyer.AccountID, decimal.NewFromInt(10))

	tr, err := f.saga.Transfer(context.Background(), request(100))
	require.NoError(t, err)

	assert.Equal(t, wallet.TransferStatusFailed, tr.Status)
	assert.Contains(t, tr.FailureReason, "insufficient funds")
	assert.Equal(t, 0, f.fake.CallCount(seller.Provider, domain.OperationCredit))
	assert.Equal(t, 0, f.fake.CallCount(buyer.Provider, domain.OperationCredit))
}

func TestSagaCoordinator_RejectsBeforeAnyCall(t *testing.T) {
	tests := []struct {
		name string
		req  TransferRequest
		want error
	}{
		{"over provider limit", request(501), shared.ErrLimitExceeded},
		{"zero amount", request(0), shared.ErrInvalidInput},
		{"missing destination", TransferRequest{From: buyer, Amount: decimal.NewFromInt(1)}, shared.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSagaFixture(t)
			tr, err := f.saga.Transfer(context.Background(), tt.req)
			assert.Nil(t, tr)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, shared.KindValidation, shared.KindOf(err))
			assert.Empty(t, f.fake.Calls())

			inFlight, err := f.transfers.ListInFlight(context.Background())
			require.NoError(t, err)
			assert.Empty(t, inFlight)
		})
	}
}

func TestSagaCoordinator_ResumeReplaysRecordedDebit(t *testing.T) {
	f := newSagaFixture(t)
	ctx := context.Background()

	// a debit that reached the provider before the process died
	tr, err := wallet.NewWalletTransfer("ord-2", buyer, seller, decimal.NewFromInt(100), decimal.RequireFromString("2.50"), "KES")
	require.NoError(t, err)
	require.NoError(t, f.transfers.Create(ctx, tr))
	first, err := f.client.Call(ctx, domain.Request{
		Provider:       buyer.Provider,
		Operation:      domain.OperationDebit,
		IdempotencyKey: IdempotencyKey(tr.ID, wallet.PhaseDebit),
		Account:        buyer.AccountID,
		Amount:         tr.DebitTotal(),
	})
	require.NoError(t, err)
	require.True(t, first.Success)

	resumed, err := f.saga.Resume(ctx, tr.ID)
	require.NoError(t, err)

	assert.Equal(t, wallet.TransferStatusCompleted, resumed.Status)
	assert.Equal(t, first.Reference, resumed.DebitReference)
	assert.Equal(t, 1, f.fake.CallCount(buyer.Provider, domain.OperationDebit), "debit replayed, not repeated")
	assert.True(t, decimal.RequireFromString("897.50").Equal(f.balance(buyer)))

	again, err := f.saga.Resume(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, wallet.TransferStatusCompleted, again.Status)
	assert.Len(t, f.fake.Calls(), 2)
}

func TestSagaCoordinator_OneLiveTransferPerOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("completed transfer is returned again", func(t *testing.T) {
		f := newSagaFixture(t)
		first, err := f.saga.Transfer(ctx, request(100))
		require.NoError(t, err)
		second, err := f.saga.Transfer(ctx, request(100))
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, wallet.TransferStatusCompleted, second.Status)
		assert.Equal(t, 1, f.fake.CallCount(buyer.Provider, domain.OperationDebit))
		assert.True(t, decimal.RequireFromString("897.50").Equal(f.balance(buyer)))
		assert.Len(t, f.published, 1)
	})

	t.Run("unfinished transfer is resumed", func(t *testing.T) {
		f := newSagaFixture(t)
		pending, err := wallet.NewWalletTransfer("ord-1", buyer, seller, decimal.NewFromInt(100), decimal.RequireFromString("2.50"), "KES")
		require.NoError(t, err)
		require.NoError(t, f.transfers.Create(ctx, pending))

		tr, err := f.saga.Transfer(ctx, request(100))
		require.NoError(t, err)
		assert.Equal(t, pending.ID, tr.ID)
		assert.Equal(t, wallet.TransferStatusCompleted, tr.Status)
		assert.Equal(t, 1, f.fake.CallCount(buyer.Provider, domain.OperationDebit))
	})

	t.Run("rolled back transfer allows a new one", func(t *testing.T) {
		f := newSagaFixture(t)
		f.fake.FailNext(seller.Provider, domain.OperationCredit, 1, false)
		rolledBack, err := f.saga.Transfer(ctx, request(100))
		require.NoError(t, err)
		require.Equal(t, wallet.TransferStatusRolledBack, rolledBack.Status)

		retried, err := f.saga.Transfer(ctx, request(100))
		require.NoError(t, err)
		assert.NotEqual(t, rolledBack.ID, retried.ID)
		assert.Equal(t, wallet.TransferStatusCompleted, retried.Status)
		assert.True(t, decimal.RequireFromString("897.50").Equal(f.balance(buyer)))
	})
}

func TestSagaCoordinator_ResumeInFlight(t *testing.T) {
	f := newSagaFixture(t)
	ctx := context.Background()

	pending, err := wallet.NewWalletTransfer("ord-3", buyer, seller, decimal.NewFromInt(10), decimal.Zero, "KES")
	require.NoError(t, err)
	require.NoError(t, f.transfers.Create(ctx, pending))

	compensating, err := wallet.NewWalletTransfer("ord-4", buyer, seller, decimal.NewFromInt(20), decimal.Zero, "KES")
	require.NoError(t, err)
	require.NoError(t, f.transfers.Create(ctx, compensating))
	require.NoError(t, compensating.MarkDebited("dbt-earlier"))
	require.NoError(t, compensating.MarkCreditFailed("destination offline"))
	require.NoError(t, f.transfers.Update(ctx, compensating))

	finished, err := f.saga.ResumeInFlight(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, finished)

	got, err := f.transfers.FindByID(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, wallet.TransferStatusCompleted, got.Status)

	got, err = f.transfers.FindByID(ctx, compensating.ID)
	require.NoError(t, err)
	assert.Equal(t, wallet.TransferStatusRolledBack, got.Status)

	inFlight, err := f.transfers.ListInFlight(ctx)
	require.NoError(t, err)
	assert.Empty(t, inFlight)
}

func TestSagaCoordinator_CompensationSurvivesCancellation(t *testing.T) {
	f := newSagaFixture(t)
	f.fake.FailNext(seller.Provider, domain.OperationCredit, 1, false)

	ctx, cancel := context.WithCancel(context.Background())
	tr, err := wallet.NewWalletTransfer("ord-5", buyer, seller, decimal.NewFromInt(50), decimal.Zero, "KES")
	require.NoError(t, err)
	require.NoError(t, f.transfers.Create(ctx, tr))
	require.NoError(t, tr.MarkDebited("dbt-x"))
	require.NoError(t, tr.MarkCreditFailed("offline"))
	require.NoError(t, f.transfers.Update(ctx, tr))

	cancel()
	require.NoError(t, f.saga.run(ctx, tr))
	assert.Equal(t, wallet.TransferStatusRolledBack, tr.Status)
	assert.True(t, decimal.NewFromInt(1050).Equal(f.balance(buyer)))
}
