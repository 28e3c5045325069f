package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/marketplace/fulfillment/internal/domain/wallet"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTransfer(t *testing.T, orderID string) *wallet.WalletTransfer {
	t.Helper()
	tr, err := wallet.NewWalletTransfer(orderID,
		wallet.AccountRef{Provider: "mpesa", AccountID: "254700000001"},
		wallet.AccountRef{Provider: "airtel", AccountID: "254730000002"},
		decimal.RequireFromString("1500.00"),
		decimal.RequireFromString("30.50"),
		"KES",
	)
	require.NoError(t, err)
	return tr
}

func TestGormTransferRepository_Lifecycle(t *testing.T) {
	repo := NewGormTransferRepository(newSQLiteDB(t))
	ctx := context.Background()

	tr := newTransfer(t, "ord-100")
	require.NoError(t, repo.Create(ctx, tr))

	require.NoError(t, tr.MarkDebited("dbt-1"))
	require.NoError(t, repo.Update(ctx, tr))
	require.NoError(t, tr.MarkCreditFailed("destination offline"))
	tr.RecordCompensationAttempt(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC), "", errors.New("timeout"))
	tr.RecordCompensationAttempt(time.Date(2026, 6, 1, 9, 0, 5, 0, time.UTC), "rev-1", nil)
	require.NoError(t, tr.MarkRolledBack("rev-1"))
	require.NoError(t, repo.Update(ctx, tr))
	assert.Equal(t, 3, tr.Version)

	found, err := repo.FindByID(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, wallet.TransferStatusRolledBack, found.Status)
	assert.Equal(t, wallet.PhaseDone, found.CurrentPhase)
	assert.Equal(t, "mpesa", found.From.Provider)
	assert.Equal(t, "254730000002", found.To.AccountID)
	assert.True(t, decimal.RequireFromString("1530.50").Equal(found.DebitTotal()))
	assert.Equal(t, "dbt-1", found.DebitReference)
	assert.Equal(t, "rev-1", found.CompensationReference)
	assert.Equal(t, "destination offline", found.FailureReason)
	require.Len(t, found.CompensationLog, 2)
	assert.False(t, found.CompensationLog[0].Success)
	assert.Equal(t, "timeout", found.CompensationLog[0].Error)
	assert.True(t, found.CompensationLog[1].Success)
	assert.Equal(t, 3, found.Version)
}

func TestGormTransferRepository_OptimisticLock(t *testing.T) {
	repo := NewGormTransferRepository(newSQLiteDB(t))
	ctx := context.Background()

	tr := newTransfer(t, "ord-101")
	require.NoError(t, repo.Create(ctx, tr))

	first, err := repo.FindByID(ctx, tr.ID)
	require.NoError(t, err)
	second, err := repo.FindByID(ctx, tr.ID)
	require.NoError(t, err)

	require.NoError(t, first.MarkDebited("dbt-a"))
	require.NoError(t, repo.Update(ctx, first))

	require.NoError(t, second.MarkDebitFailed("insufficient funds"))
	err = repo.Update(ctx, second)
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)

	stored, err := repo.FindByID(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, wallet.TransferStatusDebited, stored.Status)
}

func TestGormTransferRepository_ListInFlight(t *testing.T) {
	repo := NewGormTransferRepository(newSQLiteDB(t))
	ctx := context.Background()

	pending := newTransfer(t, "ord-1")
	require.NoError(t, repo.Create(ctx, pending))

	debited := newTransfer(t, "ord-2")
	require.NoError(t, debited.MarkDebited("dbt-2"))
	require.NoError(t, repo.Create(ctx, debited))

	done := newTransfer(t, "ord-3")
	require.NoError(t, done.MarkDebited("dbt-3"))
	require.NoError(t, done.MarkCredited("crd-3"))
	require.NoError(t, repo.Create(ctx, done))

	inFlight, err := repo.ListInFlight(ctx)
	require.NoError(t, err)
	require.Len(t, inFlight, 2)
	ids := []string{inFlight[0].OrderID, inFlight[1].OrderID}
	assert.ElementsMatch(t, []string{"ord-1", "ord-2"}, ids)
}

func TestGormTransferRepository_FindLatestByOrder(t *testing.T) {
	repo := NewGormTransferRepository(newSQLiteDB(t))
	ctx := context.Background()

	_, err := repo.FindLatestByOrder(ctx, "ord-200")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	declined := newTransfer(t, "ord-200")
	require.NoError(t, declined.MarkDebitFailed("insufficient funds"))
	require.NoError(t, repo.Create(ctx, declined))

	retry := newTransfer(t, "ord-200")
	retry.CreatedAt = declined.CreatedAt.Add(time.Second)
	require.NoError(t, repo.Create(ctx, retry), "a failed transfer does not block a new one")

	latest, err := repo.FindLatestByOrder(ctx, "ord-200")
	require.NoError(t, err)
	assert.Equal(t, retry.ID, latest.ID)

	t.Run("only one live transfer per order", func(t *testing.T) {
		duplicate := newTransfer(t, "ord-200")
		assert.Error(t, repo.Create(ctx, duplicate))
	})
}
