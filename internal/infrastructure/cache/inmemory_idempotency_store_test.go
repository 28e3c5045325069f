package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marketplace/fulfillment/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T) (*InMemoryIdempotencyStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewInMemoryIdempotencyStore(WithClock(clock.Now))
	t.Cleanup(func() { _ = store.Close() })
	return store, clock
}

func TestInMemoryIdempotencyStore_MarkProcessed(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	isNew, err := store.MarkProcessed(ctx, "tr-1:debit", time.Hour)
	require.NoError(t, err)
	assert.True(t, isNew)

	isNew, err = store.MarkProcessed(ctx, "tr-1:debit", time.Hour)
	require.NoError(t, err)
	assert.False(t, isNew, "live claim must not be claimed twice")

	processed, err := store.IsProcessed(ctx, "tr-1:debit")
	require.NoError(t, err)
	assert.True(t, processed)

	clock.Advance(2 * time.Hour)

	processed, err = store.IsProcessed(ctx, "tr-1:debit")
	require.NoError(t, err)
	assert.False(t, processed)

	isNew, err = store.MarkProcessed(ctx, "tr-1:debit", time.Hour)
	require.NoError(t, err)
	assert.True(t, isNew, "expired claim can be taken again")
}

func TestInMemoryIdempotencyStore_Release(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.MarkProcessed(ctx, "k", time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.Release(ctx, "k"))

	isNew, err := store.MarkProcessed(ctx, "k", time.Hour)
	require.NoError(t, err)
	assert.True(t, isNew)
}

func TestInMemoryIdempotencyStore_Results(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	_, found, err := store.LoadResult(ctx, "tr-1:credit")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.SaveResult(ctx, "tr-1:credit", "crd-42", time.Hour))
	require.NoError(t, store.Release(ctx, "tr-1:credit"))

	ref, found, err := store.LoadResult(ctx, "tr-1:credit")
	require.NoError(t, err)
	assert.True(t, found, "release only drops the claim")
	assert.Equal(t, "crd-42", ref)

	clock.Advance(time.Hour + time.Second)
	_, found, err = store.LoadResult(ctx, "tr-1:credit")
	require.NoError(t, err)
	assert.False(t, found)

	store.cleanup()
	assert.Zero(t, store.Size())
}

func TestInMemoryIdempotencyStore_ConcurrentClaims(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := store.MarkProcessed(ctx, "same-key", time.Minute); ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners.Load())
}

func TestInMemoryIdempotencyStore_CloseIsIdempotent(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}

func TestIdempotencyStoreFactory(t *testing.T) {
	t.Run("empty host selects in-memory", func(t *testing.T) {
		store, err := NewIdempotencyStoreFactory(config.RedisConfig{}).CreateStore(context.Background())
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &InMemoryIdempotencyStore{}, store)
	})

	t.Run("unreachable redis falls back", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		store, err := NewIdempotencyStoreFactory(config.RedisConfig{Host: "127.0.0.1", Port: 1}).CreateStore(ctx)
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &InMemoryIdempotencyStore{}, store)
	})

	t.Run("fallback can be disabled", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := NewIdempotencyStoreFactory(config.RedisConfig{Host: "127.0.0.1", Port: 1},
			WithInMemoryFallback(false)).CreateStore(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis required")
	})
}
