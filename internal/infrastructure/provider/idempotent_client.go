package provider

import (
	"context"
	"time"

	domain "github.com/marketplace/fulfillment/internal/domain/provider"
	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/marketplace/fulfillment/internal/infrastructure/logger"
	"go.uber.org/zap"
)

const idempotencyKeyPrefix = "provider:"

// storeKey scopes the caller's key by provider and operation so that equal
// keys for different calls never share a recorded reference
func storeKey(req domain.Request) string {
	return idempotencyKeyPrefix + req.Provider + ":" + req.Operation + ":" + req.IdempotencyKey
}

// IdempotentClient records the reference of every successful keyed call and
// replays it for later calls with the same key. A claim on the key keeps two
// callers from reaching the provider at once; the loser gets a retryable
// rejection. Requests without an idempotency key pass straight through.
type IdempotentClient struct {
	next   domain.Client
	store  shared.IdempotencyStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewIdempotentClient wraps next with replay protection
func NewIdempotentClient(next domain.Client, store shared.IdempotencyStore, ttl time.Duration, log *zap.Logger) *IdempotentClient {
	if ttl <= 0 {
		ttl = shared.DefaultIdempotencyConfig().TTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &IdempotentClient{next: next, store: store, ttl: ttl, logger: log}
}

// Call implements provider.Client
func (c *IdempotentClient) Call(ctx context.Context, req domain.Request) (*domain.Response, error) {
	if req.IdempotencyKey == "" {
		return c.next.Call(ctx, req)
	}
	key := storeKey(req)
	log := logger.WithLogger(ctx, c.logger).With(zap.String("idempotency_key", req.IdempotencyKey))

	ref, found, err := c.store.LoadResult(ctx, key)
	if err != nil {
		log.Warn("idempotency lookup failed, calling provider", zap.Error(err))
	} else if found {
		log.Debug("replaying recorded provider reference", zap.String("reference", ref))
		return &domain.Response{Success: true, Reference: ref}, nil
	}

	claimed, err := c.store.MarkProcessed(ctx, key, c.ttl)
	if err != nil {
		log.Warn("idempotency claim failed, calling provider", zap.Error(err))
		claimed = true
	} else if !claimed {
		return &domain.Response{Error: "call in progress for idempotency key", Retryable: true}, nil
	}
	defer func() {
		if claimed {
			if err := c.store.Release(context.WithoutCancel(ctx), key); err != nil {
				log.Warn("failed to release idempotency claim", zap.Error(err))
			}
		}
	}()

	resp, err := c.next.Call(ctx, req)
	if err != nil || resp == nil || !resp.Success {
		return resp, err
	}

	if err := c.store.SaveResult(context.WithoutCancel(ctx), key, resp.Reference, c.ttl); err != nil {
		log.Error("failed to record provider reference", zap.Error(err), zap.String("reference", resp.Reference))
	}
	return resp, nil
}
