package provider

import (
	"time"

	domain "github.com/marketplace/fulfillment/internal/domain/provider"
	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/marketplace/fulfillment/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// NewClientStack composes the production decorator order: retries outside,
// idempotent replay inside, so every retried attempt consults the store.
func NewClientStack(base domain.Client, store shared.IdempotencyStore, retry RetryConfig, ttl time.Duration, log *zap.Logger, metrics *telemetry.WorkflowMetrics) domain.Client {
	var client domain.Client = base
	if store != nil {
		client = NewIdempotentClient(client, store, ttl, log)
	}
	return NewRetryingClient(client, retry, log, WithMetrics(metrics))
}
