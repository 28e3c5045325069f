package shared

import (
	"context"
	"time"
)

// IdempotencyStore guards side effects that may be invoked more than once,
// such as redelivered events or retried provider calls.
type IdempotencyStore interface {
	// MarkProcessed marks a key as processed with a TTL.
	// Returns true if the key was newly marked, false if it was already present.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks if a key has already been marked
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Release removes a mark so the key can be claimed again
	Release(ctx context.Context, key string) error

	// SaveResult stores the result reference recorded for a key
	SaveResult(ctx context.Context, key, reference string, ttl time.Duration) error

	// LoadResult returns the reference stored for a key, if any
	LoadResult(ctx context.Context, key string) (string, bool, error)

	// Close closes the store and releases resources
	Close() error
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	// TTL is how long a processed key is remembered. Default: 24 hours
	TTL time.Duration

	// Enabled determines whether idempotency checking is enabled
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
