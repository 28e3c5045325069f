package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "fulfillment:idempotency:"

// RedisIdempotencyStore implements IdempotencyStore using Redis so that
// several service instances share claims and recorded provider references
type RedisIdempotencyStore struct {
	client    *redis.Client
	keyPrefix string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisIdempotencyStore connects to Redis and verifies the connection
func NewRedisIdempotencyStore(ctx context.Context, cfg RedisConfig) (*RedisIdempotencyStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisIdempotencyStore{
		client:    client,
		keyPrefix: defaultKeyPrefix,
	}, nil
}

// NewRedisIdempotencyStoreWithClient creates a store with an existing Redis client
func NewRedisIdempotencyStoreWithClient(client *redis.Client, keyPrefix string) *RedisIdempotencyStore {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisIdempotencyStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (s *RedisIdempotencyStore) claimKey(key string) string {
	return s.keyPrefix + "claim:" + key
}

func (s *RedisIdempotencyStore) resultKey(key string) string {
	return s.keyPrefix + "result:" + key
}

// MarkProcessed claims key with SETNX.
// Returns true if the key was newly claimed, false if it was already held.
func (s *RedisIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.claimKey(key), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	return ok, nil
}

// IsProcessed reports whether a claim is held for key
func (s *RedisIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	exists, err := s.client.Exists(ctx, s.claimKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	return exists > 0, nil
}

// Release drops the claim on key
func (s *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.claimKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

// SaveResult records the reference produced for key
func (s *RedisIdempotencyStore) SaveResult(ctx context.Context, key, reference string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.resultKey(key), reference, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save idempotency result: %w", err)
	}
	return nil
}

// LoadResult returns the reference recorded for key
func (s *RedisIdempotencyStore) LoadResult(ctx context.Context, key string) (string, bool, error) {
	ref, err := s.client.Get(ctx, s.resultKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to load idempotency result: %w", err)
	}
	return ref, true, nil
}

// Ping checks that Redis answers
func (s *RedisIdempotencyStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (s *RedisIdempotencyStore) Close() error {
	return s.client.Close()
}

// Ensure RedisIdempotencyStore implements IdempotencyStore
var _ shared.IdempotencyStore = (*RedisIdempotencyStore)(nil)
