package feedcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "feed:cache:"

// RedisStore keeps cache entries in Redis, CBOR-encoded, with the key TTL
// mirroring the entry's expiry so Redis evicts on its own.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed cache store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(userID string) string {
	return redisKeyPrefix + userID
}

// Get returns the user's entry, or (nil, nil) when absent or evicted.
func (s *RedisStore) Get(ctx context.Context, userID string) (*Entry, error) {
	raw, err := s.client.Get(ctx, redisKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis feed cache get: %w", err)
	}

	var e Entry
	if err := cbor.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode feed cache entry: %w", err)
	}
	return &e, nil
}

// Put replaces the user's entry. The Redis TTL tracks the entry expiry.
func (s *RedisStore) Put(ctx context.Context, entry Entry) error {
	raw, err := cbor.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode feed cache entry: %w", err)
	}

	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, redisKey(entry.UserID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis feed cache set: %w", err)
	}
	return nil
}

// Delete removes the user's entry.
func (s *RedisStore) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, redisKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis feed cache delete: %w", err)
	}
	return nil
}
