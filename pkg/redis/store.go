package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store implements kvstore.Store on Redis so breaker state and the shared
// factor tier are visible to every instance.
type Store struct {
	client *Client
}

// NewStore creates a Redis-backed key-value store
func NewStore(client *Client) *Store {
	return &Store{client: client}
}

// Get retrieves a raw value. A missing key is a miss, not an error.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if !s.client.Enabled() {
		return nil, false, nil
	}

	data, err := s.client.Redis().Get(ctx, s.client.key("kv", key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, true, nil
}

// Set stores a raw value; ttl <= 0 keeps it until deleted
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !s.client.Enabled() {
		return nil
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Redis().Set(ctx, s.client.key("kv", key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes keys
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if !s.client.Enabled() || len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.client.key("kv", k)
	}
	if err := s.client.Redis().Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Exists reports whether key is present
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if !s.client.Enabled() {
		return false, nil
	}
	n, err := s.client.Redis().Exists(ctx, s.client.key("kv", key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", key, err)
	}
	return n > 0, nil
}
