// Package redis provides a Redis-backed Cache implementation, sharing the
// same go-redis client family used by the redis vector store provider.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/veridex/veridex/cache"
)

func init() {
	cache.Register("redis", func(cfg cache.Config) (cache.Cache, error) {
		addr, _ := cfg.Options["addr"].(string)
		if addr == "" {
			return nil, fmt.Errorf("cache/redis: config option %q is required", "addr")
		}
		return New(addr, cfg.TTL), nil
	})
}

// Client is the subset of *goredis.Client used by Store, satisfied by the
// real client and by test doubles.
type Client interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, ttl time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
	Keys(ctx context.Context, pattern string) *goredis.StringSliceCmd
}

// Store is a Cache backed by Redis. Values are JSON-encoded for storage, so
// a round-tripped value decodes to Go's generic JSON representation (maps,
// slices, float64, string, bool, nil) rather than its original static type.
type Store struct {
	client     Client
	defaultTTL time.Duration
	prefix     string
}

// New creates a Store using addr to connect to a Redis server. defaultTTL
// is used when Set is called with a zero TTL.
func New(addr string, defaultTTL time.Duration) *Store {
	return &Store{
		client:     goredis.NewClient(&goredis.Options{Addr: addr}),
		defaultTTL: defaultTTL,
		prefix:     "cache:",
	}
}

// NewWithClient creates a Store around an existing Client, for tests and
// for sharing a connection pool with other components.
func NewWithClient(client Client, defaultTTL time.Duration) *Store {
	return &Store{client: client, defaultTTL: defaultTTL, prefix: "cache:"}
}

// Get retrieves and JSON-decodes a value by key. A missing key returns
// (nil, false, nil).
func (s *Store) Get(ctx context.Context, key string) (any, bool, error) {
	raw, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache/redis: get: %w", err)
	}

	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, false, fmt.Errorf("cache/redis: decode: %w", err)
	}
	return value, true, nil
}

// Set JSON-encodes value and stores it under key with the given TTL. A zero
// TTL uses the store's default TTL; a negative TTL means no expiration.
func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache/redis: encode: %w", err)
	}

	if ttl == 0 {
		ttl = s.defaultTTL
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache/redis: set: %w", err)
	}
	return nil
}

// Delete removes a key. Deleting a non-existent key is a no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("cache/redis: delete: %w", err)
	}
	return nil
}

// Clear removes every key under this store's prefix.
func (s *Store) Clear(ctx context.Context) error {
	keys, err := s.client.Keys(ctx, s.prefix+"*").Result()
	if err != nil {
		return fmt.Errorf("cache/redis: keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache/redis: clear: %w", err)
	}
	return nil
}
