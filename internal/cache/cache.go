// Package cache wraps Redis for JSON values and short-lived locks.
// A Store without a client is valid: reads miss and writes are no-ops.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// Store is a thin JSON cache over Redis.
type Store struct {
	rdb    *redis.Client
	prefix string
}

// New returns a Store backed by rdb. rdb may be nil.
func New(rdb *redis.Client, prefix string) *Store {
	return &Store{rdb: rdb, prefix: prefix}
}

// Connect creates a client and verifies it with a ping.
func Connect(ctx context.Context, addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "redis ping")
	}
	return rdb, nil
}

// Enabled reports whether a Redis client is configured.
func (s *Store) Enabled() bool {
	return s != nil && s.rdb != nil
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

// Get retrieves a cached value by key and unmarshals into dest.
// Returns true on a cache hit, false on miss or error.
func (s *Store) Get(ctx context.Context, key string, dest interface{}) bool {
	if !s.Enabled() {
		return false
	}

	val, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		return false
	}

	return json.Unmarshal(val, dest) == nil
}

// Set stores value under key for the given TTL.
func (s *Store) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "marshal")
	}

	return s.rdb.Set(ctx, s.key(key), data, ttl).Err()
}

// Del removes one or more keys.
func (s *Store) Del(ctx context.Context, keys ...string) error {
	if !s.Enabled() || len(keys) == 0 {
		return nil
	}

	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.key(k)
	}
	return s.rdb.Del(ctx, prefixed...).Err()
}

// Acquire sets key only if it is absent. It reports whether the caller
// obtained the key. Without Redis every call succeeds.
func (s *Store) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if !s.Enabled() {
		return true, nil
	}

	ok, err := s.rdb.SetNX(ctx, s.key(key), 1, ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "setnx")
	}
	return ok, nil
}

// TTL returns the remaining lifetime of key, or zero when it has none.
func (s *Store) TTL(ctx context.Context, key string) time.Duration {
	if !s.Enabled() {
		return 0
	}

	d, err := s.rdb.TTL(ctx, s.key(key)).Result()
	if err != nil || d < 0 {
		return 0
	}
	return d
}
