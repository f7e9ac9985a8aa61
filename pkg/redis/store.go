package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a byte-oriented key/value store with TTL, used as the
// persistent layer behind the in-process fetch cache.
type Store struct {
	client *Client
	prefix string
}

// NewStore creates a store whose keys live under "<prefix>:cache:"
func NewStore(client *Client, prefix string) *Store {
	return &Store{
		client: client,
		prefix: prefix,
	}
}

func (s *Store) key(k string) string {
	return fmt.Sprintf("%s:cache:%s", s.prefix, k)
}

// Get returns (value, true, nil) on hit and (nil, false, nil) on miss.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if !s.client.Enabled() {
		return nil, false, nil
	}

	data, err := s.client.Redis().Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return data, true, nil
}

// Set stores value with TTL. Redis expires the key on its own.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !s.client.Enabled() {
		return nil
	}

	if err := s.client.Redis().Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Name identifies the backend in logs
func (s *Store) Name() string { return "redis" }

// scanBatch is the SCAN COUNT hint
const scanBatch = 500

// each calls fn with every batch of keys under the store prefix
func (s *Store) each(ctx context.Context, fn func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Redis().Scan(ctx, cursor, s.key("*"), scanBatch).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Count returns the number of cached keys
func (s *Store) Count(ctx context.Context) (int, error) {
	if !s.client.Enabled() {
		return 0, nil
	}
	n := 0
	err := s.each(ctx, func(keys []string) error {
		n += len(keys)
		return nil
	})
	return n, err
}

// Purge deletes every cached key
func (s *Store) Purge(ctx context.Context) error {
	if !s.client.Enabled() {
		return nil
	}
	return s.each(ctx, func(keys []string) error {
		if err := s.client.Redis().Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
		return nil
	})
}
