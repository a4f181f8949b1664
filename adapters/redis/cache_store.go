// Package redis provides the optional shared persistent backing store for
// the response cache.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/profelabs/profe/server/domain"
	"github.com/profelabs/profe/server/domain/repositories"
)

const defaultPrefix = "profe:voice"

// CacheStore is a Redis-backed CacheStore. Entries expire server-side via
// the same TTL the in-memory cache uses, so both layers agree on freshness.
type CacheStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// Ensure CacheStore implements the CacheStore interface
var _ repositories.CacheStore = (*CacheStore)(nil)

// Option configures a CacheStore.
type Option func(*CacheStore)

// WithTTL overrides the default entry TTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *CacheStore) { s.ttl = ttl }
}

// WithPrefix overrides the default key prefix.
func WithPrefix(prefix string) Option {
	return func(s *CacheStore) { s.prefix = prefix }
}

// NewCacheStore creates a Redis-backed cache store.
func NewCacheStore(client *redis.Client, opts ...Option) *CacheStore {
	store := &CacheStore{
		client: client,
		ttl:    300 * time.Second,
		prefix: defaultPrefix,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Get retrieves a cached response, or domain.ErrCacheMiss when absent.
func (s *CacheStore) Get(ctx context.Context, key string) (*repositories.CachedResponse, error) {
	data, err := s.client.Get(ctx, s.entryKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrCacheMiss
		}
		return nil, &domain.CacheError{Op: "get", Cause: err}
	}

	var response repositories.CachedResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, &domain.CacheError{Op: "get", Cause: fmt.Errorf("failed to unmarshal entry: %w", err)}
	}
	return &response, nil
}

// Put stores a cached response under the shared key with TTL.
func (s *CacheStore) Put(ctx context.Context, key string, response *repositories.CachedResponse) error {
	if response == nil {
		return &domain.CacheError{Op: "put", Cause: errors.New("nil response")}
	}

	data, err := json.Marshal(response)
	if err != nil {
		return &domain.CacheError{Op: "put", Cause: fmt.Errorf("failed to marshal entry: %w", err)}
	}

	if err := s.client.Set(ctx, s.entryKey(key), data, s.ttl).Err(); err != nil {
		return &domain.CacheError{Op: "put", Cause: err}
	}
	return nil
}

func (s *CacheStore) entryKey(key string) string {
	return s.prefix + ":response:" + key
}
