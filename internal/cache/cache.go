// Package cache provides the content-addressable response cache that lets
// the pipeline skip synthesis and alignment for repeated teacher replies.
package cache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/profelabs/profe/server/domain"
	"github.com/profelabs/profe/server/domain/repositories"
)

const (
	// DefaultTTL is how long an entry stays valid.
	DefaultTTL = 300 * time.Second

	// DefaultMaxEntries is the entry-count ceiling that triggers a sweep.
	DefaultMaxEntries = 1000
)

// Entry is one cached synthesis result. Only LastUsedAt and HitCount are
// mutated after creation, and only under the cache lock.
type Entry struct {
	Key        string
	Audio      domain.AudioArtifact
	Timeline   domain.VisemeTimeline
	CreatedAt  time.Time
	LastUsedAt time.Time
	HitCount   int
}

// Stats summarizes cache effectiveness.
type Stats struct {
	Size            int     `json:"size"`
	TotalHits       int     `json:"total_hits"`
	AvgHitsPerEntry float64 `json:"avg_hits_per_entry"`
}

// Config tunes the cache.
type Config struct {
	// TTL for entries; zero means DefaultTTL.
	TTL time.Duration
	// MaxEntries is the sweep-trigger ceiling; zero means DefaultMaxEntries.
	MaxEntries int
	// TrimTo is the post-sweep target size; zero means 80% of MaxEntries.
	TrimTo int
}

// ResponseCache is the in-memory cache, optionally layered over a shared
// persistent store (read-through on miss, write-through on Put; store
// failures are absorbed and logged).
type ResponseCache struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	ttl        time.Duration
	maxEntries int
	trimTo     int

	store    repositories.CacheStore
	now      func() time.Time
	logger   *zap.Logger
	pressure chan struct{}
}

// Option configures a ResponseCache.
type Option func(*ResponseCache)

// WithStore layers a persistent cache store behind the in-memory map.
func WithStore(store repositories.CacheStore) Option {
	return func(c *ResponseCache) { c.store = store }
}

// WithClock injects a clock for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(c *ResponseCache) { c.now = now }
}

// New creates a response cache.
func New(config Config, logger *zap.Logger, opts ...Option) *ResponseCache {
	c := &ResponseCache{
		entries:    make(map[string]*Entry),
		ttl:        config.TTL,
		maxEntries: config.MaxEntries,
		trimTo:     config.TrimTo,
		now:        time.Now,
		logger:     logger,
		pressure:   make(chan struct{}, 1),
	}
	if c.ttl == 0 {
		c.ttl = DefaultTTL
	}
	if c.maxEntries == 0 {
		c.maxEntries = DefaultMaxEntries
	}
	if c.trimTo == 0 {
		c.trimTo = c.maxEntries * 8 / 10
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the entry for key, or nil when absent or expired. A hit
// increments HitCount and refreshes LastUsedAt.
func (c *ResponseCache) Get(ctx context.Context, key string) *Entry {
	now := c.now()

	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && now.Sub(entry.CreatedAt) >= c.ttl {
		delete(c.entries, key)
		ok = false
	}
	if ok {
		entry.HitCount++
		entry.LastUsedAt = now
		c.mu.Unlock()
		return entry
	}
	c.mu.Unlock()

	if c.store == nil {
		return nil
	}

	stored, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			c.logger.Warn("Persistent cache read failed",
				zap.String("key", key), zap.Error(err))
		}
		return nil
	}

	entry = &Entry{
		Key:        key,
		Audio:      stored.Audio,
		Timeline:   stored.Timeline,
		CreatedAt:  now,
		LastUsedAt: now,
		HitCount:   1,
	}
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	return entry
}

// Put stores a freshly synthesized result and sweeps if the cache is over
// its ceiling. The persistent store write is best-effort.
func (c *ResponseCache) Put(ctx context.Context, key string, audio domain.AudioArtifact, timeline domain.VisemeTimeline) {
	now := c.now()
	entry := &Entry{
		Key:        key,
		Audio:      audio,
		Timeline:   timeline,
		CreatedAt:  now,
		LastUsedAt: now,
	}

	c.mu.Lock()
	c.entries[key] = entry
	over := len(c.entries) > c.maxEntries
	c.mu.Unlock()

	if over {
		// Nudge the janitor; sweeping stays off the request path.
		select {
		case c.pressure <- struct{}{}:
		default:
		}
	}

	if c.store != nil {
		stored := &repositories.CachedResponse{Audio: audio, Timeline: timeline, CreatedAt: now}
		if err := c.store.Put(ctx, key, stored); err != nil {
			c.logger.Warn("Persistent cache write failed",
				zap.String("key", key), zap.Error(err))
		}
	}
}

// RunJanitor sweeps on the given interval, and immediately on capacity
// pressure, until ctx is cancelled. Run it in its own goroutine.
func (c *ResponseCache) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		case <-c.pressure:
			c.Sweep()
		}
	}
}

// Sweep removes expired entries, then evicts lowest-hit entries until the
// cache is back at its trim target.
func (c *ResponseCache) Sweep() {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		if now.Sub(entry.CreatedAt) >= c.ttl {
			delete(c.entries, key)
		}
	}

	if len(c.entries) <= c.maxEntries {
		return
	}

	survivors := make([]*Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		survivors = append(survivors, entry)
	}
	sort.Slice(survivors, func(i, j int) bool {
		return survivors[i].HitCount < survivors[j].HitCount
	})

	evict := len(survivors) - c.trimTo
	for _, entry := range survivors[:evict] {
		delete(c.entries, entry.Key)
	}
	c.logger.Info("Cache swept over-capacity entries",
		zap.Int("evicted", evict), zap.Int("remaining", len(c.entries)))
}

// Stats returns current cache effectiveness numbers.
func (c *ResponseCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := 0
	for _, entry := range c.entries {
		total += entry.HitCount
	}
	stats := Stats{Size: len(c.entries), TotalHits: total}
	if stats.Size > 0 {
		stats.AvgHitsPerEntry = float64(total) / float64(stats.Size)
	}
	return stats
}
