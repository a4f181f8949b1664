package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/profelabs/profe/server/domain"
	"github.com/profelabs/profe/server/domain/repositories"
)

func testAudio() domain.AudioArtifact {
	return domain.AudioArtifact{Bytes: []byte("pcm"), DurationSeconds: 2.0, Voice: "nova", Model: "tts-1"}
}

func testTimeline() domain.VisemeTimeline {
	return domain.VisemeTimeline{
		Cues:            []domain.VisemeCue{{StartMs: 0, EndMs: 2000, Symbol: domain.VisemeD}},
		DurationSeconds: 2.0,
	}
}

func TestGetMissThenHit(t *testing.T) {
	c := New(Config{}, zap.NewNop())
	ctx := context.Background()

	assert.Nil(t, c.Get(ctx, "absent"))

	c.Put(ctx, "k1", testAudio(), testTimeline())
	entry := c.Get(ctx, "k1")
	require.NotNil(t, entry)
	assert.Equal(t, 2.0, entry.Audio.DurationSeconds)
	assert.Equal(t, 1, entry.HitCount)

	entry = c.Get(ctx, "k1")
	require.NotNil(t, entry)
	assert.Equal(t, 2, entry.HitCount)
}

func TestTTLExpiry(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := New(Config{TTL: 300 * time.Second}, zap.NewNop(), WithClock(func() time.Time { return current }))
	ctx := context.Background()

	c.Put(ctx, "k1", testAudio(), testTimeline())

	current = current.Add(299 * time.Second)
	assert.NotNil(t, c.Get(ctx, "k1"))

	current = current.Add(2 * time.Second)
	assert.Nil(t, c.Get(ctx, "k1"), "entry older than TTL is treated as absent")
	assert.Equal(t, 0, c.Stats().Size, "expired entry is lazily removed")
}

func TestSweepEvictsLowestHitCounts(t *testing.T) {
	c := New(Config{MaxEntries: 10, TrimTo: 10}, zap.NewNop())
	ctx := context.Background()

	// 15 entries with distinct hit counts: entry i gets i hits.
	for i := 0; i < 15; i++ {
		key := fmt.Sprintf("k%02d", i)
		c.Put(ctx, key, testAudio(), testTimeline())
		for h := 0; h < i; h++ {
			require.NotNil(t, c.Get(ctx, key))
		}
	}

	c.Sweep()

	stats := c.Stats()
	assert.Equal(t, 10, stats.Size)
	for i := 0; i < 5; i++ {
		assert.Nil(t, c.Get(ctx, fmt.Sprintf("k%02d", i)), "low-hit entry %d should be evicted", i)
	}
	for i := 5; i < 15; i++ {
		assert.NotNil(t, c.Get(ctx, fmt.Sprintf("k%02d", i)), "high-hit entry %d should survive", i)
	}
}

func TestStats(t *testing.T) {
	c := New(Config{}, zap.NewNop())
	ctx := context.Background()

	c.Put(ctx, "a", testAudio(), testTimeline())
	c.Put(ctx, "b", testAudio(), testTimeline())
	c.Get(ctx, "a")
	c.Get(ctx, "a")
	c.Get(ctx, "b")

	stats := c.Stats()
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, 3, stats.TotalHits)
	assert.InDelta(t, 1.5, stats.AvgHitsPerEntry, 0.001)
}

func TestConcurrentAccess(t *testing.T) {
	c := New(Config{MaxEntries: 50}, zap.NewNop())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", j%20)
				c.Put(ctx, key, testAudio(), testTimeline())
				c.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Stats().Size, 50)
}

func TestJanitorSweepsOnPressure(t *testing.T) {
	c := New(Config{MaxEntries: 10, TrimTo: 10}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.RunJanitor(ctx, time.Hour)

	for i := 0; i < 15; i++ {
		c.Put(ctx, fmt.Sprintf("k%02d", i), testAudio(), testTimeline())
	}

	assert.Eventually(t, func() bool {
		return c.Stats().Size <= 10
	}, 2*time.Second, 10*time.Millisecond)
}

// memStore is a map-backed CacheStore for layering tests.
type memStore struct {
	mu   sync.Mutex
	data map[string]*repositories.CachedResponse
}

func (s *memStore) Get(ctx context.Context, key string) (*repositories.CachedResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.data[key]; ok {
		return r, nil
	}
	return nil, domain.ErrCacheMiss
}

func (s *memStore) Put(ctx context.Context, key string, r *repositories.CachedResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = r
	return nil
}

func TestPersistentStoreReadThroughAndWriteThrough(t *testing.T) {
	store := &memStore{data: make(map[string]*repositories.CachedResponse)}
	ctx := context.Background()

	writer := New(Config{}, zap.NewNop(), WithStore(store))
	writer.Put(ctx, "shared", testAudio(), testTimeline())
	assert.Len(t, store.data, 1, "Put writes through to the store")

	// A second instance with a cold memory map finds the entry via the store.
	reader := New(Config{}, zap.NewNop(), WithStore(store))
	entry := reader.Get(ctx, "shared")
	require.NotNil(t, entry)
	assert.Equal(t, 2.0, entry.Audio.DurationSeconds)
}
