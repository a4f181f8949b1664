package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/profelabs/profe/server/domain"
	"github.com/profelabs/profe/server/domain/repositories"
)

func newTestStore(t *testing.T) (*CacheStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	return NewCacheStore(client, WithTTL(300*time.Second)), mr
}

func sampleResponse() *repositories.CachedResponse {
	return &repositories.CachedResponse{
		Audio: domain.AudioArtifact{
			Bytes:           []byte{1, 2, 3, 4},
			DurationSeconds: 2.0,
			Voice:           "nova",
			Model:           "tts-1",
		},
		Timeline: domain.VisemeTimeline{
			Cues: []domain.VisemeCue{
				{StartMs: 0, EndMs: 500, Symbol: domain.VisemeD},
				{StartMs: 500, EndMs: 2000, Symbol: domain.VisemeX},
			},
			DurationSeconds: 2.0,
		},
		CreatedAt: time.Now().UTC(),
	}
}

func TestPutThenGetRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "abc123", sampleResponse()))

	got, err := store.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, got.Audio.Bytes)
	assert.Equal(t, 2.0, got.Timeline.DurationSeconds)
	assert.Len(t, got.Timeline.Cues, 2)
	assert.Equal(t, domain.VisemeX, got.Timeline.Cues[1].Symbol)
}

func TestGetMissingKey(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Get(context.Background(), "never-stored")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestEntriesExpire(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "short-lived", sampleResponse()))
	mr.FastForward(301 * time.Second)

	_, err := store.Get(ctx, "short-lived")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestGetCorruptEntry(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Set("profe:voice:response:bad", "not json")

	_, err := store.Get(context.Background(), "bad")
	var cacheErr *domain.CacheError
	assert.ErrorAs(t, err, &cacheErr)
}
