package repositories

import (
	"context"
	"time"

	"github.com/profelabs/profe/server/domain"
)

// CachedResponse is the serializable payload stored per cache key.
type CachedResponse struct {
	Audio     domain.AudioArtifact  `json:"audio"`
	Timeline  domain.VisemeTimeline `json:"timeline"`
	CreatedAt time.Time             `json:"created_at"`
}

// CacheStore is an optional persistent backing store for the response
// cache, shared across service instances. Get returns domain.ErrCacheMiss
// when the key is absent or expired.
type CacheStore interface {
	Get(ctx context.Context, key string) (*CachedResponse, error)
	Put(ctx context.Context, key string, response *CachedResponse) error
}
