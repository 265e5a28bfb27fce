package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wavecast/logger"
	"wavecast/model"

	"github.com/redis/go-redis/v9"
)

// CatalogCache caches the hot public listings (featured, popular, recent)
// in Redis as JSON blobs with a short TTL. A nil cache is a valid no-op:
// every lookup is a miss.
type CatalogCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCatalogCache creates a catalog cache on the given client.
func NewCatalogCache(client *redis.Client) *CatalogCache {
	return &CatalogCache{client: client, ttl: 60 * time.Second}
}

func listingKey(scope string) string {
	return fmt.Sprintf("catalog:%s", scope)
}

// GetTracks returns the cached listing for scope, or (nil, false) on a miss.
func (c *CatalogCache) GetTracks(ctx context.Context, scope string) ([]*model.Track, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}

	data, err := c.client.Get(ctx, listingKey(scope)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Warn("catalog cache read failed", logger.String("scope", scope), logger.ErrorField(err))
		}
		return nil, false
	}

	var tracks []*model.Track
	if err := json.Unmarshal(data, &tracks); err != nil {
		logger.Warn("catalog cache entry corrupt, dropping", logger.String("scope", scope), logger.ErrorField(err))
		c.client.Del(ctx, listingKey(scope))
		return nil, false
	}
	return tracks, true
}

// SetTracks stores a listing for scope. Failures are logged, never surfaced;
// the cache is strictly an accelerator.
func (c *CatalogCache) SetTracks(ctx context.Context, scope string, tracks []*model.Track) {
	if c == nil || c.client == nil {
		return
	}

	data, err := json.Marshal(tracks)
	if err != nil {
		logger.Warn("catalog cache encode failed", logger.String("scope", scope), logger.ErrorField(err))
		return
	}
	if err := c.client.Set(ctx, listingKey(scope), data, c.ttl).Err(); err != nil {
		logger.Warn("catalog cache write failed", logger.String("scope", scope), logger.ErrorField(err))
	}
}

// Invalidate drops every cached listing. Called after any write that changes
// public visibility (moderation, feature flag, delete, new admin upload).
func (c *CatalogCache) Invalidate(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}

	for _, scope := range []string{"featured", "popular", "recent"} {
		if err := c.client.Del(ctx, listingKey(scope)).Err(); err != nil {
			logger.Warn("catalog cache invalidation failed", logger.String("scope", scope), logger.ErrorField(err))
		}
	}
}
