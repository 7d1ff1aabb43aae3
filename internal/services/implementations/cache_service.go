package implementations

import (
	"context"
	"time"

	"whatisyourcolor/internal/domain/color"
	"whatisyourcolor/internal/platform/cache"
)

// CacheService implements color.SnapshotCache on top of Redis/Valkey.
// A nil client makes every read a miss and every write a no-op.
type CacheService struct {
	client *cache.RedisClient
	ttl    time.Duration
}

// NewCacheService creates a new cache service; ttl zero uses the client default
func NewCacheService(client *cache.RedisClient, ttl time.Duration) *CacheService {
	return &CacheService{
		client: client,
		ttl:    ttl,
	}
}

// Enabled reports whether a cache backend is configured
func (c *CacheService) Enabled() bool {
	return c != nil && c.client != nil
}

// LoadSnapshot returns the mirrored snapshot
func (c *CacheService) LoadSnapshot(ctx context.Context) (*color.Snapshot, error) {
	if !c.Enabled() {
		return nil, color.ErrCacheUnavailable
	}

	return c.client.GetSnapshot(ctx)
}

// SaveSnapshot mirrors snapshot
func (c *CacheService) SaveSnapshot(ctx context.Context, snapshot *color.Snapshot) error {
	if !c.Enabled() {
		return nil // Don't fail if cache is unavailable
	}

	return c.client.SetSnapshot(ctx, snapshot, c.ttl)
}

// Health checks cache connectivity
func (c *CacheService) Health(ctx context.Context) error {
	if !c.Enabled() {
		return color.ErrCacheUnavailable
	}

	return c.client.Health(ctx)
}
