package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/civicproof/boundary-registry/internal/domain/boundary"
)

// Cache is an optional Redis-backed collaborator for resolution results.
// The resolver itself never caches; callers that want caching key it on
// (rounded coordinate, asOf day, candidate-set version) so a new snapshot
// invalidates prior entries by construction.
type Cache struct {
	client  *redis.Client
	version string // candidate-set version, typically the snapshot id
	ttl     time.Duration
}

// NewCache wraps client with the given candidate-set version and entry TTL.
func NewCache(client *redis.Client, candidateSetVersion string, ttl time.Duration) *Cache {
	return &Cache{client: client, version: candidateSetVersion, ttl: ttl}
}

// Key rounds the coordinate to 5 decimal places (~1 m) and truncates asOf
// to the day, matching how boundary validity actually changes.
func (c *Cache) Key(p boundary.Point, asOf time.Time) string {
	return fmt.Sprintf("resolve:%s:%.5f:%.5f:%s",
		c.version, p.Lat, p.Lon, asOf.UTC().Format("2006-01-02"))
}

// Get returns a cached resolution, reporting found=false on a miss.
func (c *Cache) Get(ctx context.Context, p boundary.Point, asOf time.Time) (Resolution, bool, error) {
	raw, err := c.client.Get(ctx, c.Key(p, asOf)).Result()
	if errors.Is(err, redis.Nil) {
		return Resolution{}, false, nil
	}
	if err != nil {
		return Resolution{}, false, fmt.Errorf("cache get: %w", err)
	}
	var res Resolution
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return Resolution{}, false, fmt.Errorf("cache decode: %w", err)
	}
	return res, true, nil
}

// Put stores a resolution under the rounded key.
func (c *Cache) Put(ctx context.Context, p boundary.Point, asOf time.Time, res Resolution) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.client.Set(ctx, c.Key(p, asOf), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}
