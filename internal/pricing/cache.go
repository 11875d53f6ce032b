package pricing

// Redis-backed catalog cache. A run caches the catalogs it discovered so
// the control API can answer catalog queries without opening a browser.

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// catalogKey is the single Redis key holding the most recent catalogs.
const catalogKey = "harvester:catalogs:ec2"

// CachedCatalogs is the page's current region and operating system offering
// as of CollectedAt.
type CachedCatalogs struct {
	Regions          []string  `json:"regions"`
	OperatingSystems []string  `json:"operating_systems"`
	CollectedAt      time.Time `json:"collected_at"`
}

// CatalogCache provides Redis-backed catalog caching.
type CatalogCache struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewCatalogCache creates a catalog cache around an existing Redis client.
func NewCatalogCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *CatalogCache {
	return &CatalogCache{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// Get retrieves the cached catalogs. A cache miss returns (nil, nil).
func (c *CatalogCache) Get(ctx context.Context) (*CachedCatalogs, error) {
	data, err := c.client.Get(ctx, catalogKey).Result()
	if err == redis.Nil {
		return nil, nil // Not found in cache
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var catalogs CachedCatalogs
	if err := json.Unmarshal([]byte(data), &catalogs); err != nil {
		return nil, fmt.Errorf("unmarshal catalogs: %w", err)
	}

	return &catalogs, nil
}

// Set stores the catalogs with the configured TTL.
func (c *CatalogCache) Set(ctx context.Context, catalogs *CachedCatalogs) error {
	data, err := json.Marshal(catalogs)
	if err != nil {
		return fmt.Errorf("marshal catalogs: %w", err)
	}

	if err := c.client.Set(ctx, catalogKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	c.logger.Debug("catalogs cached",
		zap.Int("regions", len(catalogs.Regions)),
		zap.Int("operating_systems", len(catalogs.OperatingSystems)),
	)

	return nil
}
