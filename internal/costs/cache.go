package costs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache stores computed quarterly rollups in Redis. Rollups aggregate over
// completed work orders only, so a short TTL is enough to keep dashboards
// fresh while sparing the aggregate queries.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache wraps a Redis client for rollup caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func rollupKey(workshopID *uuid.UUID, year int) string {
	scope := "fleet"
	if workshopID != nil {
		scope = workshopID.String()
	}
	return fmt.Sprintf("costs:rollup:%d:%s", year, scope)
}

// GetRollup returns a cached rollup, reporting a miss on any error.
func (c *Cache) GetRollup(ctx context.Context, workshopID *uuid.UUID, year int) ([]QuarterRollup, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	body, err := c.client.Get(ctx, rollupKey(workshopID, year)).Bytes()
	if err != nil {
		return nil, false
	}
	var rollups []QuarterRollup
	if err := json.Unmarshal(body, &rollups); err != nil {
		return nil, false
	}
	return rollups, true
}

// SetRollup stores a computed rollup. Failures are ignored: the next read
// recomputes from the database.
func (c *Cache) SetRollup(ctx context.Context, workshopID *uuid.UUID, year int, rollups []QuarterRollup) {
	if c == nil || c.client == nil {
		return
	}
	body, err := json.Marshal(rollups)
	if err != nil {
		return
	}
	c.client.Set(ctx, rollupKey(workshopID, year), body, c.ttl)
}
