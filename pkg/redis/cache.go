package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache provides typed caching utilities
// ⭐ SSOT: cache helpers live only here
type Cache struct {
	client *Client
	prefix string
}

// NewCache creates a new cache helper
func NewCache(client *Client, prefix string) *Cache {
	return &Cache{
		client: client,
		prefix: prefix,
	}
}

func (c *Cache) key(key string) string {
	return fmt.Sprintf("%s:cache:%s", c.prefix, key)
}

// Get retrieves a cached value
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.client.Enabled() {
		return false, nil
	}

	data, err := c.client.Redis().Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get failed: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache unmarshal failed: %w", err)
	}

	return true, nil
}

// Set stores a value in cache with TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.client.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}

	return c.client.Redis().Set(ctx, c.key(key), data, ttl).Err()
}

// Delete removes a cached value
func (c *Cache) Delete(ctx context.Context, key string) error {
	if !c.client.Enabled() {
		return nil
	}

	return c.client.Redis().Del(ctx, c.key(key)).Err()
}

// Generation returns the current value of a generation counter.
// Embedding it in cache keys invalidates a whole key family on Bump.
func (c *Cache) Generation(ctx context.Context, name string) (int64, error) {
	if !c.client.Enabled() {
		return 0, nil
	}

	n, err := c.client.Redis().Get(ctx, c.key("gen:"+name)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache generation failed: %w", err)
	}
	return n, nil
}

// Bump advances a generation counter
func (c *Cache) Bump(ctx context.Context, name string) error {
	if !c.client.Enabled() {
		return nil
	}
	return c.client.Redis().Incr(ctx, c.key("gen:"+name)).Err()
}

// Predefined TTLs
const (
	TTLShort  = 1 * time.Minute  // job status
	TTLMedium = 10 * time.Minute // current forecast queries
	TTLLong   = 1 * time.Hour    // catalog
	TTLDaily  = 24 * time.Hour   // dispatch dedup
)

// Common key generators

func CurrentForecastKey(generation int64, commodityID, municipalityID int64, from, to string) string {
	return fmt.Sprintf("current:%d:%d:%d:%s:%s", generation, commodityID, municipalityID, from, to)
}

func DispatchActionKey(actionID string) string {
	return fmt.Sprintf("dispatch:action:%s", actionID)
}

func FullRunLimitKey(actor string) string {
	return fmt.Sprintf("fullrun:%s", actor)
}

// CurrentForecastGeneration is bumped after every committed batch
const CurrentForecastGeneration = "current"

// JobEventsChannel carries retraining job state changes
const JobEventsChannel = "forecast:jobs"
