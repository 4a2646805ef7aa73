package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wonny/harvest/backend/pkg/config"
)

// Client wraps the Redis client with additional utilities
// ⭐ SSOT: Redis connections are managed only here
type Client struct {
	rdb     *redis.Client
	enabled bool
}

// New creates a new Redis client
func New(ctx context.Context, cfg *config.Config) (*Client, error) {
	if !cfg.Redis.Enabled {
		return &Client{enabled: false}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &Client{
		rdb:     rdb,
		enabled: true,
	}, nil
}

// Disabled returns a client on which every helper is a no-op
func Disabled() *Client {
	return &Client{enabled: false}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if c != nil && c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

// Enabled returns whether Redis is enabled. A nil client is disabled.
func (c *Client) Enabled() bool {
	return c != nil && c.enabled
}

// Redis returns the underlying redis client for advanced usage
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

// ClaimOnce stores value under key only if the key is absent.
// When the key already exists the stored value is returned with claimed=false.
func (c *Client) ClaimOnce(ctx context.Context, key, value string, ttl time.Duration) (existing string, claimed bool, err error) {
	if !c.Enabled() {
		return "", true, nil
	}

	ok, err := c.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("setnx %s: %w", key, err)
	}
	if ok {
		return value, true, nil
	}

	existing, err = c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; treat as a fresh claim on retry
		return "", false, fmt.Errorf("claim %s vanished", key)
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return existing, false, nil
}

// Release removes a claim so the key can be claimed again
func (c *Client) Release(ctx context.Context, key string) error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Del(ctx, key).Err()
}

// PublishJSON marshals v and publishes it on channel
func (c *Client) PublishJSON(ctx context.Context, channel string, v interface{}) error {
	if !c.Enabled() {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("publish marshal failed: %w", err)
	}
	return c.rdb.Publish(ctx, channel, data).Err()
}

// Subscribe opens a pub/sub subscription. Returns nil when Redis is disabled.
func (c *Client) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Subscribe(ctx, channels...)
}
