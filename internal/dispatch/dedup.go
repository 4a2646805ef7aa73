package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/wonny/harvest/backend/pkg/redis"
)

// Dedup remembers which job an action already produced
type Dedup interface {
	// Claim records value under key unless a value is already there.
	// claimed=false returns the existing value.
	Claim(ctx context.Context, key, value string) (existing string, claimed bool, err error)
	Release(ctx context.Context, key string) error
}

// RedisDedup claims action keys with SETNX so every API replica agrees
type RedisDedup struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDedup creates a Redis-backed dedup store
func NewRedisDedup(client *redis.Client, ttl time.Duration) *RedisDedup {
	if ttl <= 0 {
		ttl = redis.TTLDaily
	}
	return &RedisDedup{client: client, ttl: ttl}
}

func (d *RedisDedup) Claim(ctx context.Context, key, value string) (string, bool, error) {
	return d.client.ClaimOnce(ctx, redis.DispatchActionKey(key), value, d.ttl)
}

func (d *RedisDedup) Release(ctx context.Context, key string) error {
	return d.client.Release(ctx, redis.DispatchActionKey(key))
}

// LRUDedup is the in-process fallback when Redis is disabled
type LRUDedup struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, string]
}

// NewLRUDedup creates an in-process dedup store holding at most size actions
func NewLRUDedup(size int, ttl time.Duration) *LRUDedup {
	if size <= 0 {
		size = 10000
	}
	return &LRUDedup{cache: expirable.NewLRU[string, string](size, nil, ttl)}
}

func (d *LRUDedup) Claim(_ context.Context, key, value string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.cache.Get(key); ok {
		return existing, false, nil
	}
	d.cache.Add(key, value)
	return "", true, nil
}

func (d *LRUDedup) Release(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache.Remove(key)
	return nil
}

// NewDedup picks Redis when it is enabled
func NewDedup(client *redis.Client, ttl time.Duration) Dedup {
	if client != nil && client.Enabled() {
		return NewRedisDedup(client, ttl)
	}
	return NewLRUDedup(0, ttl)
}
