package modelstore

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/wonny/harvest/backend/internal/contracts"
)

// CachedStore keeps recently used artifacts in memory.
// Saves write through, so a process always reads its own writes.
// Another process's save is visible after the TTL at the latest.
type CachedStore struct {
	next  contracts.ModelStore
	cache *expirable.LRU[contracts.SegmentKey, []byte]
}

var _ contracts.ModelStore = (*CachedStore)(nil)

// NewCachedStore wraps next with a size-bounded TTL cache
func NewCachedStore(next contracts.ModelStore, size int, ttl time.Duration) *CachedStore {
	return &CachedStore{
		next:  next,
		cache: expirable.NewLRU[contracts.SegmentKey, []byte](size, nil, ttl),
	}
}

// Save persists and then refreshes the cached copy
func (s *CachedStore) Save(ctx context.Context, key contracts.SegmentKey, artifact []byte) error {
	if err := s.next.Save(ctx, key, artifact); err != nil {
		s.cache.Remove(key)
		return err
	}
	s.cache.Add(key, artifact)
	return nil
}

// Load serves from memory when possible. Misses are not cached.
func (s *CachedStore) Load(ctx context.Context, key contracts.SegmentKey) ([]byte, error) {
	if a, ok := s.cache.Get(key); ok {
		return a, nil
	}

	a, err := s.next.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	s.cache.Add(key, a)
	return a, nil
}

// Len returns the number of cached artifacts
func (s *CachedStore) Len() int {
	return s.cache.Len()
}
