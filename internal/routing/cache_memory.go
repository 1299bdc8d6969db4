package routing

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// MemoryCacheStore is an in-process CacheStore backed by ristretto. Entries
// are costed by body size, so maxBytes bounds the memory held by the cache.
type MemoryCacheStore struct {
	cache *ristretto.Cache[string, *Document]
}

// NewMemoryCacheStore creates an in-process store holding at most maxBytes of
// response bodies.
func NewMemoryCacheStore(maxBytes int64) (*MemoryCacheStore, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, *Document]{
		// Roughly 10x the expected number of entries at ~8 KiB per document.
		NumCounters: max(maxBytes/8192*10, 1000),
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("routing: cache: memory: %w", err)
	}
	return &MemoryCacheStore{cache: cache}, nil
}

// Get returns the cached document for key, or (nil, nil) on a miss.
func (s *MemoryCacheStore) Get(_ context.Context, key string) (*Document, error) {
	doc, ok := s.cache.Get(key)
	if !ok {
		return nil, nil
	}
	return doc, nil
}

// Set stores doc under key. The write is applied before Set returns.
func (s *MemoryCacheStore) Set(_ context.Context, key string, doc *Document, ttl time.Duration) error {
	cost := int64(len(doc.Body))
	if cost == 0 {
		cost = 1
	}
	if !s.cache.SetWithTTL(key, doc, cost, ttl) {
		return fmt.Errorf("routing: cache: memory: entry %s rejected", key)
	}
	s.cache.Wait()
	return nil
}

// Close stops the cache's background goroutines.
func (s *MemoryCacheStore) Close() {
	s.cache.Close()
}
