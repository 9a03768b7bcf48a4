package rng

import (
	"log/slog"
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/golang/groupcache/singleflight"
)

// DefaultCacheSize is the number of parsed grammars a registry keeps when
// it is not given a cache
const DefaultCacheSize = 64

// GrammarCache keeps parsed grammars in a bounded LRU. Concurrent loads of
// the same key share one parse. Cached spec lists must not be modified.
type GrammarCache struct {
	mu      sync.Mutex
	entries *lru.Cache
	loads   singleflight.Group
	hits    int
	misses  int
}

// NewGrammarCache creates a cache holding at most maxEntries grammars.
// Zero means no limit.
func NewGrammarCache(maxEntries int) *GrammarCache {
	gc := &GrammarCache{entries: lru.New(maxEntries)}
	gc.entries.OnEvicted = func(key lru.Key, _ interface{}) {
		slog.Debug("grammar evicted from cache", "key", key)
	}
	return gc
}

// Get returns the specs cached under key, calling load on a miss. Results
// of a failed load are not cached.
func (gc *GrammarCache) Get(key string, load func() ([]*ElementSpec, error)) ([]*ElementSpec, error) {
	gc.mu.Lock()
	if v, ok := gc.entries.Get(key); ok {
		gc.hits++
		gc.mu.Unlock()
		slog.Debug("grammar cache hit", "key", key)
		return v.([]*ElementSpec), nil
	}
	gc.misses++
	gc.mu.Unlock()

	slog.Debug("grammar cache miss", "key", key)
	v, err := gc.loads.Do(key, func() (interface{}, error) {
		specs, err := load()
		if err != nil {
			return nil, err
		}
		gc.mu.Lock()
		gc.entries.Add(key, specs)
		gc.mu.Unlock()
		return specs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*ElementSpec), nil
}

// Remove drops a single entry
func (gc *GrammarCache) Remove(key string) {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	gc.entries.Remove(key)
}

// Clear removes all cached grammars
func (gc *GrammarCache) Clear() {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	gc.entries.Clear()
}

// Len returns the number of cached grammars
func (gc *GrammarCache) Len() int {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return gc.entries.Len()
}

// Stats returns the hit and miss counts since the cache was created
func (gc *GrammarCache) Stats() (hits, misses int) {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return gc.hits, gc.misses
}
