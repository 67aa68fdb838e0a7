package cache

import (
	"time"

	"github.com/maypok86/otter"
	"golang.org/x/sync/singleflight"
)

// DefaultMaxSize bounds the number of cached server responses
const DefaultMaxSize = 1024

// Cache wraps Otter cache for server capability probes, keyed by server
// base URL. Concurrent loads of the same key are collapsed into one.
type Cache struct {
	store otter.CacheWithVariableTTL[string, []byte]
	group singleflight.Group
}

// New creates a new cache with the specified max size
func New(maxSize int) (*Cache, error) {
	store, err := otter.MustBuilder[string, []byte](maxSize).
		WithVariableTTL().
		Build()
	if err != nil {
		return nil, err
	}
	return &Cache{store: store}, nil
}

// Get retrieves a cached value by key
func (c *Cache) Get(key string) ([]byte, bool) {
	return c.store.Get(key)
}

// Set stores a value with the specified TTL
func (c *Cache) Set(key string, value []byte, ttl time.Duration) {
	c.store.Set(key, value, ttl)
}

// Delete removes an entry from the cache
func (c *Cache) Delete(key string) {
	c.store.Delete(key)
}

// GetOrLoad returns the cached value for key, or calls load once for all
// concurrent callers and caches its result for ttl. Errors are not cached.
func (c *Cache) GetOrLoad(key string, ttl time.Duration, load func() ([]byte, error)) ([]byte, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := load()
		if err != nil {
			return nil, err
		}
		c.Set(key, v, ttl)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Close stops the cache's background goroutines
func (c *Cache) Close() {
	c.store.Close()
}
