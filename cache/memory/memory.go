// Package memory provides the volatile, process-lifetime cache tier.
//
// The cache has no bound, no expiry and no persistence. Bounding it is the
// caller's responsibility.
package memory

import (
	"sync"

	"github.com/meigma/blobcache/cache"
)

// Cache implements cache.Memory over a map guarded by a read-write mutex.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]V
}

var _ cache.Memory[[]byte] = (*Cache[[]byte])(nil)

// New creates an empty cache.
func New[V any]() *Cache[V] {
	return &Cache[V]{entries: make(map[string]V)}
}

// Get returns the value for key, or the zero value and false if absent.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

// Put stores value under key, replacing any previous value.
func (c *Cache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

// Clear removes key.
func (c *Cache[V]) Clear(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// ClearAll removes every key.
func (c *Cache[V]) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// Contains reports whether key is present.
func (c *Cache[V]) Contains(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[key]
	return ok
}

// Count returns the number of keys.
func (c *Cache[V]) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
