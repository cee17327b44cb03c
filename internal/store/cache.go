package store

import (
	"sync"
)

// DefaultCacheCapacity bounds the cache when no capacity is configured.
const DefaultCacheCapacity = 1000

// Cache is a bounded FIFO mirror of store records. Insertion order is the
// only tracked order: overwriting an existing key keeps its original
// position, and eviction always removes the single oldest-inserted entry.
type Cache struct {
	mu       sync.Mutex
	entries  map[string][]byte
	order    []string
	capacity int

	hitCount  int64
	missCount int64
}

// NewCache creates a cache bounded to capacity entries. A capacity of zero
// or less falls back to DefaultCacheCapacity.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &Cache{
		entries:  make(map[string][]byte, capacity),
		capacity: capacity,
	}
}

// Get returns a copy of the cached value for key.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	value, ok := c.entries[key]
	if !ok {
		c.missCount++
		return nil, false
	}
	c.hitCount++
	out := make([]byte, len(value))
	copy(out, value)
	return out, true
}

// Set inserts or overwrites key. When the insert pushes the cache past its
// capacity, the oldest-inserted entry is evicted.
func (c *Cache) Set(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)

	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = stored
	c.evictIfNecessary()
}

// Delete removes key from the cache along with its insertion-order slot, so
// delete-heavy workloads below capacity do not grow the order slice.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		return
	}
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns cumulative hit and miss counts.
func (c *Cache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hitCount, c.missCount
}

// evictIfNecessary removes the single oldest-inserted entry when an insert
// pushed the cache past capacity. Delete keeps order and entries in sync, so
// the head slot is always live. Callers must hold c.mu.
func (c *Cache) evictIfNecessary() {
	if len(c.entries) > c.capacity && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}
