// Package cache provides a small time-bounded read-through cache.
package cache

import (
	"sync"
	"time"
)

// Cache stores values until their ttl expires. It is safe for concurrent use.
type Cache[V any] struct {
	mu    sync.Mutex
	items map[string]entry[V]
	now   func() time.Time
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// New returns an empty cache. now defaults to time.Now.
func New[V any](now func() time.Time) *Cache[V] {
	if now == nil {
		now = time.Now
	}
	return &Cache[V]{
		items: make(map[string]entry[V]),
		now:   now,
	}
}

// Get returns the stored value if present and not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	item, ok := c.items[key]
	if !ok {
		return zero, false
	}
	if !c.now().Before(item.expiresAt) {
		delete(c.items, key)
		return zero, false
	}
	return item.value, true
}

// Put stores a value until ttl expiry and drops every entry that has
// already expired.
func (c *Cache[V]) Put(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, item := range c.items {
		if !now.Before(item.expiresAt) {
			delete(c.items, k)
		}
	}
	c.items[key] = entry[V]{
		value:     value,
		expiresAt: now.Add(ttl),
	}
}

// Delete drops key.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Len counts entries. Expired entries are counted until the next Get of
// their key or the next Put.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
