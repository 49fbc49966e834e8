// Package cache provides a small in-process TTL cache used for the anomaly score
// cache and the session touch throttle. It is injected rather than package-global
// so tests can control time and isolate state between cases.
package cache

import (
	"sync"
	"time"
)

// TTLCache maps string keys to values that expire. When the entry count passes
// maxEntries the whole map is cleared instead of evicting per entry: entries are
// cheap to recompute and the TTL already bounds staleness, so a hard clear keeps
// memory bounded without bookkeeping.
type TTLCache[V any] struct {
	mu         sync.RWMutex
	m          map[string]entry[V]
	maxEntries int
	nowF       func() time.Time
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// New returns a TTLCache holding at most maxEntries before a hard clear.
func New[V any](maxEntries int) *TTLCache[V] {
	return &TTLCache[V]{
		m:          make(map[string]entry[V]),
		maxEntries: maxEntries,
		nowF:       func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the clock; for tests.
func (c *TTLCache[V]) SetNowFunc(f func() time.Time) {
	c.mu.Lock()
	c.nowF = f
	c.mu.Unlock()
}

// Get returns the value for key if present and not expired.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.m[key]
	now := c.nowF()
	c.mu.RUnlock()
	var zero V
	if !ok {
		return zero, false
	}
	if !e.expiresAt.After(now) {
		c.mu.Lock()
		delete(c.m, key)
		c.mu.Unlock()
		return zero, false
	}
	return e.value, true
}

// Set stores value for key until now+ttl. A full cache is cleared first.
func (c *TTLCache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.m) >= c.maxEntries {
		c.m = make(map[string]entry[V])
	}
	c.m[key] = entry[V]{value: value, expiresAt: c.nowF().Add(ttl)}
}

// Clear drops every entry.
func (c *TTLCache[V]) Clear() {
	c.mu.Lock()
	c.m = make(map[string]entry[V])
	c.mu.Unlock()
}

// Len returns the current entry count, expired entries included.
func (c *TTLCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
