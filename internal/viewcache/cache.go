package viewcache

import (
	"sync"
	"time"
)

// Cache is a bounded, time-windowed duplicate suppressor used to rate-limit
// view tracking. A key is allowed once per window; stale entries are evicted
// on write so the map cannot grow without bound even without a background
// sweeper.
type Cache struct {
	mu         sync.Mutex
	window     time.Duration
	maxEntries int
	seen       map[string]time.Time
	now        func() time.Time
}

// New creates a cache that allows each key once per window and holds at most
// maxEntries keys.
func New(window time.Duration, maxEntries int) *Cache {
	return &Cache{
		window:     window,
		maxEntries: maxEntries,
		seen:       make(map[string]time.Time),
		now:        time.Now,
	}
}

// Allow reports whether the key is outside its cooldown window and marks it
// as seen.
func (c *Cache) Allow(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if last, ok := c.seen[key]; ok && now.Sub(last) < c.window {
		return false
	}

	c.evict(now)
	c.seen[key] = now
	return true
}

// evict drops expired entries, then arbitrary ones if the map is still at
// capacity. Caller must hold the lock.
func (c *Cache) evict(now time.Time) {
	for key, last := range c.seen {
		if now.Sub(last) >= c.window {
			delete(c.seen, key)
		}
	}
	for key := range c.seen {
		if len(c.seen) < c.maxEntries {
			break
		}
		delete(c.seen, key)
	}
}

// Len returns the number of tracked keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
