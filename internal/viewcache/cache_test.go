package viewcache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fixedClock lets tests move time forward deterministically.
type fixedClock struct {
	t time.Time
}

func (c *fixedClock) now() time.Time { return c.t }

func (c *fixedClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(window time.Duration, maxEntries int) (*Cache, *fixedClock) {
	clock := &fixedClock{t: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	cache := New(window, maxEntries)
	cache.now = clock.now
	return cache, clock
}

func TestAllowOncePerWindow(t *testing.T) {
	cache, clock := newTestCache(5*time.Second, 100)

	assert.True(t, cache.Allow("/home|10.0.0.1"))
	assert.False(t, cache.Allow("/home|10.0.0.1"))

	clock.advance(4 * time.Second)
	assert.False(t, cache.Allow("/home|10.0.0.1"))

	clock.advance(1 * time.Second)
	assert.True(t, cache.Allow("/home|10.0.0.1"))
}

func TestKeysAreIndependent(t *testing.T) {
	cache, _ := newTestCache(5*time.Second, 100)

	assert.True(t, cache.Allow("/home|10.0.0.1"))
	assert.True(t, cache.Allow("/home|10.0.0.2"))
	assert.True(t, cache.Allow("/about|10.0.0.1"))
}

func TestExpiredEntriesAreEvicted(t *testing.T) {
	cache, clock := newTestCache(5*time.Second, 100)

	for i := 0; i < 10; i++ {
		cache.Allow(fmt.Sprintf("/page%d|ip", i))
	}
	assert.Equal(t, 10, cache.Len())

	clock.advance(6 * time.Second)
	cache.Allow("/fresh|ip")
	assert.Equal(t, 1, cache.Len())
}

func TestCapacityIsBounded(t *testing.T) {
	cache, _ := newTestCache(time.Hour, 50)

	for i := 0; i < 500; i++ {
		cache.Allow(fmt.Sprintf("/page%d|ip", i))
	}
	assert.LessOrEqual(t, cache.Len(), 50)
}

func TestEvictionNeverDropsSuppression(t *testing.T) {
	// Even when live entries get evicted for capacity, re-adding the same key
	// that is still tracked stays suppressed.
	cache, _ := newTestCache(time.Hour, 2)

	assert.True(t, cache.Allow("a"))
	assert.False(t, cache.Allow("a"))
}
