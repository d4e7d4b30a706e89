package ratelimit

import (
	"strings"
	"sync"
	"time"

	"mercator-hq/gatekeeper/pkg/window"
)

// usageCache remembers the last usage observed per (identity, consumer,
// kind) so fail-open can report something better than zero. Entries expire
// at the window boundary they were observed in (a count from a previous
// window is worthless). The cache is bounded and evicts the
// longest-untouched entry when full.
type usageCache struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry
	maxEntries int
}

type cacheEntry struct {
	count    uint64
	resetAt  time.Time
	storedAt time.Time
}

func newUsageCache(maxEntries int) *usageCache {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &usageCache{
		entries:    make(map[string]cacheEntry),
		maxEntries: maxEntries,
	}
}

func cacheKey(identity, consumer string, kind window.Kind) string {
	return strings.Join([]string{identity, consumer, string(kind)}, "|")
}

// put stores an observed count together with the boundary of the window it
// belongs to.
func (c *usageCache) put(identity, consumer string, kind window.Kind, count uint64, resetAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(identity, consumer, kind)
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[key] = cacheEntry{count: count, resetAt: resetAt, storedAt: time.Now()}
}

// get returns the cached count, or false if nothing valid is cached for the
// current window.
func (c *usageCache) get(identity, consumer string, kind window.Kind, now time.Time) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(identity, consumer, kind)
	entry, ok := c.entries[key]
	if !ok {
		return 0, false
	}
	if !entry.resetAt.After(now) {
		delete(c.entries, key)
		return 0, false
	}
	return entry.count, true
}

// evictOldestLocked removes the longest-untouched entry.
// Caller must hold the lock.
func (c *usageCache) evictOldestLocked() {
	var (
		oldestKey  string
		oldestTime time.Time
		found      bool
	)
	for key, entry := range c.entries {
		if !found || entry.storedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.storedAt
			found = true
		}
	}
	if found {
		delete(c.entries, oldestKey)
	}
}
