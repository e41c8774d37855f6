// Package cache provides the bounded key/value store shared by the
// service layer. Entries expire at an absolute deadline and writes
// always replace; when the store is full, the oldest-expiring 20% of
// entries are evicted in one batch so amortized eviction cost stays low
// under steady load.
package cache

import (
	"sort"
	"sync"
	"time"
)

// DefaultMaxEntries is the capacity used when none is configured.
const DefaultMaxEntries = 1024

// Entry is one cached value with its expiry deadline.
type Entry struct {
	Value     any
	ExpiresAt time.Time
}

// Cache is a bounded TTL map.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Expiry: expired entries are treated as absent and removed lazily on read.
// - Capacity: Len never exceeds the configured maximum.
type Cache struct {
	mu      sync.Mutex
	max     int
	entries map[string]Entry

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a cache with the given capacity. Non-positive capacity
// falls back to DefaultMaxEntries.
func New(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{
		max:     maxEntries,
		entries: make(map[string]Entry),
		now:     time.Now,
	}
}

// Get returns the live value for key, if any.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(entry.ExpiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.Value, true
}

// Set stores value under key until now+ttl, replacing any prior entry.
// Non-positive ttl is a no-op.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.max {
		c.evictLocked()
	}
	c.entries[key] = Entry{Value: value, ExpiresAt: c.now().Add(ttl)}
}

// Delete removes key if present.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of stored entries, including any that have
// expired but not yet been swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge removes every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Entry)
}

// evictLocked removes the oldest-expiring 20% of entries (at least
// one). Already-expired entries sort first and go before anything live.
func (c *Cache) evictLocked() {
	n := (len(c.entries) + 4) / 5
	if n < 1 {
		n = 1
	}

	type keyed struct {
		key string
		at  time.Time
	}
	ordered := make([]keyed, 0, len(c.entries))
	for key, entry := range c.entries {
		ordered = append(ordered, keyed{key: key, at: entry.ExpiresAt})
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].at.Before(ordered[j].at)
	})

	for i := 0; i < n && i < len(ordered); i++ {
		delete(c.entries, ordered[i].key)
	}
}

// SetClock replaces the time source. Tests only.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}
