package workspace

import (
	"sync"
	"time"
)

// Cache holds discovered packages keyed by name, each with an age.
// Entries past the TTL are stale and no longer returned. The bumper
// invalidates the cache after applying manifest writes.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry

	// now is swappable for tests.
	now func() time.Time
}

type cacheEntry struct {
	pkg     *Package
	addedAt time.Time
}

// NewCache creates a cache with the given freshness window.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Store replaces the cached entries for the given packages.
func (c *Cache) Store(packages []*Package) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for _, p := range packages {
		c.entries[p.Name()] = cacheEntry{pkg: p, addedAt: now}
	}
}

// Get returns the cached package and true when present and fresh.
func (c *Cache) Get(name string) (*Package, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[name]
	if !ok || c.now().Sub(entry.addedAt) > c.ttl {
		return nil, false
	}
	return entry.pkg, true
}

// Age returns how long ago name was cached, and false when absent.
func (c *Cache) Age(name string) (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[name]
	if !ok {
		return 0, false
	}
	return c.now().Sub(entry.addedAt), true
}

// Invalidate drops every entry.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Len returns the number of entries, stale ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
