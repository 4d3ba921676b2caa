package profile

import (
	"sync"
	"time"

	"github.com/driftwood-collective/driftfeed/internal/feed"
)

// Cache is an explicit, injectable in-process TTL cache for interest
// profiles. Concurrent recomputation races for the same key are benign:
// recomputation is idempotent, so last-writer-wins is acceptable.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

type cacheEntry struct {
	profile  *feed.InterestProfile
	cachedAt time.Time
}

// NewCache creates a profile cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultFreshnessWindow
	}
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
	}
}

// Get returns the cached profile when present and fresh.
func (c *Cache) Get(userID string) (*feed.InterestProfile, bool) {
	c.mu.RLock()
	entry, ok := c.entries[userID]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Since(entry.cachedAt) >= c.ttl {
		c.Evict(userID)
		return nil, false
	}
	return entry.profile, true
}

// Put stores a profile. Profiles are replaced wholesale, never mutated.
func (c *Cache) Put(userID string, p *feed.InterestProfile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = cacheEntry{profile: p, cachedAt: time.Now()}
}

// Evict removes a single entry.
func (c *Cache) Evict(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}

// Len returns the number of cached entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep removes expired entries; call periodically in long-lived processes.
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for userID, entry := range c.entries {
		if now.Sub(entry.cachedAt) >= c.ttl {
			delete(c.entries, userID)
		}
	}
}
