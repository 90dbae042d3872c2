// Package cache stores API responses with per-entry TTL, tag-based bulk
// invalidation, and coarse per-endpoint scope invalidation.
//
// DESIGN: A mutex-guarded map with lazy expiry: Get treats an expired entry
// as absent without needing an eviction pass. An optional background
// janitor reclaims expired entries for memory hygiene. There is no LRU or
// size bound; entries only leave via TTL, tags, scope, or Clear.
package cache

import (
	"sync"
	"time"
)

// Entry is a stored value with its expiry and tag set.
type entry struct {
	value     any
	createdAt time.Time
	expiresAt time.Time
	tags      map[string]struct{}
	scope     string
}

// Stats summarizes the cache contents for operational surfaces.
type Stats struct {
	Size        int
	OldestEntry time.Time
	NewestEntry time.Time
}

// Cache is a TTL + tag response cache. Safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	done    chan struct{}
}

// New creates a cache. A positive janitorInterval starts a background
// eviction loop; zero disables it and expiry is purely lazy.
func New(janitorInterval time.Duration) *Cache {
	c := &Cache{
		entries: make(map[string]*entry),
		done:    make(chan struct{}),
	}
	if janitorInterval > 0 {
		go c.janitor(janitorInterval)
	}
	return c
}

// Close stops the background janitor, if any.
func (c *Cache) Close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

// Get returns the live value for key. Expired entries are treated as absent
// and dropped on the spot.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !time.Now().Before(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a Set may have replaced it.
		if cur, still := c.entries[key]; still && cur == e {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Set stores value under key for ttl, labeled with tags. The key's scope
// (everything before the first '|') groups entries for InvalidateScope.
func (c *Cache) Set(key string, value any, ttl time.Duration, tags []string) {
	now := time.Now()
	tagSet := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		tagSet[t] = struct{}{}
	}
	c.mu.Lock()
	c.entries[key] = &entry{
		value:     value,
		createdAt: now,
		expiresAt: now.Add(ttl),
		tags:      tagSet,
		scope:     scopeOf(key),
	}
	c.mu.Unlock()
}

// InvalidateByTag removes every entry carrying tag, expired or not.
// Returns the number of entries removed.
func (c *Cache) InvalidateByTag(tag string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, e := range c.entries {
		if _, ok := e.tags[tag]; ok {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// InvalidateScope removes every entry whose key belongs to scope. Used when
// the active request context changes: cached values are context-dependent,
// so the whole endpoint scope goes.
func (c *Cache) InvalidateScope(scope string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, e := range c.entries {
		if e.scope == scope {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Clear drops all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.mu.Unlock()
}

// Stats reports size and the creation-time spread of stored entries.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Stats{Size: len(c.entries)}
	for _, e := range c.entries {
		if s.OldestEntry.IsZero() || e.createdAt.Before(s.OldestEntry) {
			s.OldestEntry = e.createdAt
		}
		if e.createdAt.After(s.NewestEntry) {
			s.NewestEntry = e.createdAt
		}
	}
	return s
}

func (c *Cache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, e := range c.entries {
				if !now.Before(e.expiresAt) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}
