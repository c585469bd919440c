package report

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/walkshed/access-cli/internal/store"
)

// Cache is a concurrent-safe LRU cache for computed reports with TTL
// expiration.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]*cacheEntry
	order      []string // LRU order: front=oldest, back=newest
	maxEntries int
	ttl        time.Duration
	hits       atomic.Int64
	misses     atomic.Int64
}

type cacheEntry struct {
	report    *Report
	createdAt time.Time
}

// CacheStats contains cache performance statistics.
type CacheStats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

// NewCache creates a report cache with the given capacity and TTL.
func NewCache(maxEntries int, ttl time.Duration) *Cache {
	return &Cache{
		entries:    make(map[string]*cacheEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
	}
}

// cacheKey builds the cache key for a rollup query.
func cacheKey(q store.AreaQuery) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s", q.RunID, q.Category, q.Level, q.Weight, q.Metric)
}

// Get retrieves a cached report. Returns nil on miss or expiration.
func (c *Cache) Get(q store.AreaQuery) *Report {
	key := cacheKey(q)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return nil
	}

	// Check TTL.
	if time.Since(entry.createdAt) > c.ttl {
		delete(c.entries, key)
		c.removeFromOrder(key)
		c.misses.Add(1)
		return nil
	}

	// Move to back (most recently used).
	c.removeFromOrder(key)
	c.order = append(c.order, key)
	c.hits.Add(1)
	return entry.report
}

// Put stores a report, evicting the oldest entry if at capacity.
func (c *Cache) Put(q store.AreaQuery, rep *Report) {
	key := cacheKey(q)

	c.mu.Lock()
	defer c.mu.Unlock()

	// If key already exists, update in place and move to back.
	if _, ok := c.entries[key]; ok {
		c.entries[key] = &cacheEntry{report: rep, createdAt: time.Now()}
		c.removeFromOrder(key)
		c.order = append(c.order, key)
		return
	}

	// Evict from front if at capacity.
	for len(c.entries) >= c.maxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[key] = &cacheEntry{report: rep, createdAt: time.Now()}
	c.order = append(c.order, key)
}

// Stats returns cache performance statistics.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	entries := len(c.entries)
	maxEntries := c.maxEntries
	c.mu.RUnlock()

	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return CacheStats{
		Entries:    entries,
		MaxEntries: maxEntries,
		Hits:       hits,
		Misses:     misses,
		HitRate:    hitRate,
	}
}

// removeFromOrder removes a key from the LRU order slice.
func (c *Cache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
