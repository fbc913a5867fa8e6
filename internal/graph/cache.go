package graph

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"
)

type cacheEntry struct {
	records   []Record
	expiresAt time.Time
}

// QueryCache memoizes read query results for a short TTL. Audit history
// is read far more often than executions are written.
type QueryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	hits    int64
	misses  int64
}

// NewQueryCache creates a cache with the given capacity and TTL.
func NewQueryCache(maxSize int, ttl time.Duration) *QueryCache {
	if maxSize <= 0 {
		maxSize = 128
	}
	return &QueryCache{
		entries: make(map[string]cacheEntry),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

func cacheKey(query string, params map[string]any) string {
	data, _ := json.Marshal(map[string]any{"q": query, "p": params})
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:16])
}

// Get returns a live entry.
func (c *QueryCache) Get(query string, params map[string]any) ([]Record, bool) {
	key := cacheKey(query, params)

	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if ok && c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		ok = false
	}
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	return entry.records, true
}

// Set stores records. A full cache first drops expired entries, then the
// one closest to expiry.
func (c *QueryCache) Set(query string, params map[string]any, records []Record) {
	key := cacheKey(query, params)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evict(now)
	}
	c.entries[key] = cacheEntry{records: records, expiresAt: now.Add(c.ttl)}
}

func (c *QueryCache) evict(now time.Time) {
	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			continue
		}
		if oldestKey == "" || e.expiresAt.Before(oldest) {
			oldestKey, oldest = k, e.expiresAt
		}
	}
	if len(c.entries) >= c.maxSize && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// Clear drops every entry.
func (c *QueryCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// CacheStats holds cache statistics.
type CacheStats struct {
	Size     int     `json:"size"`
	Capacity int     `json:"capacity"`
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	HitRate  float64 `json:"hitRate"`
}

func (c *QueryCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := CacheStats{Size: len(c.entries), Capacity: c.maxSize, Hits: c.hits, Misses: c.misses}
	if total := c.hits + c.misses; total > 0 {
		st.HitRate = float64(c.hits) / float64(total)
	}
	return st
}

// CachedDriver serves reads from a QueryCache and clears it on any write.
type CachedDriver struct {
	Driver
	cache *QueryCache
}

func NewCachedDriver(d Driver, cache *QueryCache) *CachedDriver {
	return &CachedDriver{Driver: d, cache: cache}
}

func (d *CachedDriver) Execute(ctx context.Context, query string, params map[string]any) ([]Record, error) {
	if records, ok := d.cache.Get(query, params); ok {
		return records, nil
	}
	records, err := d.Driver.Execute(ctx, query, params)
	if err != nil {
		return nil, err
	}
	d.cache.Set(query, params, records)
	return records, nil
}

func (d *CachedDriver) ExecuteWrite(ctx context.Context, query string, params map[string]any) error {
	d.cache.Clear()
	return d.Driver.ExecuteWrite(ctx, query, params)
}

// Cache returns the underlying cache for stats.
func (d *CachedDriver) Cache() *QueryCache {
	return d.cache
}
