// Package cache provides an in-process TTL + LRU result cache keyed by
// request fingerprints. It avoids repeated LLM calls for identical inputs.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Well-known key namespaces.
const (
	NamespaceAnalysis   = "request_analysis"
	NamespaceGeneration = "template_generation"
	NamespaceSearch     = "policy_search"
)

// Defaults.
const (
	DefaultTTL     = time.Hour
	DefaultMaxSize = 1000

	// sweepInterval is the insert count between expiry sweeps.
	sweepInterval = 100
	// evictionGrace is how far below MaxSize eviction trims, so a full
	// cache does not evict on every subsequent insert.
	evictionGrace = 100
)

// Observer receives hit/miss events labeled by key namespace.
type Observer interface {
	CacheHit(namespace string)
	CacheMiss(namespace string)
}

// Config tunes the cache.
type Config struct {
	// TTL is the entry lifetime (default 1h).
	TTL time.Duration
	// MaxSize is the entry cap before LRU eviction (default 1000).
	MaxSize int
	// Observer, if set, is notified of hits and misses.
	Observer Observer
}

// SetDefaults applies default configuration values.
func (c *Config) SetDefaults() {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.MaxSize <= 0 {
		c.MaxSize = DefaultMaxSize
	}
}

type entry struct {
	value        any
	createdAt    time.Time
	lastAccessed time.Time
}

// Cache is a thread-safe TTL + LRU cache.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	ttl      time.Duration
	maxSize  int
	observer Observer

	inserts   int
	hits      int64
	misses    int64
	evictions int64

	// now is swappable for tests
	now func() time.Time
}

// New creates a cache with the given configuration.
func New(cfg Config) *Cache {
	cfg.SetDefaults()
	return &Cache{
		entries:  make(map[string]*entry),
		ttl:      cfg.TTL,
		maxSize:  cfg.MaxSize,
		observer: cfg.Observer,
		now:      time.Now,
	}
}

// Key builds a cache key from a namespace prefix and any JSON-serializable
// payload. Map keys are sorted during marshaling, so logically equal
// payloads always produce the same key.
func Key(prefix string, payload any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(fmt.Sprint(payload))
	}
	sum := md5.Sum(data)
	return prefix + ":" + hex.EncodeToString(sum[:])[:16]
}

// Get returns the cached value for key. Expired entries are treated as
// misses and removed; hits refresh the entry's recency.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		c.observe(key, false)
		return nil, false
	}

	now := c.now()
	if now.Sub(e.createdAt) > c.ttl {
		delete(c.entries, key)
		c.misses++
		c.observe(key, false)
		return nil, false
	}

	e.lastAccessed = now
	c.hits++
	c.observe(key, true)
	return e.value, true
}

// observe forwards a hit or miss to the observer, labeled by the key's
// namespace prefix. Caller holds the lock.
func (c *Cache) observe(key string, hit bool) {
	if c.observer == nil {
		return
	}
	namespace, _, _ := strings.Cut(key, ":")
	if hit {
		c.observer.CacheHit(namespace)
	} else {
		c.observer.CacheMiss(namespace)
	}
}

// Set stores value under key. Every sweepInterval inserts the cache drops
// expired entries, then evicts least-recently-used entries if it is still
// over capacity.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[key] = &entry{value: value, createdAt: now, lastAccessed: now}

	c.inserts++
	if c.inserts%sweepInterval == 0 {
		c.sweep(now)
	}
	if len(c.entries) > c.maxSize {
		c.evict()
	}
}

// sweep removes expired entries. Caller holds the lock.
func (c *Cache) sweep(now time.Time) {
	for key, e := range c.entries {
		if now.Sub(e.createdAt) > c.ttl {
			delete(c.entries, key)
		}
	}
}

// evict removes least-recently-used entries until the cache is
// evictionGrace below capacity. Caller holds the lock.
func (c *Cache) evict() {
	target := c.maxSize - evictionGrace
	if target < 0 {
		target = 0
	}
	for len(c.entries) > target {
		var oldestKey string
		var oldest time.Time
		for key, e := range c.entries {
			if oldestKey == "" || e.lastAccessed.Before(oldest) {
				oldestKey = key
				oldest = e.lastAccessed
			}
		}
		delete(c.entries, oldestKey)
		c.evictions++
	}
}

// Delete removes a single entry.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear drops all entries and resets counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.inserts = 0
	c.hits = 0
	c.misses = 0
	c.evictions = 0
}

// Len reports the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats summarizes cache effectiveness.
func (c *Cache) Stats() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	return map[string]any{
		"size":      len(c.entries),
		"max_size":  c.maxSize,
		"ttl_secs":  int(c.ttl.Seconds()),
		"hits":      c.hits,
		"misses":    c.misses,
		"hit_rate":  hitRate,
		"evictions": c.evictions,
	}
}
