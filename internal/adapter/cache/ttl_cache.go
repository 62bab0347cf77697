package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// Cache is a TTL keyed cache shared by the index store and the generation
// client. Expired entries behave identically to misses: they are lazily
// evicted on read and may also be swept proactively. Writes overwrite on key
// collision.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]*entry[V]
	order   []string
	maxSize int
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// New creates a cache holding at most maxSize entries; the oldest entry is
// evicted when the cache is full.
func New[V any](maxSize int) *Cache[V] {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &Cache[V]{
		entries: make(map[string]*entry[V]),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
	}
}

// Key derives a content hash from the given parts, suitable as a cache key.
func Key(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(hash[:16])
}

// Get returns the value for key if present and not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, exists := c.entries[key]
	c.mu.RUnlock()

	var zero V
	if !exists {
		return zero, false
	}

	if time.Now().After(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; another goroutine may have
		// overwritten the entry with a fresh one.
		if cur, ok := c.entries[key]; ok && time.Now().After(cur.expiresAt) {
			delete(c.entries, key)
			c.removeFromOrder(key)
		}
		c.mu.Unlock()
		return zero, false
	}

	return e.value, true
}

// Put stores value under key with the given TTL, overwriting any existing
// entry.
func (c *Cache[V]) Put(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.entries[key] = &entry[V]{value: value, expiresAt: time.Now().Add(ttl)}
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[key] = &entry[V]{value: value, expiresAt: time.Now().Add(ttl)}
	c.order = append(c.order, key)
}

// Sweep removes every expired entry and returns how many were dropped.
func (c *Cache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			c.removeFromOrder(key)
			removed++
		}
	}
	return removed
}

// Clear drops all entries.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry[V])
	c.order = c.order[:0]
}

// Len returns the number of entries, including not-yet-swept expired ones.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache[V]) evictOldest() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.entries, oldest)
}

func (c *Cache[V]) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
