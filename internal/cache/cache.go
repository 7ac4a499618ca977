package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jxiee/campus-qa/internal/models"
)

type entry struct {
	value     any
	createdAt time.Time
	expiresAt time.Time
	hitCount  int
}

// Cache is an in-process key/value store with per-entry TTL and
// insertion-order eviction once MaxEntries is reached. Expiry is lazy: an
// entry past its deadline is treated as absent and removed on the Get that
// observes it. A single mutex guards every operation, so callers may share
// one instance across goroutines freely.
type Cache struct {
	mu sync.Mutex

	maxEntries int
	defaultTTL time.Duration

	entries map[string]*entry
	order   []string

	hitCount  int64
	missCount int64

	now func() time.Time
}

func New(maxEntries int, defaultTTL time.Duration) *Cache {
	return &Cache{
		maxEntries: maxEntries,
		defaultTTL: defaultTTL,
		entries:    make(map[string]*entry),
		now:        time.Now,
	}
}

// Key derives the deterministic cache key for a question plus the last three
// turns of chat history. Only the role and content of each turn participate,
// so structurally different but logically identical histories collapse to the
// same key.
func Key(question string, history []models.ChatTurn) string {
	if len(history) > 3 {
		history = history[len(history)-3:]
	}
	var b strings.Builder
	b.WriteString(strings.TrimSpace(question))
	for _, turn := range history {
		b.WriteByte(0)
		b.WriteString(turn.Role)
		b.WriteByte(0)
		b.WriteString(turn.Content)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Get returns the stored value, or ok=false when the key is absent or
// expired. Expired entries are deleted as a side effect.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.missCount++
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		c.remove(key)
		c.missCount++
		slog.Debug("Cache entry expired", "key", key[:min(8, len(key))])
		return nil, false
	}
	e.hitCount++
	c.hitCount++
	return e.value, true
}

// Set stores value under key. When the cache is full and key is new, the
// oldest-inserted entry is evicted first. ttl <= 0 selects the default TTL.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	if _, exists := c.entries[key]; !exists {
		if len(c.entries) >= c.maxEntries {
			c.evictOldest()
		}
		c.order = append(c.order, key)
	}

	now := c.now()
	c.entries[key] = &entry{
		value:     value,
		createdAt: now,
		expiresAt: now.Add(ttl),
	}
}

func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		return false
	}
	c.remove(key)
	return true
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry)
	c.order = c.order[:0]
	slog.Info("Cache cleared")
}

// CleanupExpired removes every entry past its deadline and reports how many
// were dropped.
func (c *Cache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cleanupLocked()
}

func (c *Cache) cleanupLocked() int {
	now := c.now()
	var expired []string
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		c.remove(key)
	}
	if len(expired) > 0 {
		slog.Debug("Cleaned expired cache entries", "count", len(expired))
	}
	return len(expired)
}

func (c *Cache) evictOldest() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.remove(oldest)
	slog.Debug("Cache full, evicted oldest entry", "key", oldest[:min(8, len(oldest))])
}

func (c *Cache) remove(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

type Stats struct {
	Size            int     `json:"size"`
	MaxSize         int     `json:"max_size"`
	HitCount        int64   `json:"hit_count"`
	MissCount       int64   `json:"miss_count"`
	HitRate         float64 `json:"hit_rate"`
	TotalRequests   int64   `json:"total_requests"`
	RecentlyCleaned int     `json:"recently_cleaned"`
	DefaultTTL      float64 `json:"default_ttl"`
}

// Stats reports occupancy and hit/miss counters. Expired entries are cleaned
// as part of the snapshot so the reported size reflects live entries only.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	cleaned := c.cleanupLocked()
	total := c.hitCount + c.missCount
	var hitRate float64
	if total > 0 {
		hitRate = float64(c.hitCount) / float64(total) * 100
	}
	return Stats{
		Size:            len(c.entries),
		MaxSize:         c.maxEntries,
		HitCount:        c.hitCount,
		MissCount:       c.missCount,
		HitRate:         hitRate,
		TotalRequests:   total,
		RecentlyCleaned: cleaned,
		DefaultTTL:      c.defaultTTL.Seconds(),
	}
}
