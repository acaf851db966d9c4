package suggest

import (
	"sort"
	"time"

	"github.com/doeshing/shai-bridge/internal/domain"
)

// resultCache holds ranked results for a short window. Callers serialize access.
type resultCache struct {
	ttl        time.Duration
	maxEntries int
	entries    map[string]cacheEntry
}

type cacheEntry struct {
	results   []domain.Suggestion
	createdAt time.Time
}

func newResultCache(ttl time.Duration, maxEntries int) *resultCache {
	return &resultCache{ttl: ttl, maxEntries: maxEntries, entries: make(map[string]cacheEntry)}
}

func cacheKey(input, dir, os string) string {
	return input + "\x00" + dir + "\x00" + os
}

func (c *resultCache) get(key string, now time.Time) ([]domain.Suggestion, bool) {
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && now.Sub(entry.createdAt) >= c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return entry.results, true
}

func (c *resultCache) set(key string, results []domain.Suggestion, now time.Time) {
	c.entries[key] = cacheEntry{results: results, createdAt: now}
	c.evictIfNeeded()
}

func (c *resultCache) clear() {
	c.entries = make(map[string]cacheEntry)
}

func (c *resultCache) len() int {
	return len(c.entries)
}

// evictIfNeeded drops the oldest entries beyond maxEntries.
func (c *resultCache) evictIfNeeded() {
	if c.maxEntries <= 0 || len(c.entries) <= c.maxEntries {
		return
	}
	type aged struct {
		key     string
		created time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{key: k, created: e.createdAt})
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].created.Before(all[j].created)
	})
	for _, a := range all[:len(all)-c.maxEntries] {
		delete(c.entries, a.key)
	}
}
