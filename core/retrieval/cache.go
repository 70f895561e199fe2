package retrieval

import (
	"fmt"
	"sync"

	"github.com/siherrmann/recurve/model"
)

// DefaultCacheCapacity bounds the cache when no capacity is given
const DefaultCacheCapacity = 256

// Cache stores finished retrieval results keyed by query, topic and config
// signature. It is insert-only up to its capacity: there is no eviction,
// only explicit clearing. Stored candidates are deep-copied on the way in
// and out, so cached entries never alias caller-visible slices.
type Cache struct {
	mu       sync.RWMutex
	capacity int
	entries  map[string]cacheEntry
}

type cacheEntry struct {
	results []*model.Candidate
	report  *model.Report
}

// NewCache creates a cache bounded to capacity entries. A capacity below 1
// falls back to DefaultCacheCapacity.
func NewCache(capacity int) *Cache {
	if capacity < 1 {
		capacity = DefaultCacheCapacity
	}
	return &Cache{
		capacity: capacity,
		entries:  map[string]cacheEntry{},
	}
}

func cacheKey(query string, topic string, config *model.RetrieverConfig) string {
	return fmt.Sprintf("%s|%s|%s", query, topic, config.Signature())
}

// Get returns a deep copy of the cached results and the stored report
func (c *Cache) Get(query string, topic string, config *model.RetrieverConfig) ([]*model.Candidate, *model.Report, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[cacheKey(query, topic, config)]
	if !ok {
		return nil, nil, false
	}
	return model.CloneCandidates(entry.results), entry.report, true
}

// Put stores a finished call. Once the cache is full, new keys are dropped
// until Clear is called; existing keys are still refreshed.
func (c *Cache) Put(query string, topic string, config *model.RetrieverConfig, results []*model.Candidate, report *model.Report) {
	key := cacheKey(query, topic, config)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.capacity {
		return
	}
	c.entries[key] = cacheEntry{
		results: model.CloneCandidates(results),
		report:  report,
	}
}

// Clear drops every entry
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]cacheEntry{}
}

// Len returns the number of cached entries
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
