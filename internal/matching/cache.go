package matching

import (
	"fmt"
	"sync"

	"github.com/couchcryptid/region-compare-service/internal/domain"
	"github.com/couchcryptid/region-compare-service/internal/observability"
)

// CachedEngine serves FindMatches from an in-memory LRU cache and delegates
// every other query to the wrapped Engine.
type CachedEngine struct {
	*Engine
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedEngine creates a cache decorator around an engine. metrics may be nil.
func NewCachedEngine(inner *Engine, maxEntries int, metrics *observability.Metrics) *CachedEngine {
	return &CachedEngine{
		Engine:  inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

// FindMatches returns a cached ranking when one exists for the same source,
// weight selection, and limit. Callers receive their own copy of the slice.
func (c *CachedEngine) FindMatches(sourceID string, q MatchQuery) []domain.Match {
	key := cacheKey(sourceID, q)
	if matches, ok := c.cache.get(key); ok {
		c.observe("hit")
		return cloneMatches(matches)
	}
	c.observe("miss")

	matches := c.Engine.FindMatches(sourceID, q)
	c.cache.put(key, cloneMatches(matches))
	return matches
}

func (c *CachedEngine) observe(result string) {
	if c.metrics != nil {
		c.metrics.MatchCache.WithLabelValues(result).Inc()
	}
}

func cloneMatches(m []domain.Match) []domain.Match {
	return append(make([]domain.Match, 0, len(m)), m...)
}

// cacheKey distinguishes nil custom weights (use the preset) from an empty
// custom map (score nothing).
func cacheKey(sourceID string, q MatchQuery) string {
	if q.Custom != nil {
		return fmt.Sprintf("%s|custom:%s|%d", sourceID, q.Custom.Canonical(), q.limit())
	}
	return fmt.Sprintf("%s|preset:%s|%d", sourceID, q.Preset, q.limit())
}

// lruCache is a simple thread-safe LRU cache of match rankings.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value []domain.Match
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) ([]domain.Match, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value []domain.Match) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	for len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
