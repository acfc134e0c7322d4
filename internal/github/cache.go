package github

import "sync"

// PRCache memoizes PR lookups for the duration of a run. It is owned by the
// client that receives it at construction; nothing in this package holds a
// global instance. Invalidation bumps a generation counter so stale entries
// die without being deleted one by one.
type PRCache struct {
	mu      sync.Mutex
	gen     uint64
	entries map[int]prCacheEntry
}

type prCacheEntry struct {
	rec PullRequestRecord
	gen uint64
}

func NewPRCache() *PRCache {
	return &PRCache{entries: make(map[int]prCacheEntry)}
}

func (c *PRCache) Get(number int) (PullRequestRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[number]
	if !ok || e.gen != c.gen {
		return PullRequestRecord{}, false
	}
	return e.rec, true
}

func (c *PRCache) Put(rec PullRequestRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[rec.Number] = prCacheEntry{rec: rec, gen: c.gen}
}

// Invalidate drops the cached copy of one PR.
func (c *PRCache) Invalidate(number int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, number)
}

// InvalidateAll expires every entry at once.
func (c *PRCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
}
