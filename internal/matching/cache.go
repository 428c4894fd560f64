package matching

import "sync"

// patternCache memoizes compiled patterns by source text. When the limit is
// reached the cache is reset; rule sets are small and recompilation is cheap.
type patternCache[T any] struct {
	mu      sync.RWMutex
	entries map[string]T
	limit   int
}

func newPatternCache[T any](limit int) *patternCache[T] {
	return &patternCache[T]{entries: make(map[string]T), limit: limit}
}

func (c *patternCache[T]) get(key string, build func(string) T) T {
	c.mu.RLock()
	v, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return v
	}

	v = build(key)

	c.mu.Lock()
	if len(c.entries) >= c.limit {
		c.entries = make(map[string]T)
	}
	c.entries[key] = v
	c.mu.Unlock()
	return v
}

func (c *patternCache[T]) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
