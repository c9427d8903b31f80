// In-memory search result cache.
//
// Process-scoped state with a documented lifecycle: created at startup,
// pruned lazily on access, never persisted across restarts. Entries are
// immutable once written, so concurrent readers are safe.

package web

import (
	"context"
	"strings"
	"sync"
	"time"
)

// CachedSearcher fronts a Searcher with a TTL cache keyed by normalized
// query text. Within the TTL, repeated searches for the same normalized
// query issue exactly one upstream call.
type CachedSearcher struct {
	inner Searcher
	ttl   time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time // injectable for tests
}

type cacheEntry struct {
	result  SearchResult
	written time.Time
}

// NewCachedSearcher wraps a searcher with a TTL cache.
func NewCachedSearcher(inner Searcher, ttl time.Duration) *CachedSearcher {
	return &CachedSearcher{
		inner:   inner,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Search returns a cached result when fresh, otherwise delegates.
// Failed searches are not cached.
func (c *CachedSearcher) Search(ctx context.Context, query string) (SearchResult, error) {
	key := normalizeQuery(query)

	c.mu.Lock()
	c.prune()
	if entry, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return entry.result, nil
	}
	c.mu.Unlock()

	result, err := c.inner.Search(ctx, query)
	if err != nil {
		return SearchResult{}, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{result: result, written: c.now()}
	c.mu.Unlock()
	return result, nil
}

// prune removes expired entries. Caller holds the lock.
func (c *CachedSearcher) prune() {
	cutoff := c.now().Add(-c.ttl)
	for k, entry := range c.entries {
		if entry.written.Before(cutoff) {
			delete(c.entries, k)
		}
	}
}

// normalizeQuery lowercases and collapses whitespace so equivalent
// queries share a cache entry.
func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// Verify CachedSearcher implements Searcher
var _ Searcher = (*CachedSearcher)(nil)
