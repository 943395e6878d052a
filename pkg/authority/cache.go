package authority

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheTTL bounds how long a resolved assignment may be served
// from cache.
const DefaultCacheTTL = 5 * time.Minute

// Cache memoizes resolved assignments per principal. Implementations are
// best-effort: a cache failure is treated as a miss, never as an error,
// and the engine must stay fully correct against an always-empty cache.
type Cache interface {
	// Get returns the cached assignment for a principal, or false on a
	// miss or an expired entry.
	Get(ctx context.Context, principal string) (*Assignment, bool)

	// Set stores the assignment and resets its TTL clock.
	Set(ctx context.Context, principal string, assignment Assignment)

	// Invalidate removes the entry unconditionally.
	Invalidate(ctx context.Context, principal string)
}

type cachedAssignment struct {
	assignment Assignment
	cachedAt   time.Time
}

// MemoryCache is a process-local, TTL-bounded Cache. Entries are held in
// an LRU so a large principal population cannot grow memory without
// bound. The clock is injectable for tests.
type MemoryCache struct {
	entries *lru.Cache[string, cachedAssignment]
	ttl     time.Duration
	now     func() time.Time
}

// MemoryCacheOption configures a MemoryCache.
type MemoryCacheOption func(*MemoryCache)

// WithCacheClock overrides the cache's time source.
func WithCacheClock(now func() time.Time) MemoryCacheOption {
	return func(c *MemoryCache) { c.now = now }
}

// NewMemoryCache creates a cache with the given TTL holding at most size
// entries. A TTL of zero disables caching entirely, which is correct
// (if slower) for stateless-per-invocation deployments.
func NewMemoryCache(ttl time.Duration, size int, opts ...MemoryCacheOption) *MemoryCache {
	if size <= 0 {
		size = 4096
	}
	entries, err := lru.New[string, cachedAssignment](size)
	if err != nil {
		// lru.New only fails on a non-positive size.
		panic(err)
	}
	c := &MemoryCache{
		entries: entries,
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached assignment if present and fresh; a stale entry
// is evicted and reported as a miss.
func (c *MemoryCache) Get(ctx context.Context, principal string) (*Assignment, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	entry, ok := c.entries.Get(principal)
	if !ok {
		return nil, false
	}
	if !c.now().Before(entry.cachedAt.Add(c.ttl)) {
		c.entries.Remove(principal)
		return nil, false
	}
	out := entry.assignment
	return &out, true
}

// Set stores the assignment and restarts its TTL window.
func (c *MemoryCache) Set(ctx context.Context, principal string, assignment Assignment) {
	if c.ttl <= 0 {
		return
	}
	c.entries.Add(principal, cachedAssignment{assignment: assignment, cachedAt: c.now()})
}

// Invalidate removes the entry unconditionally.
func (c *MemoryCache) Invalidate(ctx context.Context, principal string) {
	c.entries.Remove(principal)
}

// Purge drops every cached entry.
func (c *MemoryCache) Purge() {
	c.entries.Purge()
}
