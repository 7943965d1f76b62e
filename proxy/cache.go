package proxy

import (
	"net/url"
	"sync"
	"time"
)

type cacheKey struct {
	kind   Kind
	source string
}

type cacheEntry struct {
	stream    *url.URL
	createdAt time.Time
}

// Cache memoizes resolved proxy URLs per (kind, source URL) pair. An entry is
// valid while its age is below the TTL passed to Lookup; expired entries are
// evicted lazily on the next lookup, never proactively. All access is
// serialized by one mutex.
type Cache struct {
	mu      sync.Mutex
	entries map[cacheKey]cacheEntry
	now     func() time.Time
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[cacheKey]cacheEntry),
		now:     time.Now,
	}
}

// Lookup returns the cached stream URL for the pair, if present and younger
// than ttl. An expired entry is removed and reported as a miss.
func (c *Cache) Lookup(kind Kind, source string, ttl time.Duration) (*url.URL, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey{kind: kind, source: source}
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.createdAt) >= ttl {
		delete(c.entries, key)
		return nil, false
	}
	return entry.stream, true
}

// Store records a freshly resolved stream URL for the pair.
func (c *Cache) Store(kind Kind, source string, stream *url.URL) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[cacheKey{kind: kind, source: source}] = cacheEntry{
		stream:    stream,
		createdAt: c.now(),
	}
}
