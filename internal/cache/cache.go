// Package cache holds generated responses keyed by request path and query.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Entry is a cached response: the resolved mime type and the full body.
type Entry struct {
	MimeType string
	Body     string
}

// Key builds a cache key from a request path and raw query string. The query
// is kept opaque: no normalization of parameter order.
func Key(path, rawQuery string) string {
	return path + "?" + rawQuery
}

// Cache is a concurrency-safe response cache. Only idempotent (GET) requests
// should consult or populate it; that policy is enforced by the caller.
//
// With maxEntries == 0 and ttl == 0 the cache grows without bound, matching
// the historical behavior. Setting either bound turns on LRU eviction and
// entry expiry.
type Cache struct {
	lru *expirable.LRU[string, Entry]
}

// New creates a response cache. maxEntries == 0 means unlimited size and
// ttl == 0 means entries never expire.
func New(maxEntries int, ttl time.Duration) *Cache {
	return &Cache{
		lru: expirable.NewLRU[string, Entry](maxEntries, nil, ttl),
	}
}

// Get returns the entry for key, if present.
func (c *Cache) Get(key string) (Entry, bool) {
	return c.lru.Get(key)
}

// Put stores an entry. Concurrent writers race last-writer-wins; no ordering
// guarantee is made against a concurrent Get for the same key.
func (c *Cache) Put(key string, entry Entry) {
	c.lru.Add(key, entry)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Purge drops every entry. Used by administrative resets.
func (c *Cache) Purge() {
	c.lru.Purge()
}
