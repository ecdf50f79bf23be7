// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

package salesforce

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultCacheTTL is how long a GET response stays fresh unless the
	// caller overrides it per call.
	DefaultCacheTTL = 10 * time.Second

	// defaultCacheEntries caps the cache size; the LRU evicts the oldest
	// entry when full.
	defaultCacheEntries = 200

	// sweepInterval is how often expired entries are pruned in bulk.
	sweepInterval = time.Hour
)

// cacheKey identifies one cacheable GET response.
type cacheKey struct {
	OrgID    string
	Method   string
	APIType  APIType
	Endpoint string
	Extra    string
}

func (k cacheKey) String() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s", k.OrgID, k.Method, k.APIType, k.Endpoint, k.Extra)
}

type cacheEntry struct {
	data      any
	raw       []byte
	expiresAt time.Time
}

// responseCache is a TTL-on-read cache over a capacity-bounded LRU.
// Entries carry their own deadline so per-call TTL overrides work; the
// hourly sweep prunes entries whose deadline passed without a read.
type responseCache struct {
	entries *lru.Cache[string, cacheEntry]
	now     func() time.Time
}

func newResponseCache() *responseCache {
	// lru.New only errors on a non-positive size.
	entries, _ := lru.New[string, cacheEntry](defaultCacheEntries)
	return &responseCache{entries: entries, now: time.Now}
}

// get returns the cached decoded value and raw body if present and
// unexpired. Both are stored so a hit is indistinguishable from a fresh
// response to callers that parse the raw bytes.
func (c *responseCache) get(key cacheKey) (any, []byte, bool) {
	entry, ok := c.entries.Get(key.String())
	if !ok {
		return nil, nil, false
	}
	if c.now().After(entry.expiresAt) {
		c.entries.Remove(key.String())
		return nil, nil, false
	}
	return entry.data, entry.raw, true
}

// set stores a response with the given TTL (DefaultCacheTTL when zero).
func (c *responseCache) set(key cacheKey, data any, raw []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c.entries.Add(key.String(), cacheEntry{data: data, raw: raw, expiresAt: c.now().Add(ttl)})
}

// purge drops every entry. Called after any successful write so reads
// never observe stale state (conservative invalidation).
func (c *responseCache) purge() {
	c.entries.Purge()
}

// sweep removes entries whose deadline passed. The LRU already bounds
// capacity; this only reclaims memory from idle expired entries.
func (c *responseCache) sweep() {
	now := c.now()
	for _, key := range c.entries.Keys() {
		if entry, ok := c.entries.Peek(key); ok && now.After(entry.expiresAt) {
			c.entries.Remove(key)
		}
	}
}

// len reports the current entry count.
func (c *responseCache) len() int {
	return c.entries.Len()
}
