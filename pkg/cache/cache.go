// Package cache implements Component G: a fingerprint-keyed mapping from
// client request to cached Dialect A response, grounded on the teacher
// SDK's examples/middleware/caching MemoryCache — same RWMutex-guarded map,
// same lazy-eviction-on-read shape, generalized from an LLM-options cache
// key to a canonical-JSON request fingerprint.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/lumenbridge/gatewayd/pkg/dialect"
)

const defaultTTL = 24 * time.Hour

type entry struct {
	response  *dialect.Response
	insertedAt time.Time
}

// Stats reports cache effectiveness.
type Stats struct {
	Lookups int64
	Hits    int64
	Misses  int64
}

// HitRate returns Hits/Lookups, or 0 when there have been no lookups.
func (s Stats) HitRate() float64 {
	if s.Lookups == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Lookups)
}

// Cache is a TTL-evicting response cache. It has no size limit: an expired
// entry is removed only when a Get reads it. The zero value is not usable;
// construct with New.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	stats   Stats
}

// New builds a Cache with the given TTL. A zero TTL selects the 24h
// default.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{entries: make(map[string]entry), ttl: ttl}
}

// Fingerprint computes the MD5 of the canonical (key-sorted) JSON encoding
// of req. Two requests with the same fields in different key order produce
// the same fingerprint.
func Fingerprint(req *dialect.Request) (string, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", err
	}

	canonical, err := json.Marshal(canonicalize(generic))
	if err != nil {
		return "", err
	}

	sum := md5.Sum(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalize rebuilds nested maps into a form encoding/json always
// serializes in the same field order by sorting keys at every level.
func canonicalize(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]interface{}, len(v))
		for _, k := range keys {
			out[k] = canonicalize(v[k])
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = canonicalize(item)
		}
		return out
	default:
		return value
	}
}

// Get returns the cached response for fingerprint, evicting it if its TTL
// has elapsed. Streaming requests must never call Get or Put.
func (c *Cache) Get(fingerprint string) (*dialect.Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Lookups++

	e, ok := c.entries[fingerprint]
	if !ok {
		c.stats.Misses++
		return nil, false
	}

	if time.Since(e.insertedAt) > c.ttl {
		delete(c.entries, fingerprint)
		c.stats.Misses++
		return nil, false
	}

	c.stats.Hits++
	return e.response, true
}

// Put inserts resp under fingerprint. Entries are immutable once inserted.
func (c *Cache) Put(fingerprint string, resp *dialect.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fingerprint] = entry{response: resp, insertedAt: time.Now()}
}

// Stats returns a snapshot of the cache's lookup counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}
