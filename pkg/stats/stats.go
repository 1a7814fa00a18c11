// Package stats tracks the proxy controller's observable counters: total
// requests, cache hits, errors, and a per-classification breakdown,
// updated atomically the way the teacher SDK's rate-limiting and caching
// examples keep their own Stats structs under a mutex.
package stats

import (
	"log"
	"sync"
	"time"

	"github.com/lumenbridge/gatewayd/pkg/classify"
)

// Snapshot is a point-in-time read of the counters.
type Snapshot struct {
	Total           int64
	Cached          int64
	Errors          int64
	ByClassification map[classify.Label]int64
}

// Counters accumulates request counts. The zero value is not usable;
// construct with New.
type Counters struct {
	mu               sync.Mutex
	total            int64
	cached           int64
	errors           int64
	byClassification map[classify.Label]int64
}

// New builds an empty Counters.
func New() *Counters {
	return &Counters{byClassification: make(map[classify.Label]int64)}
}

// RecordRequest records one inbound request of the given classification.
func (c *Counters) RecordRequest(label classify.Label) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total++
	c.byClassification[label]++
}

// RecordCacheHit records a response served from cache.
func (c *Counters) RecordCacheHit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached++
}

// RecordError records a request that ended in an error response.
func (c *Counters) RecordError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors++
}

// Snapshot returns a copy of the current counters.
func (c *Counters) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	byLabel := make(map[classify.Label]int64, len(c.byClassification))
	for k, v := range c.byClassification {
		byLabel[k] = v
	}

	return Snapshot{
		Total:            c.total,
		Cached:           c.cached,
		Errors:           c.errors,
		ByClassification: byLabel,
	}
}

// LogPeriodically logs a snapshot on each interval tick at which the total
// request count has changed since the previous tick, until stop is closed.
// Call it from its own goroutine.
func (c *Counters) LogPeriodically(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastTotal int64
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			snap := c.Snapshot()
			if snap.Total == lastTotal {
				continue
			}
			lastTotal = snap.Total
			log.Printf("gatewayd stats: total=%d cached=%d errors=%d by_classification=%v",
				snap.Total, snap.Cached, snap.Errors, snap.ByClassification)
		}
	}
}
