package diagnose

import (
	"sync"
	"time"
)

// reportTTL bounds the cost of repeated diagnose calls: a report computed
// within the last five seconds is served from cache.
const reportTTL = 5 * time.Second

// reportCache is an explicit expiring-entry map keyed by the verbose flag.
// Eviction is time-based on access, never size-based.
type reportCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[bool]cacheEntry
}

type cacheEntry struct {
	report  Report
	expires time.Time
}

func newReportCache(ttl time.Duration, now func() time.Time) *reportCache {
	if now == nil {
		now = time.Now
	}
	return &reportCache{
		ttl:     ttl,
		now:     now,
		entries: make(map[bool]cacheEntry),
	}
}

func (c *reportCache) get(verbose bool) (Report, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[verbose]
	if !ok {
		return Report{}, false
	}
	if c.now().After(entry.expires) {
		delete(c.entries, verbose)
		return Report{}, false
	}
	return entry.report, true
}

func (c *reportCache) put(verbose bool, r Report) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[verbose] = cacheEntry{report: r, expires: c.now().Add(c.ttl)}
}
