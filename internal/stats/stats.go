// Package stats tracks per-run collection diagnostics. Control logic
// never reads these values; they exist for status output and error logs.
package stats

import (
	"sync"
	"time"

	"github.com/ibeckermayer/xwatch/internal/metrics"
	"github.com/ibeckermayer/xwatch/internal/types"
)

// Collection accumulates counters for a single run
type Collection struct {
	mu sync.Mutex

	startedAt     time.Time
	total         int
	requests      int
	rateLimitHits int
	retries       int
	fallbackCount int
	replies       int
	dropped       int
	oldest        int64
	newest        int64
	currentDelay  time.Duration
	fallbackUsed  bool
}

// Snapshot is a point-in-time copy of a Collection
type Snapshot struct {
	StartedAt      time.Time     `json:"started_at"`
	Total          int           `json:"total"`
	Requests       int           `json:"requests"`
	RateLimitHits  int           `json:"rate_limit_hits"`
	Retries        int           `json:"retries"`
	FallbackCount  int           `json:"fallback_count"`
	Replies        int           `json:"replies"`
	Dropped        int           `json:"dropped"`
	Oldest         int64         `json:"oldest,omitempty"`
	Newest         int64         `json:"newest,omitempty"`
	CurrentDelay   time.Duration `json:"current_delay"`
	FallbackUsed   bool          `json:"fallback_used"`
	ItemsPerMinute float64       `json:"items_per_minute"`
}

// New returns an empty Collection started at now
func New(now time.Time) *Collection {
	return &Collection{startedAt: now}
}

// Reset clears all counters. Called only at run start.
func (c *Collection) Reset(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startedAt = now
	c.total, c.requests, c.rateLimitHits, c.retries = 0, 0, 0, 0
	c.fallbackCount, c.replies, c.dropped = 0, 0, 0
	c.oldest, c.newest = 0, 0
	c.currentDelay = 0
	c.fallbackUsed = false
}

// RecordItems counts accepted unique items and widens the date range
func (c *Collection) RecordItems(items []types.CollectedItem) {
	if len(items) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, it := range items {
		c.total++
		if c.oldest == 0 || it.CreatedAt < c.oldest {
			c.oldest = it.CreatedAt
		}
		if it.CreatedAt > c.newest {
			c.newest = it.CreatedAt
		}
		metrics.ItemsCollected.WithLabelValues(string(it.Source)).Inc()
	}
}

// RecordFallback counts items gathered by page automation
func (c *Collection) RecordFallback(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fallbackUsed = true
	c.fallbackCount += n
	metrics.FallbackItems.Add(float64(n))
}

func (c *Collection) RecordRequest() {
	c.mu.Lock()
	c.requests++
	c.mu.Unlock()
}

func (c *Collection) RecordRateLimit() {
	c.mu.Lock()
	c.rateLimitHits++
	c.mu.Unlock()
	metrics.RateLimitHits.Inc()
}

func (c *Collection) RecordRetry() {
	c.mu.Lock()
	c.retries++
	c.mu.Unlock()
	metrics.Retries.Inc()
}

func (c *Collection) RecordDropped() {
	c.mu.Lock()
	c.dropped++
	c.mu.Unlock()
	metrics.ItemsDropped.Inc()
}

func (c *Collection) RecordReply() {
	c.mu.Lock()
	c.replies++
	c.mu.Unlock()
}

// SetCurrentDelay records the most recent backoff delay
func (c *Collection) SetCurrentDelay(d time.Duration) {
	c.mu.Lock()
	c.currentDelay = d
	c.mu.Unlock()
	metrics.BackoffSeconds.Set(d.Seconds())
}

// Snapshot returns a copy of the counters. ItemsPerMinute is computed
// against now.
func (c *Collection) Snapshot(now time.Time) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		StartedAt:     c.startedAt,
		Total:         c.total,
		Requests:      c.requests,
		RateLimitHits: c.rateLimitHits,
		Retries:       c.retries,
		FallbackCount: c.fallbackCount,
		Replies:       c.replies,
		Dropped:       c.dropped,
		Oldest:        c.oldest,
		Newest:        c.newest,
		CurrentDelay:  c.currentDelay,
		FallbackUsed:  c.fallbackUsed,
	}
	if elapsed := now.Sub(c.startedAt).Minutes(); elapsed > 0 {
		s.ItemsPerMinute = float64(c.total) / elapsed
	}
	return s
}
