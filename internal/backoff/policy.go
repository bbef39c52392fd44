// Package backoff computes retry delays and human-like pauses.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/ibeckermayer/xwatch/internal/stats"
)

// Policy is an exponential backoff curve with bounded, per-attempt jitter
type Policy struct {
	Base   time.Duration
	Factor float64
	Clamp  time.Duration
	// Jitter is the upper bound of the jitter as a fraction of the
	// exponential value.
	Jitter float64
	// Seed makes the jitter for a given attempt reproducible.
	Seed uint64

	stats *stats.Collection
}

// RateLimit is the preset used after a rate-limit signal
func RateLimit(seed uint64) Policy {
	return Policy{Base: 60 * time.Second, Factor: 2, Clamp: 15 * time.Minute, Jitter: 0.1, Seed: seed}
}

// Transient is the preset used after a non rate-limit failure
func Transient(seed uint64) Policy {
	return Policy{Base: 5 * time.Second, Factor: 2, Clamp: 15 * time.Minute, Jitter: 0.1, Seed: seed}
}

// WithStats returns a copy of p that reports hits and delays to s
func (p Policy) WithStats(s *stats.Collection) Policy {
	p.stats = s
	return p
}

// NextDelay returns the delay before retry number attempt (1-based):
// min(base*factor^(attempt-1) + jitter, clamp). Jitter stays within
// [0, Jitter] of the exponential value, and factor >= 1+Jitter keeps
// the curve non-decreasing until it reaches the clamp.
func (p Policy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}
	exp := float64(p.Base) * math.Pow(factor, float64(attempt-1))
	if p.Clamp > 0 && exp >= float64(p.Clamp) {
		p.observe(p.Clamp)
		return p.Clamp
	}

	r := rand.New(rand.NewPCG(p.Seed, uint64(attempt)))
	d := exp + exp*p.Jitter*r.Float64()
	if p.Clamp > 0 && d > float64(p.Clamp) {
		d = float64(p.Clamp)
	}
	p.observe(time.Duration(d))
	return time.Duration(d)
}

// RecordHit counts a rate-limit hit. It has no effect on the curve.
func (p Policy) RecordHit() {
	if p.stats != nil {
		p.stats.RecordRateLimit()
	}
}

func (p Policy) observe(d time.Duration) {
	if p.stats != nil {
		p.stats.SetCurrentDelay(d)
	}
}
