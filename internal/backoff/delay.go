package backoff

import (
	"math/rand/v2"
	"sync"
	"time"
)

// samples is the number of uniform draws averaged per delay. The mean
// of several uniforms clusters around the midpoint of the range.
const samples = 6

// Humanizer draws randomized pauses within a range
type Humanizer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewHumanizer returns a Humanizer seeded with seed
func NewHumanizer(seed uint64) *Humanizer {
	return &Humanizer{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Between returns a delay in [min, max]
func (h *Humanizer) Between(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	h.mu.Lock()
	var sum float64
	for i := 0; i < samples; i++ {
		sum += h.rng.Float64()
	}
	h.mu.Unlock()
	return min + time.Duration(float64(max-min)*(sum/samples))
}

// Range is an inclusive delay range
type Range struct {
	Min time.Duration
	Max time.Duration
}

// Draw returns a delay within r
func (h *Humanizer) Draw(r Range) time.Duration {
	return h.Between(r.Min, r.Max)
}
