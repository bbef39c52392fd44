// Package backofftest provides a Sleeper that records instead of sleeping.
package backofftest

import (
	"context"
	"sync"
	"time"
)

// Sleeper records requested durations and returns immediately
type Sleeper struct {
	mu     sync.Mutex
	Slept  []time.Duration
	OnCall func(n int)
}

func (s *Sleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.Slept = append(s.Slept, d)
	n := len(s.Slept)
	hook := s.OnCall
	s.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return ctx.Err()
}

// Total returns the sum of all recorded durations
func (s *Sleeper) Total() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total time.Duration
	for _, d := range s.Slept {
		total += d
	}
	return total
}

// Calls returns how many sleeps were requested
func (s *Sleeper) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Slept)
}
