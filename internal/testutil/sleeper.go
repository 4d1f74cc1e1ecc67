package testutil

import (
	"context"
	"sync"
	"time"
)

// ManualSleeper records requested sleep durations and returns
// immediately, so rate-limit waits and retry backoff can be asserted
// without real delays.
type ManualSleeper struct {
	mu    sync.Mutex
	slept []time.Duration
}

// Sleep records d and returns ctx.Err() without blocking.
func (s *ManualSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.slept = append(s.slept, d)
	s.mu.Unlock()
	return ctx.Err()
}

// Slept returns a copy of the recorded durations.
func (s *ManualSleeper) Slept() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.slept))
	copy(out, s.slept)
	return out
}

// Total returns the sum of all recorded durations.
func (s *ManualSleeper) Total() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total time.Duration
	for _, d := range s.slept {
		total += d
	}
	return total
}
