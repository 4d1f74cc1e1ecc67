package testutil

import (
	"sync"
	"time"
)

// Clock is a thread-safe deterministic clock for tests. Each call to Now
// returns a timestamp one step after the previous one, so cursor stamps
// and sender refresh times are reproducible across runs.
type Clock struct {
	mu   sync.Mutex
	cur  time.Time
	step time.Duration
}

// NewClock creates a clock starting at a fixed instant and advancing by
// one second per Now call.
func NewClock() *Clock {
	return &Clock{
		cur:  time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		step: time.Second,
	}
}

// Now advances the clock by one step and returns the new time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(c.step)
	return c.cur
}

// Current returns the clock's time without advancing it.
func (c *Clock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}
