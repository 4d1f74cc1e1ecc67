package syncer

import (
	"context"
	"time"
)

// Sleeper is how the engine waits out rate limits and retry backoff.
// Implemented by realSleeper (production) and testutil.ManualSleeper
// (tests, which record requested waits instead of blocking).
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// realSleeper blocks on a timer, honoring context cancellation.
type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
