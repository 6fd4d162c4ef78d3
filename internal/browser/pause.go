package browser

import (
	"context"
	"math/rand"
	"time"
)

// PauseFunc waits a humanizing interval between min and max.
type PauseFunc func(ctx context.Context, min, max time.Duration)

// Pause sleeps a random duration in [min, max) and returns early when ctx
// is done.
func Pause(ctx context.Context, min, max time.Duration) {
	d := min
	if max > min {
		d += time.Duration(rand.Int63n(int64(max - min)))
	}
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// NoPause skips every delay. Used for replays and tests.
func NoPause(context.Context, time.Duration, time.Duration) {}
