package dialog

import (
	"context"
	"math"
	"time"
)

// Backoff computes Base * 2^attempt, optionally capped at Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration // zero means uncapped
}

// Delay returns the wait before retry number attempt+1 of a round (attempt starts at 0).
// Results that would overflow saturate at the largest representable duration.
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 || attempt < 0 {
		return 0
	}

	d := time.Duration(math.MaxInt64)
	if attempt < 63 && b.Base <= time.Duration(math.MaxInt64)>>attempt {
		d = b.Base << attempt
	}

	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// Sleeper waits for d or until ctx is done, returning ctx.Err() in the latter case.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
