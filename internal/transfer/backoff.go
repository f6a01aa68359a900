package transfer

import (
	"context"
	"math/rand/v2"
	"time"
)

// Backoff computes the delay before a retry.
type Backoff struct {
	// Initial is the delay before the first retry.
	// Default: 1s
	Initial time.Duration

	// Max caps the delay.
	// Default: 30s
	Max time.Duration

	// Jitter returns a value in [0, 1). Default: math/rand/v2.Float64.
	Jitter func() float64
}

// DefaultBackoff returns the default retry delays.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial: time.Second,
		Max:     30 * time.Second,
	}
}

// Delay returns the wait before retry number attempt (1-based): an
// exponentially increasing duration scaled by a jitter of 0.5 to 1.5.
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Initial <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 32 {
		attempt = 32
	}
	d := b.Initial * time.Duration(1<<uint(attempt-1))
	if d > b.Max || d <= 0 {
		d = b.Max
	}

	jitter := rand.Float64
	if b.Jitter != nil {
		jitter = b.Jitter
	}
	return time.Duration(float64(d) * (0.5 + jitter()))
}

// Wait sleeps for Delay(attempt). It returns early with ErrAborted when abort
// is closed or ctx is done.
func (b Backoff) Wait(ctx context.Context, attempt int, abort <-chan struct{}) error {
	t := time.NewTimer(b.Delay(attempt))
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ErrAborted
	case <-abort:
		return ErrAborted
	case <-t.C:
		return nil
	}
}
