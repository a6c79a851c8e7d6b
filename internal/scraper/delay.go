package scraper

import (
	"context"
	"math/rand/v2"
	"time"
)

// Delayer paces requests to a site. Implementations return early with the
// context's error when it is cancelled.
type Delayer interface {
	Wait(ctx context.Context, lo, hi time.Duration) error
}

// RandomDelayer sleeps a uniformly random duration in [lo, hi].
type RandomDelayer struct{}

func (RandomDelayer) Wait(ctx context.Context, lo, hi time.Duration) error {
	d := lo
	if hi > lo {
		d += rand.N(hi - lo + 1)
	}
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

// NoDelay never waits. Intended for tests.
type NoDelay struct{}

func (NoDelay) Wait(ctx context.Context, _, _ time.Duration) error { return ctx.Err() }
