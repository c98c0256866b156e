// internal/syncer/delay.go
package syncer

import (
	"context"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"
)

// Delay paces consecutive page requests of a single run.
type Delay interface {
	Wait(ctx context.Context) error
}

// FixedDelay pauses for the same duration between every pair of requests.
type FixedDelay time.Duration

func (d FixedDelay) Wait(ctx context.Context) error {
	return waitFor(ctx, time.Duration(d))
}

// JitterDelay pauses for a random duration in [Min, Max).
type JitterDelay struct {
	Min time.Duration
	Max time.Duration
}

func (d JitterDelay) Wait(ctx context.Context) error {
	return waitFor(ctx, d.next())
}

func (d JitterDelay) next() time.Duration {
	if d.Max <= d.Min {
		return d.Min
	}
	return d.Min + rand.N(d.Max-d.Min)
}

// waitFor blocks for d on a single-token bucket whose token was just spent.
func waitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	bucket := rate.NewLimiter(rate.Every(d), 1)
	bucket.Allow()
	return bucket.Wait(ctx)
}
