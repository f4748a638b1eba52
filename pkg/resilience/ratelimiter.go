package resilience

import (
	"context"
	"errors"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned by non-blocking limiter calls when the bucket
// is empty.
var ErrRateLimited = errors.New("rate limited")

// LimiterOpts tunes the token bucket: Rate tokens refill per second, Burst
// is the bucket capacity.
type LimiterOpts struct {
	Rate  float64
	Burst int
}

// Limiter wraps a golang.org/x/time/rate token bucket behind the same
// Call-shaped API as the breaker, so callers compose them uniformly.
type Limiter struct {
	rl *rate.Limiter
}

// NewLimiter builds a limiter. A non-positive burst is raised to 1 so a
// configured rate always admits at least one call.
func NewLimiter(opts LimiterOpts) *Limiter {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &Limiter{rl: rate.NewLimiter(rate.Limit(opts.Rate), opts.Burst)}
}

// Allow consumes a token if one is available.
func (l *Limiter) Allow() bool { return l.rl.Allow() }

// Wait blocks for a token until ctx ends.
func (l *Limiter) Wait(ctx context.Context) error { return l.rl.Wait(ctx) }

// Call runs f immediately or fails with ErrRateLimited.
func (l *Limiter) Call(ctx context.Context, f func(context.Context) error) error {
	if !l.Allow() {
		return ErrRateLimited
	}
	return f(ctx)
}

// CallWait blocks for a token, then runs f.
func (l *Limiter) CallWait(ctx context.Context, f func(context.Context) error) error {
	if err := l.Wait(ctx); err != nil {
		return err
	}
	return f(ctx)
}
