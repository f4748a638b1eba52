package fn

import (
	"context"
	"time"

	retry "github.com/avast/retry-go/v4"
)

// RetryOpts configures retry behavior.
type RetryOpts struct {
	Attempts uint
	Delay    time.Duration
	MaxDelay time.Duration
}

// DefaultRetry provides sensible retry defaults.
var DefaultRetry = RetryOpts{
	Attempts: 3,
	Delay:    time.Second,
	MaxDelay: 30 * time.Second,
}

// Retry runs f up to opts.Attempts times with jittered exponential backoff,
// stopping early when ctx is cancelled. Only the last error is kept.
func Retry[T any](ctx context.Context, opts RetryOpts, f func(context.Context) Result[T]) Result[T] {
	if opts.Attempts == 0 {
		opts.Attempts = DefaultRetry.Attempts
	}
	var val T
	err := retry.Do(
		func() error {
			r := f(ctx)
			if r.IsErr() {
				_, err := r.Unwrap()
				return err
			}
			val, _ = r.Unwrap()
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(opts.Attempts),
		retry.Delay(opts.Delay),
		retry.MaxDelay(opts.MaxDelay),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return Err[T](err)
	}
	return Ok(val)
}

// RetryStage wraps a Stage with retry logic.
func RetryStage[In, Out any](opts RetryOpts, stage Stage[In, Out]) Stage[In, Out] {
	return func(ctx context.Context, in In) Result[Out] {
		return Retry(ctx, opts, func(ctx context.Context) Result[Out] {
			return stage(ctx, in)
		})
	}
}
