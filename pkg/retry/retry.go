// Package retry runs an operation a bounded number of times with backoff between attempts.
package retry

import (
	"context"
	"time"
)

// Backoff blocks until the next attempt may start. It returns ctx.Err() when the context ends first.
type Backoff func(ctx context.Context) error

// Exponential waits initial, then initial*factor, initial*factor^2, ... between attempts.
func Exponential(initial time.Duration, factor float64) Backoff {
	interval := initial
	return func(ctx context.Context) error {
		if interval <= 0 {
			return ctx.Err()
		}
		timer := time.NewTimer(interval)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			interval = time.Duration(float64(interval) * factor)
			return nil
		}
	}
}

// Policy bounds the number of retries after the first attempt.
type Policy struct {
	MaxRetries int
	Backoff    func() Backoff
	// Retryable decides whether an error is transient. Nil means nothing is retried.
	Retryable func(error) bool
	// OnRetry is called before each retry with the attempt number that failed (1-based).
	OnRetry func(attempt int, err error)
}

// Do calls fn until it succeeds, returns a non-retryable error, or the retries are exhausted.
// The last error is returned as-is.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	var wait Backoff
	if p.Backoff != nil {
		wait = p.Backoff()
	}
	attempt := 0
	for {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt > p.MaxRetries || p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if wait != nil {
			if werr := wait(ctx); werr != nil {
				return err
			}
		}
	}
}
