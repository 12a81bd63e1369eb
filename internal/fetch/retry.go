package fetch

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
)

// RetryPolicy bounds how often a transient upstream failure is retried.
type RetryPolicy struct {
	Attempts int
	Min      time.Duration
	Max      time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Min: 500 * time.Millisecond, Max: 5 * time.Second}
}

// Do runs fn until it succeeds, returns a non-transient error, or the attempts
// are used up. Each attempt gets its own timeout when timeout > 0.
func (p RetryPolicy) Do(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	b := &backoff.Backoff{Min: p.Min, Max: p.Max, Factor: 2, Jitter: true}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = runAttempt(ctx, timeout, fn)
		if err == nil || !Transient(err) || attempt == attempts {
			return err
		}
		t := time.NewTimer(b.Duration())
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return err
}

func runAttempt(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}
