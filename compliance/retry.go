package compliance

import (
	"context"
	"time"
)

// RetryPolicy bounds a store-facing operation: each attempt gets Timeout,
// and a retryable failure is attempted again at most MaxRetries times.
type RetryPolicy struct {
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
}

// DefaultRetryPolicy allows one automatic retry.
var DefaultRetryPolicy = RetryPolicy{
	Timeout:    5 * time.Second,
	MaxRetries: 1,
	Backoff:    100 * time.Millisecond,
}

// Do runs op until it succeeds, fails with a non-retryable error, runs out of
// retries, or ctx is done. onRetry is called before each retry.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error, onRetry func(attempt int, err error)) error {
	var err error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			if onRetry != nil {
				onRetry(attempt, err)
			}
			if p.Backoff > 0 {
				select {
				case <-ctx.Done():
					return err
				case <-time.After(p.Backoff):
				}
			}
		}
		err = p.attempt(ctx, op)
		if err == nil || !IsRetryable(err) || ctx.Err() != nil {
			return err
		}
	}
	return err
}

func (p RetryPolicy) attempt(ctx context.Context, op func(ctx context.Context) error) error {
	if p.Timeout <= 0 {
		return op(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return op(ctx)
}
