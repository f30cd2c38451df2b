package services

import (
	"context"
	"time"
)

// RetryPolicy retries an operation with doubling backoff. Used by the ledger
// for transient faults; business declines must not pass through it.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration

	sleep func(time.Duration)
}

func NewRetryPolicy(maxAttempts int, backoff time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		Backoff:     backoff,
		sleep:       time.Sleep,
	}
}

// Do runs fn until it succeeds or attempts are exhausted, returning the last
// error. Context cancellation cuts the loop short.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	var lastErr error
	backoff := p.Backoff
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt < p.MaxAttempts {
			p.sleep(backoff)
			backoff *= 2
		}
	}
	return lastErr
}
