package service

import (
	"context"
	"time"
)

const baseBackoff = 200 * time.Millisecond

// retryWithBackoff runs fn up to attempts times with exponential backoff
// between failures. It stops early when the context is cancelled and returns
// the last error otherwise.
func retryWithBackoff(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		wait := baseBackoff << uint(i)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
