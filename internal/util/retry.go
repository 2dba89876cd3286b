package util

import (
	"context"
	"fmt"
	"time"
)

// RetryWithBackoff calls fn up to maxRetries+1 times, doubling the wait from
// base after each failure. Errors that retryable rejects are returned at once.
// If the context is cancelled, RetryWithBackoff returns the context error.
func RetryWithBackoff(ctx context.Context, maxRetries int, base time.Duration, retryable func(error) bool, fn func(attempt int) error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}

		// Don't wait after the last attempt
		if attempt == maxRetries {
			break
		}

		backoff := base << attempt
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}
