package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errFlaky = errors.New("flaky")

func isFlaky(err error) bool { return errors.Is(err, errFlaky) }

func TestRetryWithBackoff_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), 3, time.Millisecond, isFlaky, func(attempt int) error {
		calls++
		if attempt < 2 {
			return errFlaky
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryWithBackoff_ExhaustsRetries(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), 2, time.Millisecond, isFlaky, func(int) error {
		calls++
		return errFlaky
	})
	if !errors.Is(err, errFlaky) {
		t.Errorf("err = %v, want wrapped errFlaky", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryWithBackoff_StopsOnPermanentError(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	err := RetryWithBackoff(context.Background(), 5, time.Millisecond, isFlaky, func(int) error {
		calls++
		return permanent
	})
	if err != permanent {
		t.Errorf("err = %v, want permanent", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := RetryWithBackoff(ctx, 5, time.Hour, isFlaky, func(int) error {
		calls++
		cancel()
		return errFlaky
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
