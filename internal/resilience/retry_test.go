package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"archivehub/internal/errs"
)

func TestWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	opts := RetryOptions{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Jitter: 0.1}
	err := WithRetry(context.Background(), opts, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &errs.StoreError{Transient: true, Message: "transient", Cause: errors.New("boom")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	opts := RetryOptions{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Jitter: 0.1}
	permanent := &errs.ValidationError{Code: "BAD", Message: "nope"}
	err := WithRetry(context.Background(), opts, func(ctx context.Context) error {
		calls++
		return permanent
	})
	if err != permanent {
		t.Fatalf("expected permanent error to surface immediately, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 call for a non-retryable error, got %d", calls)
	}
}

func TestWithRetryExhaustionWrapsLastCause(t *testing.T) {
	opts := RetryOptions{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Jitter: 0}
	cause := &errs.StoreError{Transient: true, Message: "down"}
	err := WithRetry(context.Background(), opts, func(ctx context.Context) error {
		return cause
	})
	if err == nil || !errors.Is(err, error(cause)) {
		t.Fatalf("expected wrapped cause to be unwrappable, got %v", err)
	}
}
