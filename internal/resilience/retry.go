// Package resilience wraps every worker handler invocation with retry,
// dead-letter routing, and audit/metrics recording, grounded on the
// teacher's inline retry loop in internal/worker/processor.go generalized
// into a reusable envelope any handler can be run through.
package resilience

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"archivehub/internal/errs"
)

// RetryOptions configures withRetry.
type RetryOptions struct {
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	Jitter          float64
	MaxElapsedTime  time.Duration
}

// WithRetry runs fn with exponential backoff and symmetric jitter around
// the computed delay. It only retries errors errs.IsRetryable accepts;
// anything else returns immediately. On exhaustion it wraps the last
// cause.
func WithRetry(ctx context.Context, opts RetryOptions, fn func(ctx context.Context) error) error {
	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffWithJitter(opts.BaseDelay, opts.MaxDelay, opts.Jitter, attempt)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if opts.MaxElapsedTime > 0 && time.Since(start) > opts.MaxElapsedTime {
			break
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !errs.IsRetryable(err) {
			return err
		}
	}
	return fmt.Errorf("retry exhausted after %d attempts: %w", opts.MaxRetries+1, lastErr)
}

// backoffWithJitter computes exponential backoff bounded by maxDelay, with
// symmetric jitter of +/- jitterFrac around the computed delay.
func backoffWithJitter(base, max time.Duration, jitterFrac float64, attempt int) time.Duration {
	exp := float64(base) * math.Pow(2, float64(attempt-1))
	delay := time.Duration(exp)
	if delay > max {
		delay = max
	}
	if delay <= 0 {
		delay = base
	}
	spread := float64(delay) * jitterFrac
	offset := (rand.Float64()*2 - 1) * spread
	jittered := time.Duration(float64(delay) + offset)
	if jittered < 0 {
		jittered = 0
	}
	return jittered
}
