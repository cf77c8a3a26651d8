package client

import (
	"context"
	"log/slog"
	"time"
)

// RetryPolicy is a plain value describing the retry budget for one
// logical API call. The zero value disables retries.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	BackoffMax  time.Duration
}

// DefaultRetryPolicy matches the provider-facing defaults: three
// attempts with exponential backoff capped at thirty seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     5 * time.Second,
		BackoffMax:  30 * time.Second,
	}
}

// Delay returns the backoff before the given attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	base := p.Backoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	delay := base * time.Duration(1<<(attempt-1))
	if max := p.BackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

// withRetry runs fn under the policy. Quota-class and other
// non-retryable failures surface immediately; retryable ones are
// reattempted until the budget runs out. The sleep between attempts is
// cut short by context cancellation.
func withRetry[T any](ctx context.Context, policy RetryPolicy, op string, onRetry func(), fn func() (T, error)) (T, error) {
	var zero T
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !IsRetryable(err) || attempt == attempts {
			break
		}

		if onRetry != nil {
			onRetry()
		}
		delay := policy.Delay(attempt)
		slog.Warn("api call failed, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Int("remaining", attempts-attempt),
			slog.Duration("backoff", delay),
			slog.String("category", ErrorTypeLabel(err)),
			slog.Any("error", err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, lastErr
}
