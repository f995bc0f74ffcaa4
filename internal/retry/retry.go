package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Policy controls how many times an operation is attempted and how long to
// wait between attempts.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      bool
}

// DefaultPolicy returns the conservative defaults used for reasoning-API
// calls: 3 attempts, 1s base delay, doubling, capped at 8s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    8 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// TransientError wraps an error to mark it as retryable. An optional
// RetryAfter overrides the computed backoff for the next attempt.
type TransientError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *TransientError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%v (retry after %v)", e.Err, e.RetryAfter)
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient marks an error as retryable.
func Transient(err error) error {
	return &TransientError{Err: err}
}

// TransientWithDelay marks an error as retryable with an explicit delay hint.
func TransientWithDelay(err error, delay time.Duration) error {
	return &TransientError{Err: err, RetryAfter: delay}
}

// IsTransient reports whether an error should trigger another attempt.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var transient *TransientError
	return errors.As(err, &transient)
}

// Do executes fn until it succeeds, returns a permanent error, or the
// attempt budget is exhausted. Backoff between attempts honours ctx.
func Do(ctx context.Context, policy Policy, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if !IsTransient(err) {
			return err
		}

		// No sleep after the final attempt
		if attempt == policy.MaxAttempts-1 {
			break
		}

		delay := backoffDelay(policy, attempt)

		var transient *TransientError
		if errors.As(err, &transient) && transient.RetryAfter > 0 {
			delay = transient.RetryAfter
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("attempts exhausted (%d): %w", policy.MaxAttempts, lastErr)
}

// backoffDelay computes the exponential delay for a given attempt index.
func backoffDelay(policy Policy, attempt int) time.Duration {
	delay := float64(policy.BaseDelay) * math.Pow(policy.Multiplier, float64(attempt))

	if delay > float64(policy.MaxDelay) {
		delay = float64(policy.MaxDelay)
	}

	duration := time.Duration(delay)

	// Up to 10% jitter to avoid thundering herds
	if policy.Jitter {
		duration += time.Duration(rand.Float64() * 0.1 * float64(duration))
	}

	return duration
}
