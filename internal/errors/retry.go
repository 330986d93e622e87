package errors

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// BackoffPolicy returns the delay to wait after the given failed attempt (1-based).
type BackoffPolicy func(attempt int) time.Duration

// Sleeper waits for d or until ctx is done, whichever comes first.
type Sleeper func(ctx context.Context, d time.Duration) error

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int

	// InitialDelay is the delay after the first failed attempt.
	InitialDelay time.Duration

	// MaxDelay caps the delay between attempts.
	MaxDelay time.Duration

	// Multiplier is the factor by which delay increases after each failure.
	Multiplier float64

	// AttemptTimeout bounds a single attempt. Zero means no per-attempt bound.
	AttemptTimeout time.Duration

	// Backoff overrides the exponential policy derived from the fields above.
	Backoff BackoffPolicy

	// Sleep overrides the real-time sleeper. Tests inject a recording fake.
	Sleep Sleeper

	// OnRetry is called before each wait with the failed attempt number.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryConfig returns the default retry configuration:
// three attempts with 1s, 2s delays capped at 30s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// ExponentialBackoff returns a policy yielding initial * multiplier^(attempt-1), capped at max.
// The sequence is non-decreasing and bounded.
func ExponentialBackoff(initial, max time.Duration, multiplier float64) BackoffPolicy {
	if multiplier < 1 {
		multiplier = 1
	}
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		delay := float64(initial)
		for i := 1; i < attempt; i++ {
			delay *= multiplier
			if max > 0 && delay >= float64(max) {
				return max
			}
		}
		if max > 0 && time.Duration(delay) > max {
			return max
		}
		return time.Duration(delay)
	}
}

// SleepContext is the real-time Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Delay returns the wait after the given failed attempt.
func (c RetryConfig) Delay(attempt int) time.Duration {
	if c.Backoff != nil {
		return c.Backoff(attempt)
	}
	return ExponentialBackoff(c.InitialDelay, c.MaxDelay, c.Multiplier)(attempt)
}

func (c RetryConfig) attempts() int {
	if c.MaxAttempts < 1 {
		return 1
	}
	return c.MaxAttempts
}

func (c RetryConfig) sleeper() Sleeper {
	if c.Sleep != nil {
		return c.Sleep
	}
	return SleepContext
}

// Retry executes fn until it succeeds or MaxAttempts attempts have failed.
// A SplitError that is not retryable stops the loop at once; other errors are retried.
// Each attempt receives its own context bounded by AttemptTimeout; an attempt that
// runs out of time is reported as a timeout and retried. If the parent context is
// cancelled, Retry returns the context error immediately without further attempts.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := RetryWithResult(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryWithResult executes a function that returns a value with retry logic.
// Similar to Retry but for functions that return both a result and an error.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	maxAttempts := cfg.attempts()
	sleep := cfg.sleeper()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := runAttempt(ctx, cfg.AttemptTimeout, fn)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}
		var se *SplitError
		if errors.As(err, &se) && !se.Retryable {
			return zero, err
		}

		delay := cfg.Delay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	return zero, fmt.Errorf("failed after %d attempts: %w", maxAttempts, lastErr)
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := fn(attemptCtx)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		var se *SplitError
		if !errors.As(err, &se) || !se.Retryable {
			err = TimeoutError(fmt.Sprintf("attempt exceeded %s", timeout), err)
		}
	}
	return result, err
}
