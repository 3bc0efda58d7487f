package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tigerroll/weatherflow/pkg/batch/support/util/exception"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/logger"
)

// Hook is notified before each retry with the attempt that just failed.
type Hook func(name string, attempt int, err error)

// Executor runs operations under a RetryPolicy.
type Executor struct {
	onRetry Hook
	// sleep waits for d or until ctx is done. Replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an Executor. onRetry may be nil.
func NewExecutor(onRetry Hook) *Executor {
	return &Executor{onRetry: onRetry, sleep: sleepContext}
}

// Execute runs fn until it succeeds, returns a non-retryable error, or the policy's attempts are exhausted.
// Every attempt gets its own timeout derived from ctx. Cancelling ctx stops the loop immediately.
func (e *Executor) Execute(ctx context.Context, name string, policy RetryPolicy, fn func(ctx context.Context) error) error {
	maxAttempts := policy.GetMaxAttempts()
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return exception.NewBatchError("retry", fmt.Sprintf("%s cancelled before attempt %d", name, attempt), err, false, false)
		}

		lastErr = e.attempt(ctx, policy.GetTimeout(), fn)
		if lastErr == nil {
			if attempt > 1 {
				logger.Infof("%s succeeded on attempt %d/%d.", name, attempt, maxAttempts)
			}
			return nil
		}

		if !policy.ShouldRetry(lastErr) {
			logger.Errorf("%s failed with a non-retryable error on attempt %d: %v", name, attempt, lastErr)
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}

		backoff := policy.GetBackoffInterval(attempt)
		logger.Warnf("%s failed on attempt %d/%d: %v. Retrying in %s.", name, attempt, maxAttempts, lastErr, backoff)
		if e.onRetry != nil {
			e.onRetry(name, attempt, lastErr)
		}
		if err := e.sleep(ctx, backoff); err != nil {
			return exception.NewBatchError("retry", fmt.Sprintf("%s cancelled while backing off", name), errors.Join(err, lastErr), false, false)
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", name, maxAttempts, lastErr)
}

func (e *Executor) attempt(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	attemptCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	err := fn(attemptCtx)
	if err != nil && attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return exception.NewTransientExternalError("retry", fmt.Sprintf("attempt timed out after %s", timeout), err)
	}
	return err
}

// ExecuteValue is Execute for operations that produce a value.
func ExecuteValue[T any](ctx context.Context, e *Executor, name string, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := e.Execute(ctx, name, policy, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
