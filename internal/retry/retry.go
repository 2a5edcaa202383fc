// Package retry wraps fallible operations with classified
// retry-on-transient-failure and exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
)

// ExhaustedError wraps the final cause once an operation is given up on,
// either because the error was not retryable or because attempts ran out.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Options tunes one Do invocation. Zero values take the defaults.
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// OnRetry is reported before each backoff sleep.
	OnRetry func(attempt int, message string)
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	return o
}

// Do runs op until it succeeds, the error is classified non-retryable,
// attempts are exhausted, or ctx is cancelled. The backoff between
// attempt n and n+1 is baseDelay * 2^(n-1), no jitter. Cancellation aborts
// immediately during the operation or the sleep.
func Do[T any](ctx context.Context, op func(ctx context.Context) (T, error), isRetryable func(error) bool, opts Options) (T, error) {
	var zero T
	opts = opts.withDefaults()
	if isRetryable == nil {
		isRetryable = IsTransient
	}

	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		if !isRetryable(err) {
			return zero, &ExhaustedError{Attempts: attempt, Err: err}
		}
		if attempt == opts.MaxAttempts {
			break
		}

		delay := opts.BaseDelay << (attempt - 1)
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, fmt.Sprintf("attempt %d/%d failed, retrying in %s: %v",
				attempt, opts.MaxAttempts, delay, err))
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, &ExhaustedError{Attempts: opts.MaxAttempts, Err: lastErr}
}

// IsTransient is the default classifier: network timeouts and unreachable
// hosts are worth retrying, everything else is not.
func IsTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH)
}
