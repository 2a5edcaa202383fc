package retry

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func alwaysRetryable(error) bool { return true }

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	op := func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errFlaky
		}
		return "ok", nil
	}

	got, err := Do(context.Background(), op, alwaysRetryable, Options{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestDo_NonRetryableInvokedOnce(t *testing.T) {
	calls := 0
	op := func(context.Context) (int, error) {
		calls++
		return 0, errFlaky
	}

	_, err := Do(context.Background(), op, func(error) bool { return false }, Options{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
	})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 1, exhausted.Attempts)
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	var retryLog []int
	op := func(context.Context) (int, error) {
		calls++
		return 0, errFlaky
	}

	_, err := Do(context.Background(), op, alwaysRetryable, Options{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		OnRetry: func(attempt int, _ string) {
			retryLog = append(retryLog, attempt)
		},
	})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retryLog, "retry reported before each sleep")
}

func TestDo_ExponentialDelays(t *testing.T) {
	start := time.Now()
	op := func(context.Context) (int, error) { return 0, errFlaky }

	_, err := Do(context.Background(), op, alwaysRetryable, Options{
		MaxAttempts: 3,
		BaseDelay:   20 * time.Millisecond,
	})
	require.Error(t, err)

	// sleeps: 20ms + 40ms
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
}

func TestDo_CancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	op := func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			cancel()
		}
		return 0, errFlaky
	}

	start := time.Now()
	_, err := Do(ctx, op, alwaysRetryable, Options{
		MaxAttempts: 3,
		BaseDelay:   5 * time.Second,
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Second, "cancellation must abort the sleep")
}

func TestDo_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Do(ctx, func(context.Context) (int, error) {
		calls++
		return 0, nil
	}, alwaysRetryable, Options{})

	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestDo_ContextErrorFromOperationNotRetried(t *testing.T) {
	calls := 0
	op := func(context.Context) (int, error) {
		calls++
		return 0, context.DeadlineExceeded
	}

	_, err := Do(context.Background(), op, alwaysRetryable, Options{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, calls)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(syscall.ECONNREFUSED))
	assert.True(t, IsTransient(syscall.ENETUNREACH))
	assert.False(t, IsTransient(errors.New("parse error")))
	assert.False(t, IsTransient(nil))
}
