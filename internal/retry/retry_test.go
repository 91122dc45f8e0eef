package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func TestDoWithResult_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	v, err := DoWithResult(context.Background(), Config{MaxAttempts: 3}, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errFlaky
		}
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 3, calls)
}

func TestDoWithResult_ReturnsLastError(t *testing.T) {
	calls := 0
	_, err := DoWithResult(context.Background(), Config{MaxAttempts: 4}, func() (string, error) {
		calls++
		return "", errFlaky
	})
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 4, calls)
}

func TestDoWithResult_StopsWhenShouldRetryRejects(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	_, err := DoWithResult(context.Background(), Config{
		MaxAttempts: 5,
		ShouldRetry: func(err error) bool { return !errors.Is(err, permanent) },
	}, func() (int, error) {
		calls++
		return 0, permanent
	})
	assert.ErrorIs(t, err, permanent, "a rejected error must be returned, not swallowed")
	assert.Equal(t, 1, calls)
}

func TestDoWithResult_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{}, func() error {
		calls++
		return errFlaky
	})
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls)
}

func TestDoWithResult_ContextCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, Config{MaxAttempts: 3}, func() error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestDoWithResult_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := Do(ctx, Config{MaxAttempts: 3, Backoff: Linear(time.Minute)}, func() error {
		return errFlaky
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, errFlaky)
}

func TestDefaultShouldRetry_SkipsCancellation(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{MaxAttempts: 3}, func() error {
		calls++
		return context.Canceled
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestExponential(t *testing.T) {
	b := Exponential(10 * time.Millisecond)
	d := b(2)
	assert.GreaterOrEqual(t, d, 40*time.Millisecond)
	assert.LessOrEqual(t, d, 60*time.Millisecond)
	assert.Zero(t, Immediate()(5))
}

func TestNamed(t *testing.T) {
	b, err := Named(StrategyImmediate, time.Second)
	require.NoError(t, err)
	assert.Zero(t, b(3))

	b, err = Named(StrategyLinear, 40*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 40*time.Millisecond, b(1))
	assert.Equal(t, 40*time.Millisecond, b(4))

	b, err = Named(StrategyExponential, 10*time.Millisecond)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, b(2), 40*time.Millisecond)
	assert.LessOrEqual(t, b(2), 60*time.Millisecond)

	_, err = Named("fibonacci", time.Second)
	assert.Error(t, err)
	_, err = Named(StrategyLinear, -time.Second)
	assert.Error(t, err)
}
