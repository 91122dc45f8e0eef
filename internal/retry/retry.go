// Package retry resubmits failing operations.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

type Backoff func(attempt int) time.Duration

type ShouldRetry func(error) bool

// Config controls how many times an operation runs and how long to wait in between.
// Zero values mean a single attempt, immediate resubmission and retrying every
// error except context cancellation.
type Config struct {
	MaxAttempts int
	Backoff     Backoff
	ShouldRetry ShouldRetry
}

func (c *Config) normalize() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.Backoff == nil {
		c.Backoff = Immediate()
	}
	if c.ShouldRetry == nil {
		c.ShouldRetry = retryUnlessCanceled
	}
}

func retryUnlessCanceled(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Immediate resubmits without waiting.
func Immediate() Backoff {
	return func(int) time.Duration { return 0 }
}

// Exponential doubles delay per attempt and adds up to half of it as jitter.
func Exponential(delay time.Duration) Backoff {
	return func(attempt int) time.Duration {
		base := (1 << attempt) * delay
		if base <= 1 {
			return base
		}
		return base + time.Duration(rand.Int64N(int64(base/2))+1)
	}
}

// Linear waits delay between attempts.
func Linear(delay time.Duration) Backoff {
	return func(int) time.Duration { return delay }
}

// Backoff strategy names accepted by Named.
const (
	StrategyImmediate   = "immediate"
	StrategyLinear      = "linear"
	StrategyExponential = "exponential"
)

// Named returns the backoff strategy called name, spaced by delay.
func Named(name string, delay time.Duration) (Backoff, error) {
	if delay < 0 {
		return nil, fmt.Errorf("retry: negative delay %s", delay)
	}
	switch name {
	case StrategyImmediate:
		return Immediate(), nil
	case StrategyLinear:
		return Linear(delay), nil
	case StrategyExponential:
		return Exponential(delay), nil
	default:
		return nil, fmt.Errorf("retry: unknown backoff %q: want %s, %s or %s", name, StrategyImmediate, StrategyLinear, StrategyExponential)
	}
}

// Do runs fn until it succeeds or attempts run out.
func Do(ctx context.Context, c Config, fn func() error) error {
	_, err := DoWithResult(ctx, c, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult runs fn until it succeeds, returns an error ShouldRetry rejects, or
// MaxAttempts is reached. The last error is returned unchanged.
func DoWithResult[T any](ctx context.Context, c Config, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	c.normalize()
	var err error
	for attempt := 1; attempt <= c.MaxAttempts; attempt++ {
		var result T
		result, err = fn()
		if err == nil {
			return result, nil
		}
		if !c.ShouldRetry(err) || attempt == c.MaxAttempts {
			return zero, err
		}

		wait := c.Backoff(attempt)
		if wait <= 0 {
			if ctx.Err() != nil {
				return zero, fmt.Errorf("%w: %w", ctx.Err(), err)
			}
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("%w: %w", ctx.Err(), err)
		case <-timer.C:
		}
	}
	return zero, err
}
