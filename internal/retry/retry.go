// Package retry provides bounded exponential backoff shared by the store and
// the embedding adapter.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// ErrExhausted wraps the last error once all attempts have failed
var ErrExhausted = errors.New("retries exhausted")

// Config configures exponential backoff retry behavior
type Config struct {
	MaxAttempts int           // Total attempts including the first call
	BaseDelay   time.Duration // Delay before the second attempt
	MaxDelay    time.Duration // Upper bound for any single delay
	Multiplier  float64       // Growth factor between attempts
	Jitter      bool          // Spread delays by +/-25%
}

// DefaultConfig returns the defaults used for store writes: 5 attempts,
// starting at 100ms and doubling up to 2s.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// Backoff returns the delay to wait after the given failed attempt (1-based)
func (c Config) Backoff(attempt int) time.Duration {
	if attempt <= 0 || c.BaseDelay <= 0 {
		return 0
	}
	mult := c.Multiplier
	if mult < 1 {
		mult = 1
	}

	delay := float64(c.BaseDelay)
	for i := 1; i < attempt; i++ {
		delay *= mult
		if c.MaxDelay > 0 && delay >= float64(c.MaxDelay) {
			delay = float64(c.MaxDelay)
			break
		}
	}
	backoff := time.Duration(delay)

	if c.Jitter && backoff >= 4 {
		jitter := time.Duration(rand.Int64N(int64(backoff)/2)) - backoff/4
		backoff += jitter
	}
	return backoff
}

// Do calls fn until it succeeds, returns an error that retryable rejects, the
// context is done, or MaxAttempts is reached. The attempt number passed to fn
// is 1-based. Once attempts run out the returned error wraps both
// ErrExhausted and the last error.
func Do[T any](ctx context.Context, cfg Config, retryable func(error) bool, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if retryable == nil || !retryable(err) {
			return zero, err
		}
		// Don't retry on context cancellation
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		if attempt < attempts {
			timer := time.NewTimer(cfg.Backoff(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return zero, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, lastErr)
}
