// Package retry runs remote calls under a fixed attempt budget.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	// DefaultMaxAttempts is the attempt budget for Spotify calls.
	DefaultMaxAttempts = 3

	// DefaultBackoff is the pause between attempts.
	DefaultBackoff = 1 * time.Second
)

// ErrExhausted is returned when every attempt failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy describes how often a call is attempted and how long to wait
// between attempts. The zero value uses the defaults.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Default returns the standard policy: 3 attempts, 1s apart.
func Default() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, Backoff: DefaultBackoff}
}

// Attempts returns the effective attempt budget.
func (p Policy) Attempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

// Do calls op until it returns nil or the attempt budget is spent.
// It waits Backoff between attempts but not after the last one.
// The returned error wraps ErrExhausted and the last failure.
func (p Policy) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	attempts := p.Attempts()
	backoff := p.Backoff
	if backoff < 0 {
		backoff = 0
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: canceled: %w", name, err)
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		slog.Warn("retry: attempt failed",
			"op", name,
			"attempt", attempt,
			"max_attempts", attempts,
			"error", err,
		)

		if attempt == attempts {
			break
		}
		if err := sleepWithContext(ctx, backoff); err != nil {
			return fmt.Errorf("%s: canceled: %w", name, err)
		}
	}

	return fmt.Errorf("%s: %w after %d attempts: %w", name, ErrExhausted, attempts, lastErr)
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
