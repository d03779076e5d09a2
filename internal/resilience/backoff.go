// Package resilience provides the bounded retry policy shared by the
// network link and the broker session.
//
// A [Backoff] waits a fixed delay between attempts (optionally growing by a
// multiplier up to MaxDelay) and gives up with [ErrConnectivityExhausted]
// once MaxAttempts or MaxElapsed is reached. Zero limits mean "retry until
// the context is cancelled".
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"audio-relay/internal/clock"
)

// ErrConnectivityExhausted is returned by [Backoff.Retry] when the attempt or
// elapsed-time budget runs out before an attempt succeeds.
var ErrConnectivityExhausted = errors.New("connectivity exhausted")

// Default retry parameters.
const (
	defaultDelay = 500 * time.Millisecond
)

// Backoff is an explicit, bounded retry policy.
type Backoff struct {
	// Name labels log lines and errors, e.g. "link" or "mqtt".
	Name string

	// Delay is the wait between a failed attempt and the next one.
	// Defaults to 500ms if zero.
	Delay time.Duration

	// Multiplier grows Delay after every failure. Values <= 1 keep the delay
	// fixed.
	Multiplier float64

	// MaxDelay caps the grown delay. Ignored when the delay is fixed.
	MaxDelay time.Duration

	// MaxAttempts bounds the number of attempts. 0 means unbounded.
	MaxAttempts int

	// MaxElapsed bounds the total time spent retrying. 0 means unbounded.
	MaxElapsed time.Duration

	// Clock drives the waits. Defaults to [clock.System].
	Clock clock.Clock
}

// Bounded reports whether the policy can give up on its own.
func (b Backoff) Bounded() bool {
	return b.MaxAttempts > 0 || b.MaxElapsed > 0
}

// Pause is the wait before the first retry. Callers that start a fresh
// Retry after exhaustion observe it between the two runs.
func (b Backoff) Pause() time.Duration {
	if b.Delay <= 0 {
		return defaultDelay
	}
	return b.Delay
}

func (b Backoff) String() string {
	limit := "unbounded"
	switch {
	case b.MaxAttempts > 0 && b.MaxElapsed > 0:
		limit = fmt.Sprintf("%d attempts or %v", b.MaxAttempts, b.MaxElapsed)
	case b.MaxAttempts > 0:
		limit = fmt.Sprintf("%d attempts", b.MaxAttempts)
	case b.MaxElapsed > 0:
		limit = fmt.Sprintf("%v", b.MaxElapsed)
	}
	return fmt.Sprintf("every %v, %s", b.Pause(), limit)
}

// Retry calls attempt until it returns nil, the budget is exhausted, or ctx is
// cancelled. attempt receives the 1-based attempt number. Retry returns the
// number of attempts made together with nil, ctx.Err(), or an error wrapping
// [ErrConnectivityExhausted] and the last attempt error.
func (b Backoff) Retry(ctx context.Context, attempt func(ctx context.Context, n int) error) (int, error) {
	clk := b.Clock
	if clk == nil {
		clk = clock.System()
	}
	delay := b.Pause()

	start := clk.Now()
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return n - 1, err
		}

		err := attempt(ctx, n)
		if err == nil {
			return n, nil
		}
		if ctx.Err() != nil {
			return n, ctx.Err()
		}

		if b.MaxAttempts > 0 && n >= b.MaxAttempts {
			return n, fmt.Errorf("%s: %w after %d attempts: %v", b.Name, ErrConnectivityExhausted, n, err)
		}
		if b.MaxElapsed > 0 && clk.Now().Sub(start)+delay > b.MaxElapsed {
			return n, fmt.Errorf("%s: %w after %v: %v", b.Name, ErrConnectivityExhausted, clk.Now().Sub(start), err)
		}

		log.Printf("Backoff: %s attempt %d failed: %v (retrying in %v)", b.Name, n, err, delay)

		if err := clk.Sleep(ctx, delay); err != nil {
			return n, err
		}

		if b.Multiplier > 1 {
			delay = time.Duration(float64(delay) * b.Multiplier)
			if b.MaxDelay > 0 && delay > b.MaxDelay {
				delay = b.MaxDelay
			}
		}
	}
}
