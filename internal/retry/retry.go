// Package retry runs an operation a bounded number of times with jittered
// exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

var ErrExhausted = errors.New("retry attempts exhausted")

type Policy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// Jitter is the randomization factor in [0,1).
	Jitter float64
}

// DefaultPolicy polls three times starting at one second.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: time.Second,
		MaxInterval:     4 * time.Second,
		Jitter:          0.2,
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.MaxAttempts == 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = def.InitialInterval
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = p.InitialInterval
	}
	if p.Jitter < 0 || p.Jitter >= 1 {
		p.Jitter = def.Jitter
	}
	return p
}

// Attempt describes one failed try that will be retried.
type Attempt struct {
	Number int
	Err    error
	Wait   time.Duration
}

// Permanent stops retrying and returns err as is.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do calls op until it succeeds, returns a permanent error, or runs out of
// attempts. attempt numbers start at 1. onRetry may be nil.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error), onRetry func(Attempt)) (T, error) {
	p = p.withDefaults()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.RandomizationFactor = p.Jitter
	b.Multiplier = 2

	attempt := 0
	result, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		return op(ctx, attempt)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(p.MaxAttempts),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			if onRetry != nil {
				onRetry(Attempt{Number: attempt, Err: err, Wait: wait})
			}
		}),
	)
	if err == nil {
		return result, nil
	}

	var zero T
	if ctxErr := ctx.Err(); ctxErr != nil {
		return zero, ctxErr
	}
	if attempt >= int(p.MaxAttempts) {
		return zero, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, err)
	}
	return zero, err
}
