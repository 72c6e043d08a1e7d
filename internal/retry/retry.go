// Package retry applies an exponential backoff policy around a single operation.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultMaxAttempts     = 3
	DefaultInitialInterval = 2 * time.Second
	DefaultMaxInterval     = 10 * time.Second
	DefaultMultiplier      = 2.0
)

// Policy describes how many times an operation is attempted and how long to wait in between.
//
// Waits happen only between attempts: InitialInterval before the second attempt, multiplied by
// Multiplier for each further one, capped at MaxInterval.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64

	// Retryable selects errors worth another attempt, nil retries every error.
	Retryable func(error) bool

	// Notify is called before each wait with the failed attempt's error.
	Notify func(err error, attempt int, wait time.Duration)

	// Timer drives the waits, nil uses a real timer.
	Timer backoff.Timer
}

// DefaultPolicy returns a policy of 3 attempts waiting 2s then 4s, capped at 10s.
func DefaultPolicy(retryable func(error) bool) *Policy {
	return &Policy{
		MaxAttempts:     DefaultMaxAttempts,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
		Multiplier:      DefaultMultiplier,
		Retryable:       retryable,
	}
}

func (p *Policy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.Multiplier = p.Multiplier
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	exp.Reset()

	retries := 0
	if p.MaxAttempts > 1 {
		retries = p.MaxAttempts - 1
	}

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)
}

// Do runs op until it succeeds, returns a non-retryable error, or attempts are exhausted.
// The error of the last attempt is returned unchanged, or the context error once ctx is done.
func (p *Policy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) error {
	attempt := 0

	operation := func() error {
		attempt++

		err := op(ctx, attempt)
		if err == nil {
			return nil
		}

		if p.Retryable != nil && !p.Retryable(err) {
			return backoff.Permanent(err)
		}

		return err
	}

	notify := func(err error, wait time.Duration) {
		if p.Notify != nil {
			p.Notify(err, attempt, wait)
		}
	}

	return backoff.RetryNotifyWithTimer(operation, p.backOff(ctx), notify, p.Timer)
}
