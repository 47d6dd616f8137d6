package cashier

import (
	"context"
	"errors"
	"math"
	"time"
)

// RetryPolicy bounds how the service retries processor calls that fail with
// ErrTransientNetwork. Declines are terminal business outcomes and are never
// retried. When attempts are exhausted the last error surfaces joined with
// ErrProcessorUnavailable.
type RetryPolicy struct {
	MaxAttempts     int           // total attempts including the first call
	InitialInterval time.Duration // delay before the first retry
	MaxInterval     time.Duration // cap on any single delay
	Multiplier      float64       // growth factor per retry
	CallTimeout     time.Duration // per-attempt deadline on the remote call
}

// DefaultRetryPolicy balances quick recovery from transient network blips
// with keeping user-facing transitions short.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2,
		CallTimeout:     15 * time.Second,
	}
}

// nextInterval calculates the exponential backoff delay before the given
// retry. Attempt starts at 1 for the first retry.
func (p RetryPolicy) nextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	initial := p.InitialInterval
	if initial == 0 {
		initial = time.Second
	}
	max := p.MaxInterval
	if max == 0 {
		max = 30 * time.Second
	}
	multiplier := p.Multiplier
	if multiplier == 0 {
		multiplier = 2
	}

	interval := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if interval > float64(max) {
		interval = float64(max)
	}
	return time.Duration(interval)
}

// call runs fn under the per-attempt timeout, retrying transient failures
// per the policy. Context cancellation aborts between attempts.
func (p RetryPolicy) call(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := range attempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errors.Join(ErrProcessorUnavailable, ctx.Err())
			case <-time.After(p.nextInterval(attempt)):
			}
		}

		callCtx := ctx
		if p.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, p.CallTimeout)
			lastErr = fn(callCtx)
			cancel()
		} else {
			lastErr = fn(callCtx)
		}

		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, ErrTransientNetwork) {
			return lastErr
		}
	}

	return errors.Join(ErrProcessorUnavailable, lastErr)
}
