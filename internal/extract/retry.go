package extract

import (
	"context"
	"math"
	"time"
)

// Policy bounds the attempts made for one external call.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 2 * time.Second, Multiplier: 2, MaxDelay: 30 * time.Second}
}

// Delay is the wait before attempt+1, after attempt failed (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := time.Duration(float64(p.BaseDelay) * math.Pow(mult, float64(attempt-1)))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// RetryHook observes each failed attempt that will be retried.
type RetryHook func(attempt int, err error, wait time.Duration)

// WithRetry runs op until it succeeds, fails permanently, or the policy is exhausted.
// Exhaustion is reported as a PermanentError with reason "retries exhausted".
func WithRetry[T any](ctx context.Context, step string, p Policy, op func(ctx context.Context, attempt int) (T, error), hook RetryHook) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		v, err := op(ctx, attempt)
		if err == nil {
			return v, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		err = Classify(step, err)
		if !IsTransient(err) {
			return zero, err
		}
		last = err
		if attempt == attempts {
			break
		}

		wait := p.Delay(attempt)
		if hook != nil {
			hook(attempt, err, wait)
		}
		if wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return zero, ctx.Err()
			case <-t.C:
			}
		}
	}
	return zero, &PermanentError{Step: step, Reason: "retries exhausted", Err: last}
}
