package extract

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/plansets/internal/metrics"
)

// Throttle enforces a minimum spacing between external calls and a cap on calls in flight.
type Throttle struct {
	limiter *rate.Limiter
	sem     *semaphore.Weighted
}

func NewThrottle(minDelay time.Duration, maxInFlight int) *Throttle {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	limit := rate.Inf
	if minDelay > 0 {
		limit = rate.Every(minDelay)
	}
	return &Throttle{
		limiter: rate.NewLimiter(limit, 1),
		sem:     semaphore.NewWeighted(int64(maxInFlight)),
	}
}

// Do holds one in-flight slot for the duration of fn. fn runs under timeout when it is positive.
func (t *Throttle) Do(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if err := t.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer t.sem.Release(1)

	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	metrics.IncrementInFlight()
	defer metrics.DecrementInFlight()

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(callCtx)
}
