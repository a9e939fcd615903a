package execution

import (
	"context"
	"time"

	"github.com/hulrap/TradingBot-sub007/internal/domain"
)

// RetryPolicy is the single shared retry/backoff policy applied at the
// network boundary. Only transient network errors are retried; every other
// error aborts immediately. Budget counts retries, not total calls: a budget
// of 2 allows one initial call plus two retries.
type RetryPolicy struct {
	Budget    int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryPolicy matches the configuration defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Budget: 2, BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second}
}

// Do runs fn, retrying transient network errors with exponential backoff
// until the budget is exhausted or the context is cancelled. The last error
// is returned on exhaustion.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	delay := p.BaseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !domain.IsTransientNetworkError(err) {
			return err
		}
		if attempt >= p.Budget {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
}
