package execution

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hulrap/TradingBot-sub007/internal/domain"
)

func transientErr(op string) error {
	return &domain.NetworkError{Op: op, Err: fmt.Errorf("timeout"), Transient: true}
}

func TestRetryPolicyDo(t *testing.T) {
	policy := RetryPolicy{Budget: 2, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}

	t.Run("succeeds first try", func(t *testing.T) {
		calls := 0
		err := policy.Do(context.Background(), func(ctx context.Context) error {
			calls++
			return nil
		})
		if err != nil || calls != 1 {
			t.Fatalf("err = %v, calls = %d", err, calls)
		}
	})

	t.Run("recovers within budget", func(t *testing.T) {
		calls := 0
		err := policy.Do(context.Background(), func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return transientErr("submit")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Do failed despite recovery: %v", err)
		}
		if calls != 3 {
			t.Fatalf("calls = %d, want 3 (initial + 2 retries)", calls)
		}
	})

	t.Run("budget exhausted", func(t *testing.T) {
		calls := 0
		err := policy.Do(context.Background(), func(ctx context.Context) error {
			calls++
			return transientErr("submit")
		})
		if err == nil {
			t.Fatal("expected error after budget exhaustion")
		}
		if calls != 3 {
			t.Fatalf("calls = %d, want 3: budget of 2 means two retries, never a third", calls)
		}
	})

	t.Run("permanent error not retried", func(t *testing.T) {
		calls := 0
		permanent := &domain.NetworkError{Op: "simulate", Err: fmt.Errorf("revert"), Transient: false}
		err := policy.Do(context.Background(), func(ctx context.Context) error {
			calls++
			return permanent
		})
		if !errors.Is(err, permanent) {
			t.Fatalf("err = %v, want the permanent error unwrapped", err)
		}
		if calls != 1 {
			t.Fatalf("permanent error retried: %d calls", calls)
		}
	})

	t.Run("plain error not retried", func(t *testing.T) {
		calls := 0
		policy.Do(context.Background(), func(ctx context.Context) error {
			calls++
			return errors.New("logic bug")
		})
		if calls != 1 {
			t.Fatalf("non-network error retried: %d calls", calls)
		}
	})

	t.Run("cancelled context stops retries", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := policy.Do(ctx, func(ctx context.Context) error {
			calls++
			cancel()
			return transientErr("submit")
		})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
		if calls != 1 {
			t.Fatalf("retried after cancellation: %d calls", calls)
		}
	})
}

func TestRetryPolicyBackoffCaps(t *testing.T) {
	policy := RetryPolicy{Budget: 4, BaseDelay: 10 * time.Millisecond, MaxDelay: 20 * time.Millisecond}

	start := time.Now()
	policy.Do(context.Background(), func(ctx context.Context) error {
		return transientErr("submit")
	})
	elapsed := time.Since(start)

	// Delays: 10, 20, 20, 20 ms with the cap applied; uncapped would be
	// 10+20+40+80.
	if elapsed < 60*time.Millisecond {
		t.Fatalf("elapsed %s, want at least the capped delay sum", elapsed)
	}
	if elapsed > 130*time.Millisecond {
		t.Fatalf("elapsed %s suggests the cap was not applied", elapsed)
	}
}
