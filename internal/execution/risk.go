package execution

import (
	"context"
	"fmt"
	"sync"

	"github.com/hulrap/TradingBot-sub007/internal/domain"
)

// RiskContext is the explicit risk state threaded through execution. It
// replaces any notion of a global mutable kill switch: the halt signal is a
// cancellation function owned by whoever wires the coordinator, and limits
// are checked at the well-defined Pending validation point.
type RiskContext struct {
	mu sync.Mutex

	// MaxNotional caps the input amount of a single attempt, in
	// input-token units. Zero disables the check.
	MaxNotional float64
	// MaxDailyLoss halts execution once cumulative realized losses exceed
	// it. Zero disables the check.
	MaxDailyLoss float64

	realizedLoss float64
	halt         context.CancelFunc
	halted       bool
}

// NewRiskContext creates a risk context; halt, when non-nil, is invoked once
// if the daily loss limit trips.
func NewRiskContext(maxNotional, maxDailyLoss float64, halt context.CancelFunc) *RiskContext {
	return &RiskContext{MaxNotional: maxNotional, MaxDailyLoss: maxDailyLoss, halt: halt}
}

// Allow checks the opportunity against the risk limits. A denial is a
// Rejected outcome for the attempt, not an engine failure.
func (r *RiskContext) Allow(opp domain.Opportunity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.halted {
		return fmt.Errorf("risk: execution halted after %.4f realized loss", r.realizedLoss)
	}
	if r.MaxNotional > 0 && opp.InputAmount > r.MaxNotional {
		return fmt.Errorf("risk: input %.4f exceeds max notional %.4f", opp.InputAmount, r.MaxNotional)
	}
	return nil
}

// RecordOutcome feeds a terminal attempt's realized result back into the
// loss accounting. Losses accumulate; once MaxDailyLoss is exceeded the
// context halts and cancels execution.
func (r *RiskContext) RecordOutcome(attempt domain.ExecutionAttempt) {
	if attempt.State != domain.AttemptConfirmed && attempt.State != domain.AttemptReverted {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if attempt.RealizedProfit < 0 {
		r.realizedLoss += -attempt.RealizedProfit
	}
	if r.MaxDailyLoss > 0 && r.realizedLoss > r.MaxDailyLoss && !r.halted {
		r.halted = true
		if r.halt != nil {
			r.halt()
		}
	}
}

// Halted reports whether the loss limit has tripped.
func (r *RiskContext) Halted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.halted
}
