package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// AttemptState is the execution attempt state machine:
//
//	Pending -> Simulated -> Submitted -> {Confirmed | Reverted | Expired}
//	Pending -> Rejected
type AttemptState string

const (
	AttemptPending   AttemptState = "pending"
	AttemptSimulated AttemptState = "simulated"
	AttemptSubmitted AttemptState = "submitted"
	AttemptConfirmed AttemptState = "confirmed"
	AttemptReverted  AttemptState = "reverted"
	AttemptExpired   AttemptState = "expired"
	AttemptRejected  AttemptState = "rejected"
)

// Terminal reports whether the state ends the attempt's lifecycle.
func (s AttemptState) Terminal() bool {
	switch s {
	case AttemptConfirmed, AttemptReverted, AttemptExpired, AttemptRejected:
		return true
	}
	return false
}

// canTransition enumerates the legal state-machine edges.
func canTransition(from, to AttemptState) bool {
	switch from {
	case AttemptPending:
		return to == AttemptSimulated || to == AttemptRejected
	case AttemptSimulated:
		return to == AttemptSubmitted || to == AttemptRejected
	case AttemptSubmitted:
		return to == AttemptConfirmed || to == AttemptReverted || to == AttemptExpired
	}
	return false
}

// ExecutionAttempt records one attempt to execute an opportunity. It is
// owned exclusively by the coordinator until it reaches a terminal state,
// after which it is archived and never modified again.
type ExecutionAttempt struct {
	ID          string
	Opportunity Opportunity
	State       AttemptState
	// AttemptCount counts network submissions including backoff retries.
	AttemptCount int
	TxHash       common.Hash
	GasUsed      uint64
	// RealizedProfit is filled on Confirmed when the receipt allows it.
	RealizedProfit float64
	FailureReason  RejectReason
	FailureDetail  string
	CreatedAt      time.Time
	SubmittedAt    time.Time
	CompletedAt    time.Time
}

// Transition moves the attempt to the next state, enforcing the legal edges
// of the state machine. It returns ErrBadTransition for illegal moves and
// never modifies a terminal attempt.
func (a *ExecutionAttempt) Transition(to AttemptState, now time.Time) error {
	if a.State.Terminal() {
		return ErrBadTransition
	}
	if !canTransition(a.State, to) {
		return ErrBadTransition
	}
	a.State = to
	if to == AttemptSubmitted {
		a.SubmittedAt = now
	}
	if to.Terminal() {
		a.CompletedAt = now
	}
	return nil
}
