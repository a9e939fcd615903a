package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// NetworkError wraps a failure from the network access layer. Transient
// errors (timeouts, connection drops, endpoint failover) are eligible for
// the coordinator's bounded retry policy; permanent ones are not.
type NetworkError struct {
	Op        string
	Err       error
	Transient bool
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsTransientNetworkError reports whether err is a retryable network
// failure.
func IsTransientNetworkError(err error) bool {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Transient
	}
	return false
}

// TradeBundle is the chain-agnostic description of the transaction(s) that
// realize an opportunity. ABI encoding is the network layer's concern.
type TradeBundle struct {
	Chain       ChainID
	Route       Route
	InputAmount float64
	MinOutput   float64
	GasLimit    uint64
	Deadline    time.Time
}

// SimulationResult is the outcome of a dry run against current chain state.
type SimulationResult struct {
	Ok             bool
	ExpectedOutput float64
	GasEstimate    uint64
	// Reason is the simulator's revert or rejection reason when !Ok.
	Reason string
}

// SubmissionHandle identifies a submitted transaction for inclusion polling.
type SubmissionHandle struct {
	Chain       ChainID
	TxHash      common.Hash
	SubmittedAt time.Time
}

// InclusionResult is the terminal chain outcome of a submission.
type InclusionResult struct {
	Included    bool
	Reverted    bool
	BlockNumber uint64
	GasUsed     uint64
}

// NetworkAccess is the boundary to the pooled, health-checked RPC layer. The
// engine treats everything behind it as a black box with bounded latency;
// transient failures surface as errors classified by IsTransient.
type NetworkAccess interface {
	Simulate(ctx context.Context, bundle TradeBundle) (SimulationResult, error)
	Submit(ctx context.Context, bundle TradeBundle) (SubmissionHandle, error)
	AwaitInclusion(ctx context.Context, handle SubmissionHandle, deadline time.Time) (InclusionResult, error)
	// GasPrice returns the current gas price for the chain in wei.
	GasPrice(ctx context.Context, chain ChainID) (float64, error)
}
