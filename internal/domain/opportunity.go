package domain

import "time"

// RejectReason is the machine-readable reason an opportunity was rejected by
// the evaluator or the coordinator's pre-submission checks.
type RejectReason string

const (
	RejectInsufficientLiquidity RejectReason = "insufficient_liquidity"
	RejectNegativeProfit        RejectReason = "negative_expected_profit"
	RejectStaleSource           RejectReason = "stale_source_data"
	RejectPrecisionUnderflow    RejectReason = "precision_underflow"
	RejectRiskLimit             RejectReason = "risk_limit"
	RejectSimulationFailed      RejectReason = "simulation_failed"
	RejectNetworkTimeout        RejectReason = "network_timeout"
)

// Opportunity is a fully evaluated candidate trade: a route, the optimal
// input amount, and the expected economics net of fees, price impact, gas,
// and the configured slippage buffer. Opportunities are immutable; a
// re-evaluation of the same fingerprint produces a new Opportunity that
// supersedes the old one in the cache by snapshot version.
type Opportunity struct {
	Route       Route
	Fingerprint Fingerprint

	// Amounts are in the route's input-token units.
	InputAmount float64
	GrossOutput float64
	GasCost     float64
	// NetProfit = GrossOutput - InputAmount - GasCost - slippage buffer.
	NetProfit float64

	// Confidence in (0, 1]: lower for thin pools, long routes, old data.
	Confidence float64

	DiscoveredAt time.Time
	// SnapshotVersions holds the graph version of every edge in the route
	// at evaluation time, aligned with Route.Edges. Execution is only
	// admitted while these still match the live graph.
	SnapshotVersions []uint64
}

// SnapshotVersion returns the version of edge i at evaluation time, or 0 if
// out of range.
func (o Opportunity) SnapshotVersion(i int) uint64 {
	if i < 0 || i >= len(o.SnapshotVersions) {
		return 0
	}
	return o.SnapshotVersions[i]
}

// Age returns how long ago the opportunity was discovered.
func (o Opportunity) Age(now time.Time) time.Duration {
	return now.Sub(o.DiscoveredAt)
}

// Supersedes reports whether o is newer than prev for the same fingerprint.
// Ordering is by snapshot version, not wall clock, so cache replacement
// stays deterministic under clock skew. An opportunity supersedes another
// when no edge version went backwards and at least one moved forward.
func (o Opportunity) Supersedes(prev Opportunity) bool {
	if o.Fingerprint != prev.Fingerprint {
		return false
	}
	if len(o.SnapshotVersions) != len(prev.SnapshotVersions) {
		return true
	}
	newer := false
	for i, v := range o.SnapshotVersions {
		if v < prev.SnapshotVersions[i] {
			return false
		}
		if v > prev.SnapshotVersions[i] {
			newer = true
		}
	}
	return newer
}
