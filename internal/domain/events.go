package domain

import "time"

// Signal bus channels.
const (
	ChannelOpportunities = "opportunities"
	ChannelAttempts      = "attempts"
	ChannelStats         = "stats"
)

// EngineEvent is the wire shape published on the signal bus.
type EngineEvent struct {
	Event       string    `json:"event"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Route       string    `json:"route,omitempty"`
	Chain       uint64    `json:"chain,omitempty"`
	AttemptID   string    `json:"attempt_id,omitempty"`
	State       string    `json:"state,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	NetProfit   float64   `json:"net_profit,omitempty"`
	Confidence  float64   `json:"confidence,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// StatsSnapshot summarizes discovery and execution activity over a window.
type StatsSnapshot struct {
	WindowStart       time.Time
	WindowEnd         time.Time
	UpdatesApplied    int64
	UpdatesRejected   int64
	RoutesSearched    int64
	OppsFound         int64
	OppsRejected      map[RejectReason]int64
	AttemptsStarted   int64
	AttemptsConfirmed int64
	AttemptsReverted  int64
	AttemptsExpired   int64
	AttemptsRejected  int64
	// Profit distribution of evaluated opportunities, input-token units.
	ProfitP50 float64
	ProfitP90 float64
	ProfitMax float64
}
