// Package telemetry aggregates discovery and execution counters into
// windowed snapshots and publishes them as plain events.
package telemetry

import (
	"sort"
	"sync"
	"time"

	"github.com/hulrap/TradingBot-sub007/internal/domain"
)

// Collector accumulates counters for the current window. All methods are
// safe for concurrent use; recording never blocks the hot path.
type Collector struct {
	mu          sync.Mutex
	windowStart time.Time
	applied     int64
	rejected    int64
	searched    int64
	found       int64
	oppRejects  map[domain.RejectReason]int64
	started     int64
	confirmed   int64
	reverted    int64
	expired     int64
	attRejected int64
	profits     []float64

	now func() time.Time
}

func NewCollector() *Collector {
	c := &Collector{now: time.Now}
	c.resetLocked()
	return c
}

func (c *Collector) resetLocked() {
	c.windowStart = c.now()
	c.applied = 0
	c.rejected = 0
	c.searched = 0
	c.found = 0
	c.oppRejects = make(map[domain.RejectReason]int64)
	c.started = 0
	c.confirmed = 0
	c.reverted = 0
	c.expired = 0
	c.attRejected = 0
	c.profits = c.profits[:0]
}

// UpdateApplied records one accepted graph update.
func (c *Collector) UpdateApplied() {
	c.mu.Lock()
	c.applied++
	c.mu.Unlock()
}

// UpdateRejected records one malformed or non-monotonic update.
func (c *Collector) UpdateRejected() {
	c.mu.Lock()
	c.rejected++
	c.mu.Unlock()
}

// RoutesSearched records candidate routes produced by one search pass.
func (c *Collector) RoutesSearched(n int) {
	c.mu.Lock()
	c.searched += int64(n)
	c.mu.Unlock()
}

// OpportunityFound records a profitable evaluation and its net profit.
func (c *Collector) OpportunityFound(netProfit float64) {
	c.mu.Lock()
	c.found++
	c.profits = append(c.profits, netProfit)
	c.mu.Unlock()
}

// OpportunityRejected records an evaluation rejection by reason.
func (c *Collector) OpportunityRejected(reason domain.RejectReason) {
	c.mu.Lock()
	c.oppRejects[reason]++
	c.mu.Unlock()
}

// AttemptStarted records one execution attempt entering Pending.
func (c *Collector) AttemptStarted() {
	c.mu.Lock()
	c.started++
	c.mu.Unlock()
}

// AttemptFinished records a terminal attempt.
func (c *Collector) AttemptFinished(state domain.AttemptState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch state {
	case domain.AttemptConfirmed:
		c.confirmed++
	case domain.AttemptReverted:
		c.reverted++
	case domain.AttemptExpired:
		c.expired++
	case domain.AttemptRejected:
		c.attRejected++
	}
}

// Snapshot closes the current window and starts a new one.
func (c *Collector) Snapshot() domain.StatsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := domain.StatsSnapshot{
		WindowStart:       c.windowStart,
		WindowEnd:         c.now(),
		UpdatesApplied:    c.applied,
		UpdatesRejected:   c.rejected,
		RoutesSearched:    c.searched,
		OppsFound:         c.found,
		OppsRejected:      make(map[domain.RejectReason]int64, len(c.oppRejects)),
		AttemptsStarted:   c.started,
		AttemptsConfirmed: c.confirmed,
		AttemptsReverted:  c.reverted,
		AttemptsExpired:   c.expired,
		AttemptsRejected:  c.attRejected,
	}
	for reason, n := range c.oppRejects {
		snap.OppsRejected[reason] = n
	}
	snap.ProfitP50, snap.ProfitP90, snap.ProfitMax = profitQuantiles(c.profits)

	c.resetLocked()
	return snap
}

// profitQuantiles computes p50, p90 and max over the window's profits.
func profitQuantiles(profits []float64) (p50, p90, pMax float64) {
	if len(profits) == 0 {
		return 0, 0, 0
	}
	sorted := make([]float64, len(profits))
	copy(sorted, profits)
	sort.Float64s(sorted)

	quantile := func(q float64) float64 {
		idx := int(q * float64(len(sorted)-1))
		return sorted[idx]
	}
	return quantile(0.5), quantile(0.9), sorted[len(sorted)-1]
}
