package telemetry

import (
	"testing"
	"time"

	"github.com/hulrap/TradingBot-sub007/internal/domain"
)

func TestCollectorSnapshot(t *testing.T) {
	c := NewCollector()

	c.UpdateApplied()
	c.UpdateApplied()
	c.UpdateRejected()
	c.RoutesSearched(12)
	c.OpportunityFound(1.5)
	c.OpportunityFound(0.5)
	c.OpportunityFound(3.0)
	c.OpportunityRejected(domain.RejectNegativeProfit)
	c.OpportunityRejected(domain.RejectNegativeProfit)
	c.OpportunityRejected(domain.RejectStaleSource)
	c.AttemptStarted()
	c.AttemptFinished(domain.AttemptConfirmed)
	c.AttemptFinished(domain.AttemptReverted)
	c.AttemptFinished(domain.AttemptRejected)

	snap := c.Snapshot()

	if snap.UpdatesApplied != 2 || snap.UpdatesRejected != 1 {
		t.Errorf("updates = %d/%d, want 2/1", snap.UpdatesApplied, snap.UpdatesRejected)
	}
	if snap.RoutesSearched != 12 {
		t.Errorf("routes searched = %d", snap.RoutesSearched)
	}
	if snap.OppsFound != 3 {
		t.Errorf("opps found = %d", snap.OppsFound)
	}
	if snap.OppsRejected[domain.RejectNegativeProfit] != 2 {
		t.Errorf("negative profit rejects = %d", snap.OppsRejected[domain.RejectNegativeProfit])
	}
	if snap.AttemptsConfirmed != 1 || snap.AttemptsReverted != 1 || snap.AttemptsRejected != 1 {
		t.Error("attempt counters wrong")
	}
	if snap.ProfitMax != 3.0 {
		t.Errorf("profit max = %g", snap.ProfitMax)
	}
	if snap.ProfitP50 != 1.5 {
		t.Errorf("profit p50 = %g", snap.ProfitP50)
	}
	if !snap.WindowEnd.After(snap.WindowStart) && !snap.WindowEnd.Equal(snap.WindowStart) {
		t.Error("window bounds inverted")
	}
}

func TestCollectorSnapshotResetsWindow(t *testing.T) {
	c := NewCollector()
	c.UpdateApplied()
	first := c.Snapshot()
	if first.UpdatesApplied != 1 {
		t.Fatalf("first window applied = %d", first.UpdatesApplied)
	}

	second := c.Snapshot()
	if second.UpdatesApplied != 0 || second.OppsFound != 0 {
		t.Error("counters survived the window reset")
	}
	if second.WindowStart.Before(first.WindowEnd) {
		t.Error("second window starts before the first ended")
	}
}

func TestCollectorEmptyQuantiles(t *testing.T) {
	c := NewCollector()
	snap := c.Snapshot()
	if snap.ProfitP50 != 0 || snap.ProfitP90 != 0 || snap.ProfitMax != 0 {
		t.Error("empty window must report zero quantiles")
	}
}

func TestCollectorWindowTiming(t *testing.T) {
	c := NewCollector()
	base := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return base.Add(time.Minute) }

	snap := c.Snapshot()
	if !snap.WindowEnd.Equal(base.Add(time.Minute)) {
		t.Errorf("window end = %v", snap.WindowEnd)
	}
}
