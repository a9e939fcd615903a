package eval

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hulrap/TradingBot-sub007/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// flatConverter converts everything 1:1.
type flatConverter struct{}

func (flatConverter) ConversionRate(from, to domain.TokenKey) (float64, bool) {
	return 1, true
}

func testGasModel() *GasModel {
	native := map[domain.ChainID]domain.TokenKey{
		1: token(0x01, "X").Key(),
	}
	m := NewGasModel(120_000, 90_000, 0, native)
	m.ObservePrice(1, 20e9) // 20 gwei
	return m
}

func testConfig() Config {
	return Config{
		SlippageMarginBps:   10,
		LiquidityFloorRatio: 5,
		MaxStaleness:        2 * time.Second,
		MinInput:            1,
		MaxInput:            100_000,
	}
}

func profitableRoute(t *testing.T) domain.Route {
	t.Helper()
	x := token(0x01, "X")
	y := token(0x02, "Y")
	z := token(0x03, "Z")
	route, err := domain.NewRoute([]domain.PoolEdge{
		cpEdge(1, x, y, 1_000_000, 2_000_000, 30),
		cpEdge(2, y, z, 2_000_000, 1_000_000, 30),
		cpEdge(3, z, x, 1_000_000, 1_015_000, 30),
	})
	if err != nil {
		t.Fatalf("NewRoute failed: %v", err)
	}
	return route
}

func TestEvaluateProfitableCycle(t *testing.T) {
	ev := New(testConfig(), testGasModel(), flatConverter{}, testLogger())
	route := profitableRoute(t)

	opp, err := ev.Evaluate(route, 0)
	if err != nil {
		t.Fatalf("Evaluate rejected profitable route: %v", err)
	}
	if opp.NetProfit <= 0 {
		t.Fatalf("net profit %g must be positive", opp.NetProfit)
	}
	if opp.InputAmount <= 0 {
		t.Fatalf("optimal input %g must be positive", opp.InputAmount)
	}
	if opp.GrossOutput <= opp.InputAmount {
		t.Errorf("gross output %g must exceed input %g", opp.GrossOutput, opp.InputAmount)
	}
	if opp.Confidence <= 0 || opp.Confidence > 1 {
		t.Errorf("confidence %g outside (0, 1]", opp.Confidence)
	}
	if opp.Fingerprint != route.Fingerprint() {
		t.Error("opportunity fingerprint mismatch")
	}
	if len(opp.SnapshotVersions) != route.Hops() {
		t.Errorf("expected %d snapshot versions, got %d", route.Hops(), len(opp.SnapshotVersions))
	}

	// Net profit must already account for gas and the slippage buffer.
	buffer := opp.GrossOutput * testConfig().SlippageMarginBps / 10000
	reconstructed := opp.GrossOutput - opp.InputAmount - opp.GasCost - buffer
	if diff := opp.NetProfit - reconstructed; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("net profit %g does not reconstruct to %g", opp.NetProfit, reconstructed)
	}
}

func TestEvaluateOptimalInputBeatsFixed(t *testing.T) {
	ev := New(testConfig(), testGasModel(), flatConverter{}, testLogger())
	route := profitableRoute(t)

	opp, err := ev.Evaluate(route, 0)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	// Profit at the optimized input must beat an arbitrary fixed probe.
	for _, probe := range []float64{10, 1000, 50_000} {
		fixed, err := ev.netProfit(route, probe)
		if err != nil {
			t.Fatalf("netProfit(%g) failed: %v", probe, err)
		}
		if fixed > opp.NetProfit+1e-9 {
			t.Errorf("fixed input %g profit %g beats optimized %g", probe, fixed, opp.NetProfit)
		}
	}
}

func TestEvaluateRejections(t *testing.T) {
	t.Run("stale source data", func(t *testing.T) {
		ev := New(testConfig(), testGasModel(), flatConverter{}, testLogger())
		route := profitableRoute(t)
		ev.now = func() time.Time { return time.Now().Add(10 * time.Second) }

		_, err := ev.Evaluate(route, 0)
		if RejectReasonOf(err) != domain.RejectStaleSource {
			t.Fatalf("expected stale_source_data, got %v", err)
		}
	})

	t.Run("negative expected profit", func(t *testing.T) {
		ev := New(testConfig(), testGasModel(), flatConverter{}, testLogger())
		x := token(0x01, "X")
		y := token(0x02, "Y")
		// A round trip through two fair pools always loses the fees.
		route, err := domain.NewRoute([]domain.PoolEdge{
			cpEdge(1, x, y, 1_000_000, 2_000_000, 30),
			cpEdge(2, y, x, 2_000_000, 1_000_000, 30),
		})
		if err != nil {
			t.Fatalf("NewRoute failed: %v", err)
		}
		_, err = ev.Evaluate(route, 0)
		if RejectReasonOf(err) != domain.RejectNegativeProfit {
			t.Fatalf("expected negative_expected_profit, got %v", err)
		}
	})

	t.Run("precision underflow", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxInput = 1e-20
		cfg.MinInput = 1e-22
		ev := New(cfg, testGasModel(), flatConverter{}, testLogger())
		_, err := ev.Evaluate(profitableRoute(t), 0)
		if RejectReasonOf(err) != domain.RejectPrecisionUnderflow {
			t.Fatalf("expected precision_underflow, got %v", err)
		}
	})

	t.Run("rejection is typed", func(t *testing.T) {
		ev := New(testConfig(), testGasModel(), flatConverter{}, testLogger())
		ev.now = func() time.Time { return time.Now().Add(time.Hour) }
		_, err := ev.Evaluate(profitableRoute(t), 0)
		var re *RejectError
		if !errors.As(err, &re) {
			t.Fatalf("expected *RejectError, got %T", err)
		}
	})
}

func TestConfidenceOrdering(t *testing.T) {
	ev := New(testConfig(), testGasModel(), flatConverter{}, testLogger())

	fresh := profitableRoute(t)
	opp, err := ev.Evaluate(fresh, 0)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	// The same route evaluated later scores lower confidence.
	ev.now = func() time.Time { return time.Now().Add(1500 * time.Millisecond) }
	older, err := ev.Evaluate(fresh, 0)
	if err != nil {
		t.Fatalf("Evaluate of older snapshot failed: %v", err)
	}
	if older.Confidence >= opp.Confidence {
		t.Errorf("older snapshot confidence %g should be below fresh %g", older.Confidence, opp.Confidence)
	}
}

func TestGasModel(t *testing.T) {
	t.Run("cost scales with hops", func(t *testing.T) {
		m := testGasModel()
		two, ok := m.CostInToken(flatConverter{}, 1, token(0x01, "X").Key(), 2)
		if !ok {
			t.Fatal("expected gas cost")
		}
		three, _ := m.CostInToken(flatConverter{}, 1, token(0x01, "X").Key(), 3)
		if three <= two {
			t.Errorf("3-hop gas %g must exceed 2-hop %g", three, two)
		}
	})

	t.Run("fallback price before observation", func(t *testing.T) {
		native := map[domain.ChainID]domain.TokenKey{1: token(0x01, "X").Key()}
		m := NewGasModel(100_000, 80_000, 15e9, native)
		cost, ok := m.CostInToken(flatConverter{}, 1, token(0x01, "X").Key(), 2)
		if !ok || cost <= 0 {
			t.Fatalf("fallback cost = %g, ok=%v", cost, ok)
		}
	})

	t.Run("unknown chain has no cost", func(t *testing.T) {
		m := testGasModel()
		if _, ok := m.CostInToken(flatConverter{}, 99, token(0x01, "X").Key(), 2); ok {
			t.Error("expected no cost for chain without native token mapping")
		}
	})

	t.Run("zero gas units price as zero cost", func(t *testing.T) {
		// A model with no gas units must not depend on price or
		// conversion availability; routes would otherwise all reject
		// as unpriceable.
		native := map[domain.ChainID]domain.TokenKey{1: token(0x01, "X").Key()}
		m := NewGasModel(0, 0, 0, native)
		cost, ok := m.CostInToken(flatConverter{}, 1, token(0x02, "Y").Key(), 3)
		if !ok || cost != 0 {
			t.Fatalf("zero-unit cost = %g, ok=%v, want 0, true", cost, ok)
		}
	})

	t.Run("gas without any price is unpriceable", func(t *testing.T) {
		native := map[domain.ChainID]domain.TokenKey{1: token(0x01, "X").Key()}
		m := NewGasModel(100_000, 80_000, 0, native)
		if _, ok := m.CostInToken(flatConverter{}, 1, token(0x01, "X").Key(), 2); ok {
			t.Error("expected no cost when neither a live nor a fallback price exists")
		}
	})
}
