package graph

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hulrap/TradingBot-sub007/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func token(chain domain.ChainID, addr byte, symbol string) domain.TokenNode {
	return domain.TokenNode{
		Chain:    chain,
		Address:  common.BytesToAddress([]byte{addr}),
		Decimals: 18,
		Symbol:   symbol,
	}
}

func update(pool byte, t0, t1 domain.TokenNode, r0, r1 float64, version uint64) domain.PoolUpdate {
	return domain.PoolUpdate{
		Chain:      t0.Chain,
		Pool:       common.BytesToAddress([]byte{0xA0, pool}),
		Kind:       domain.PoolConstantProduct,
		Token0:     t0,
		Token1:     t1,
		Reserve0:   r0,
		Reserve1:   r1,
		FeeBps:     30,
		Version:    version,
		ObservedAt: time.Now(),
	}
}

func TestApplyUpdate(t *testing.T) {
	x := token(1, 0x01, "X")
	y := token(1, 0x02, "Y")

	t.Run("creates both directed edges", func(t *testing.T) {
		g := New(testLogger())
		v, err := g.ApplyUpdate(update(1, x, y, 1000, 500, 1))
		if err != nil {
			t.Fatalf("ApplyUpdate failed: %v", err)
		}
		if v != 1 {
			t.Errorf("expected global version 1, got %d", v)
		}
		if g.EdgeCount() != 2 {
			t.Fatalf("expected 2 directed edges, got %d", g.EdgeCount())
		}
		fwd := g.Neighbors(x.Key())
		if len(fwd) != 1 || fwd[0].Out.Key() != y.Key() {
			t.Fatalf("expected one edge X->Y, got %v", fwd)
		}
		if fwd[0].ReserveIn != 1000 || fwd[0].ReserveOut != 500 {
			t.Errorf("forward reserves mismatch: %+v", fwd[0])
		}
		rev := g.Neighbors(y.Key())
		if len(rev) != 1 || rev[0].ReserveIn != 500 {
			t.Errorf("reverse edge wrong: %+v", rev)
		}
	})

	t.Run("rejects negative reserves", func(t *testing.T) {
		g := New(testLogger())
		u := update(1, x, y, -1, 500, 1)
		if _, err := g.ApplyUpdate(u); err == nil {
			t.Fatal("expected rejection of negative reserves")
		}
		if g.EdgeCount() != 0 {
			t.Error("malformed update must not be applied")
		}
	})

	t.Run("rejects zero liquidity", func(t *testing.T) {
		g := New(testLogger())
		if _, err := g.ApplyUpdate(update(1, x, y, 1000, 0, 1)); err == nil {
			t.Fatal("expected rejection of zero reserve")
		}
	})

	t.Run("rejects non-monotonic version", func(t *testing.T) {
		g := New(testLogger())
		if _, err := g.ApplyUpdate(update(1, x, y, 1000, 500, 5)); err != nil {
			t.Fatalf("first update failed: %v", err)
		}
		_, err := g.ApplyUpdate(update(1, x, y, 2000, 900, 5))
		if err == nil {
			t.Fatal("expected stale update rejection")
		}
		// Old state must survive.
		edges := g.Neighbors(x.Key())
		if edges[0].ReserveIn != 1000 {
			t.Errorf("stale update was applied: %+v", edges[0])
		}
	})

	t.Run("newer version replaces reserves", func(t *testing.T) {
		g := New(testLogger())
		g.ApplyUpdate(update(1, x, y, 1000, 500, 1))
		if _, err := g.ApplyUpdate(update(1, x, y, 1100, 480, 2)); err != nil {
			t.Fatalf("second update failed: %v", err)
		}
		edges := g.Neighbors(x.Key())
		if edges[0].ReserveIn != 1100 || edges[0].Version != 2 {
			t.Errorf("update not applied: %+v", edges[0])
		}
	})
}

func TestNeighborsOrdering(t *testing.T) {
	g := New(testLogger())
	x := token(1, 0x01, "X")
	y := token(1, 0x02, "Y")
	z := token(1, 0x03, "Z")

	// Three edges out of X with distinct depths.
	g.ApplyUpdate(update(1, x, y, 100, 50, 1))
	g.ApplyUpdate(update(2, x, z, 5000, 2400, 1))
	g.ApplyUpdate(update(3, x, y, 900, 460, 1))

	got := g.Neighbors(x.Key())
	if len(got) != 3 {
		t.Fatalf("expected 3 edges, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Depth < got[i].Depth {
			t.Errorf("neighbors not sorted by depth: %g before %g", got[i-1].Depth, got[i].Depth)
		}
	}
	if got[0].Depth != 5000 {
		t.Errorf("deepest edge first, got depth %g", got[0].Depth)
	}
}

func TestRouteFresh(t *testing.T) {
	g := New(testLogger())
	x := token(1, 0x01, "X")
	y := token(1, 0x02, "Y")
	g.ApplyUpdate(update(1, x, y, 1000, 500, 1))

	edge := g.Neighbors(x.Key())[0]
	back := g.Neighbors(y.Key())[0]
	route, err := domain.NewRoute([]domain.PoolEdge{edge, back})
	if err != nil {
		t.Fatalf("NewRoute failed: %v", err)
	}
	opp := domain.Opportunity{
		Route:            route,
		Fingerprint:      route.Fingerprint(),
		SnapshotVersions: route.EdgeVersions(),
	}
	if !g.RouteFresh(opp) {
		t.Fatal("route should be fresh immediately after snapshot")
	}

	// Any pool update along the route invalidates the snapshot.
	g.ApplyUpdate(update(1, x, y, 1001, 499, 2))
	if g.RouteFresh(opp) {
		t.Fatal("route must be stale after edge version advanced")
	}
}

func TestConversionRate(t *testing.T) {
	g := New(testLogger())
	weth := token(1, 0x01, "WETH")
	usdc := token(1, 0x02, "USDC")
	dai := token(1, 0x03, "DAI")
	g.ApplyUpdate(update(1, weth, usdc, 1000, 2_000_000, 1))
	g.ApplyUpdate(update(2, usdc, dai, 1_000_000, 1_000_000, 1))

	t.Run("direct edge", func(t *testing.T) {
		rate, ok := g.ConversionRate(weth.Key(), usdc.Key())
		if !ok {
			t.Fatal("expected direct rate")
		}
		// 2000 per WETH net of the 30 bps fee.
		want := 2000.0 * (1 - 0.003)
		if diff := rate - want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("rate = %g, want %g", rate, want)
		}
	})

	t.Run("one intermediate hop", func(t *testing.T) {
		rate, ok := g.ConversionRate(weth.Key(), dai.Key())
		if !ok {
			t.Fatal("expected two-hop rate via USDC")
		}
		if rate <= 0 {
			t.Errorf("rate = %g", rate)
		}
	})

	t.Run("identity", func(t *testing.T) {
		rate, ok := g.ConversionRate(weth.Key(), weth.Key())
		if !ok || rate != 1 {
			t.Errorf("identity rate = %g, ok=%v", rate, ok)
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		stranger := token(1, 0x7F, "XXX")
		if _, ok := g.ConversionRate(stranger.Key(), usdc.Key()); ok {
			t.Error("expected no rate for unknown token")
		}
	})
}

func TestConcurrentUpdates(t *testing.T) {
	g := New(testLogger())
	base := token(1, 0x01, "X")

	var wg sync.WaitGroup
	for p := byte(1); p <= 8; p++ {
		wg.Add(1)
		go func(p byte) {
			defer wg.Done()
			other := token(1, 0x10+p, "T")
			for v := uint64(1); v <= 50; v++ {
				g.ApplyUpdate(update(p, base, other, float64(1000+v), float64(500+v), v))
			}
		}(p)
	}
	wg.Wait()

	if g.EdgeCount() != 16 {
		t.Fatalf("expected 16 directed edges, got %d", g.EdgeCount())
	}
	for _, e := range g.Neighbors(base.Key()) {
		if e.Version != 50 {
			t.Errorf("edge %s at version %d, want 50", e.ID, e.Version)
		}
	}
}
