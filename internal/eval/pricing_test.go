package eval

import (
	"math"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hulrap/TradingBot-sub007/internal/domain"
)

func token(addr byte, symbol string) domain.TokenNode {
	return domain.TokenNode{
		Chain:    1,
		Address:  common.BytesToAddress([]byte{addr}),
		Decimals: 18,
		Symbol:   symbol,
	}
}

func cpEdge(pool byte, in, out domain.TokenNode, rin, rout float64, feeBps int) domain.PoolEdge {
	addr := common.BytesToAddress([]byte{0xA0, pool})
	return domain.PoolEdge{
		ID:         domain.MakeEdgeID(1, addr, true),
		Chain:      1,
		Pool:       addr,
		Kind:       domain.PoolConstantProduct,
		In:         in,
		Out:        out,
		ReserveIn:  rin,
		ReserveOut: rout,
		FeeBps:     feeBps,
		Depth:      rin,
		Version:    1,
		UpdatedAt:  time.Now(),
	}
}

func TestConstantProductClosedForm(t *testing.T) {
	x := token(0x01, "X")
	y := token(0x02, "Y")
	e := cpEdge(1, x, y, 1_000_000, 500_000, 30)

	got, err := AmountOut(e, 1000)
	if err != nil {
		t.Fatalf("AmountOut failed: %v", err)
	}

	// out = reserveOut * in*(1-fee) / (reserveIn + in*(1-fee))
	inAfterFee := 1000.0 * (1 - 0.003)
	want := 500_000 * inAfterFee / (1_000_000 + inAfterFee)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("output = %.12f, want %.12f (diff %g)", got, want, got-want)
	}
}

func TestConstantProductProperties(t *testing.T) {
	x := token(0x01, "X")
	y := token(0x02, "Y")
	e := cpEdge(1, x, y, 1_000_000, 500_000, 30)

	t.Run("zero input yields zero output", func(t *testing.T) {
		out, err := AmountOut(e, 0)
		if err != nil || out != 0 {
			t.Errorf("out=%g err=%v", out, err)
		}
	})

	t.Run("output below spot rate", func(t *testing.T) {
		out, _ := AmountOut(e, 10_000)
		spot := 10_000 * e.SpotRate()
		if out >= spot {
			t.Errorf("impact-adjusted output %g must be below spot %g", out, spot)
		}
	})

	t.Run("output bounded by reserves", func(t *testing.T) {
		out, _ := AmountOut(e, 1e12)
		if out >= e.ReserveOut {
			t.Errorf("output %g cannot reach reserve %g", out, e.ReserveOut)
		}
	})

	t.Run("monotonic in input", func(t *testing.T) {
		prev := 0.0
		for _, in := range []float64{1, 10, 100, 1000, 10_000} {
			out, _ := AmountOut(e, in)
			if out <= prev {
				t.Fatalf("output not increasing at input %g", in)
			}
			prev = out
		}
	})
}

func TestStableSwap(t *testing.T) {
	a := token(0x01, "USDC")
	b := token(0x02, "DAI")
	e := cpEdge(1, a, b, 1_000_000, 1_000_000, 4)
	e.Kind = domain.PoolStableSwap
	e.Amp = 100

	t.Run("near parity for balanced pool", func(t *testing.T) {
		out, err := AmountOut(e, 1000)
		if err != nil {
			t.Fatalf("stable swap failed: %v", err)
		}
		// High amplification keeps the realized rate within a few bps of
		// parity for a small trade.
		rate := out / 1000
		if rate < 0.998 || rate > 1.0 {
			t.Errorf("realized rate %g outside [0.998, 1.0]", rate)
		}
	})

	t.Run("lower impact than constant product", func(t *testing.T) {
		in := 100_000.0
		stable, _ := AmountOut(e, in)
		cp := e
		cp.Kind = domain.PoolConstantProduct
		cpOut, _ := AmountOut(cp, in)
		if stable <= cpOut {
			t.Errorf("stable output %g should beat constant-product %g for a large balanced-pool trade", stable, cpOut)
		}
	})

	t.Run("output bounded by reserves", func(t *testing.T) {
		out, _ := AmountOut(e, 1e9)
		if out >= e.ReserveOut {
			t.Errorf("output %g cannot reach reserve %g", out, e.ReserveOut)
		}
	})
}

func TestConcentratedUsesVirtualReserves(t *testing.T) {
	x := token(0x01, "X")
	y := token(0x02, "Y")
	e := cpEdge(1, x, y, 1_000_000, 500_000, 30)
	e.Kind = domain.PoolConcentrated

	conc, err := AmountOut(e, 1000)
	if err != nil {
		t.Fatalf("concentrated pricing failed: %v", err)
	}
	cp := e
	cp.Kind = domain.PoolConstantProduct
	cpOut, _ := AmountOut(cp, 1000)
	if conc != cpOut {
		t.Errorf("within-tick pricing %g differs from virtual-reserve constant product %g", conc, cpOut)
	}
}

func TestSimulateRoute(t *testing.T) {
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

	out, err := SimulateRoute(route, 1000)
	if err != nil {
		t.Fatalf("SimulateRoute failed: %v", err)
	}
	if out <= 1000 {
		t.Errorf("triangle with 1.5%% gross edge should profit at small size, got %g out for 1000 in", out)
	}

	// Hop-by-hop composition must match manual chaining.
	a, _ := AmountOut(route.Edges[0], 1000)
	b, _ := AmountOut(route.Edges[1], a)
	c, _ := AmountOut(route.Edges[2], b)
	if math.Abs(out-c) > 1e-9 {
		t.Errorf("SimulateRoute %g differs from manual chain %g", out, c)
	}
}
