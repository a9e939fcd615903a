package network

import (
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hulrap/TradingBot-sub007/internal/domain"
)

func netTok(addr byte, symbol string, decimals uint8) domain.TokenNode {
	return domain.TokenNode{Chain: 1, Address: common.BytesToAddress([]byte{addr}), Decimals: decimals, Symbol: symbol}
}

func netEdge(pool byte, in, out domain.TokenNode) domain.PoolEdge {
	return domain.PoolEdge{
		ID:         domain.MakeEdgeID(1, common.BytesToAddress([]byte{0xF0, pool}), true),
		Chain:      1,
		Pool:       common.BytesToAddress([]byte{0xF0, pool}),
		Kind:       domain.PoolConstantProduct,
		In:         in,
		Out:        out,
		ReserveIn:  1_000_000,
		ReserveOut: 1_000_000,
		FeeBps:     30,
		Depth:      1_000_000,
	}
}

func testBundle(t *testing.T) domain.TradeBundle {
	t.Helper()
	x := netTok(0x01, "X", 18)
	y := netTok(0x02, "Y", 18)
	route, err := domain.NewRoute([]domain.PoolEdge{
		netEdge(0x01, x, y),
		netEdge(0x02, y, x),
	})
	if err != nil {
		t.Fatalf("NewRoute: %v", err)
	}
	return domain.TradeBundle{
		Chain:       1,
		Route:       route,
		InputAmount: 1000,
		MinOutput:   1001.5,
		Deadline:    time.Unix(1_900_000_000, 0),
	}
}

func TestEncodeExecute(t *testing.T) {
	enc, err := newRouteEncoder()
	if err != nil {
		t.Fatalf("newRouteEncoder: %v", err)
	}
	bundle := testBundle(t)

	data, err := enc.EncodeExecute(bundle)
	if err != nil {
		t.Fatalf("EncodeExecute: %v", err)
	}
	if len(data) < 4 {
		t.Fatal("calldata missing method selector")
	}

	method, err := enc.abi.MethodById(data[:4])
	if err != nil || method.Name != "executeRoute" {
		t.Fatalf("selector resolves to %v (%v)", method, err)
	}

	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("unpack args: %v", err)
	}
	pools := args[0].([]common.Address)
	if len(pools) != 2 || pools[0] != bundle.Route.Edges[0].Pool || pools[1] != bundle.Route.Edges[1].Pool {
		t.Errorf("pools = %v", pools)
	}
	directions := args[1].([]bool)
	// X (0x...01) sorts below Y (0x...02): the first hop is zeroForOne,
	// the return hop is not.
	if !directions[0] || directions[1] {
		t.Errorf("directions = %v, want [true false]", directions)
	}
	amountIn := args[2].(*big.Int)
	wantIn := new(big.Int).Mul(big.NewInt(1000), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	if amountIn.Cmp(wantIn) != 0 {
		t.Errorf("amountIn = %s, want %s", amountIn, wantIn)
	}
	deadline := args[4].(*big.Int)
	if deadline.Int64() != bundle.Deadline.Unix() {
		t.Errorf("deadline = %s", deadline)
	}
}

func TestEncodeExecuteEmptyRoute(t *testing.T) {
	enc, _ := newRouteEncoder()
	if _, err := enc.EncodeExecute(domain.TradeBundle{}); err == nil {
		t.Fatal("empty route must not encode")
	}
}

func TestUnitsConversion(t *testing.T) {
	tests := []struct {
		amount   float64
		decimals uint8
	}{
		{1, 18},
		{1234.5678, 18},
		{0.000001, 6},
		{2_500_000, 8},
	}
	for _, tt := range tests {
		units := toUnits(tt.amount, tt.decimals)
		back := fromUnits(units, tt.decimals)
		if math.Abs(back-tt.amount)/tt.amount > 1e-12 {
			t.Errorf("round trip %g @ %d decimals: got %g", tt.amount, tt.decimals, back)
		}
	}

	if toUnits(1, 6).Cmp(big.NewInt(1_000_000)) != 0 {
		t.Errorf("toUnits(1, 6) = %s", toUnits(1, 6))
	}

	// One smallest unit must survive the conversion; truncation would
	// encode it as zero calldata units.
	if toUnits(1e-6, 6).Cmp(big.NewInt(1)) != 0 {
		t.Errorf("toUnits(1e-6, 6) = %s, want 1", toUnits(1e-6, 6))
	}
	if toUnits(1e-18, 18).Cmp(big.NewInt(1)) != 0 {
		t.Errorf("toUnits(1e-18, 18) = %s, want 1", toUnits(1e-18, 18))
	}
}
