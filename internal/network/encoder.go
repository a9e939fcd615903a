package network

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/hulrap/TradingBot-sub007/internal/domain"
)

// executorABIJSON is the interface of the on-chain route executor contract.
// The contract walks the pool list in order, swapping the full intermediate
// balance at each hop, and reverts unless the final balance covers
// minAmountOut.
const executorABIJSON = `[
	{
		"inputs": [
			{"name": "pools", "type": "address[]"},
			{"name": "zeroForOne", "type": "bool[]"},
			{"name": "amountIn", "type": "uint256"},
			{"name": "minAmountOut", "type": "uint256"},
			{"name": "deadline", "type": "uint256"}
		],
		"name": "executeRoute",
		"outputs": [{"name": "amountOut", "type": "uint256"}],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// routeEncoder packs trade bundles into executor calldata and decodes the
// simulated return value.
type routeEncoder struct {
	abi abi.ABI
}

func newRouteEncoder() (*routeEncoder, error) {
	parsed, err := abi.JSON(strings.NewReader(executorABIJSON))
	if err != nil {
		return nil, fmt.Errorf("network: parse executor abi: %w", err)
	}
	return &routeEncoder{abi: parsed}, nil
}

// EncodeExecute builds the executeRoute calldata for the bundle. Amounts are
// denominated in the input token's smallest units.
func (e *routeEncoder) EncodeExecute(bundle domain.TradeBundle) ([]byte, error) {
	edges := bundle.Route.Edges
	if len(edges) == 0 {
		return nil, fmt.Errorf("network: encode: %w", domain.ErrInvalidRoute)
	}

	pools := make([]common.Address, len(edges))
	directions := make([]bool, len(edges))
	for i, edge := range edges {
		pools[i] = edge.Pool
		directions[i] = edgeZeroForOne(edge)
	}

	decimals := bundle.Route.Input().Decimals
	amountIn := toUnits(bundle.InputAmount, decimals)
	minOut := toUnits(bundle.MinOutput, decimals)
	deadline := big.NewInt(bundle.Deadline.Unix())

	data, err := e.abi.Pack("executeRoute", pools, directions, amountIn, minOut, deadline)
	if err != nil {
		return nil, fmt.Errorf("network: pack executeRoute: %w", err)
	}
	return data, nil
}

// DecodeOutput unpacks the simulated executeRoute return into whole-token
// units of the route's input token.
func (e *routeEncoder) DecodeOutput(bundle domain.TradeBundle, data []byte) (float64, error) {
	out, err := e.abi.Unpack("executeRoute", data)
	if err != nil {
		return 0, fmt.Errorf("network: unpack executeRoute: %w", err)
	}
	amount, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("network: executeRoute returned %T, want *big.Int", out[0])
	}
	return fromUnits(amount, bundle.Route.Input().Decimals), nil
}

// edgeZeroForOne recovers the swap direction from the edge's token ordering:
// pools order their token pair by ascending address.
func edgeZeroForOne(edge domain.PoolEdge) bool {
	return bytes.Compare(edge.In.Address.Bytes(), edge.Out.Address.Bytes()) < 0
}

// toUnits converts a whole-token amount to smallest-unit integer form,
// rounding to the nearest unit. Truncation would encode an amount equal to
// one smallest unit as zero and understate every scaled value by up to a
// unit.
func toUnits(amount float64, decimals uint8) *big.Int {
	scaled := new(big.Float).Mul(
		big.NewFloat(amount),
		new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)),
	)
	scaled.Add(scaled, big.NewFloat(0.5))
	units, _ := scaled.Int(nil)
	return units
}

// fromUnits is the inverse of toUnits.
func fromUnits(units *big.Int, decimals uint8) float64 {
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	value, _ := new(big.Float).Quo(new(big.Float).SetInt(units), scale).Float64()
	return value
}
