// Package eval converts candidate routes into gas- and slippage-adjusted
// opportunities. Pricing simulates every hop with the pool's exact formula;
// mid-price shortcuts are never used because price impact dominates
// profitability at realistic trade sizes.
package eval

import (
	"fmt"
	"math"

	"github.com/hulrap/TradingBot-sub007/internal/domain"
)

// stableSwapIterations bounds the Newton iterations for the StableSwap
// invariant; convergence is quadratic and 64 is far beyond what two-coin
// pools need.
const stableSwapIterations = 64

// AmountOut computes the exact output of swapping `in` through the edge
// using the pool kind's pricing formula. Returns 0 for non-positive input.
func AmountOut(e domain.PoolEdge, in float64) (float64, error) {
	if in <= 0 {
		return 0, nil
	}
	if e.ReserveIn <= 0 || e.ReserveOut <= 0 {
		return 0, fmt.Errorf("eval: edge %s has empty reserves: %w", e.ID, domain.ErrMalformedUpdate)
	}
	switch e.Kind {
	case domain.PoolConstantProduct, domain.PoolConcentrated:
		// Concentrated liquidity within the active tick behaves as a
		// constant-product curve on virtual reserves, which is what the
		// feed reports for the edge.
		return constantProductOut(in, e.ReserveIn, e.ReserveOut, e.FeeFraction()), nil
	case domain.PoolStableSwap:
		return stableSwapOut(in, e.ReserveIn, e.ReserveOut, e.Amp, e.FeeFraction())
	default:
		return 0, fmt.Errorf("eval: edge %s has unknown kind %q: %w", e.ID, e.Kind, domain.ErrMalformedUpdate)
	}
}

// constantProductOut is the x*y=k closed form with the fee taken on input:
//
//	out = reserveOut * in*(1-fee) / (reserveIn + in*(1-fee))
func constantProductOut(in, reserveIn, reserveOut, fee float64) float64 {
	inAfterFee := in * (1 - fee)
	return reserveOut * inAfterFee / (reserveIn + inAfterFee)
}

// stableSwapOut prices a swap on a two-coin StableSwap pool. The invariant D
// is found by Newton iteration, then the post-trade balance of the output
// coin is solved from the invariant's quadratic form. The fee is taken on
// output, matching the reference implementation.
func stableSwapOut(in, reserveIn, reserveOut, amp, fee float64) (float64, error) {
	d, err := stableSwapD(reserveIn, reserveOut, amp)
	if err != nil {
		return 0, err
	}
	newIn := reserveIn + in
	newOut, err := stableSwapY(newIn, d, amp)
	if err != nil {
		return 0, err
	}
	out := reserveOut - newOut
	if out <= 0 {
		return 0, nil
	}
	return out * (1 - fee), nil
}

// stableSwapD solves the two-coin invariant
//
//	A*n^n*S + D = A*n^n*D + D^(n+1) / (n^n * P)
//
// for D, with n=2, S the balance sum, and P the balance product.
func stableSwapD(x, y, amp float64) (float64, error) {
	s := x + y
	if s <= 0 {
		return 0, fmt.Errorf("eval: stable pool with no balances")
	}
	ann := amp * 4 // A * n^n for n=2
	d := s
	for i := 0; i < stableSwapIterations; i++ {
		dp := d * d * d / (4 * x * y)
		prev := d
		d = (ann*s + 2*dp) * d / ((ann-1)*d + 3*dp)
		if math.Abs(d-prev) < 1e-12*d {
			return d, nil
		}
	}
	return d, nil
}

// stableSwapY solves the invariant for the output-coin balance given the new
// input-coin balance x and a fixed D.
func stableSwapY(x, d, amp float64) (float64, error) {
	if x <= 0 {
		return 0, fmt.Errorf("eval: stable swap with no input balance")
	}
	ann := amp * 4
	c := d * d * d / (4 * x * ann)
	b := x + d/ann
	y := d
	for i := 0; i < stableSwapIterations; i++ {
		prev := y
		y = (y*y + c) / (2*y + b - d)
		if math.Abs(y-prev) < 1e-12*y {
			return y, nil
		}
	}
	return y, nil
}

// SimulateRoute runs the input through every hop and returns the final
// output amount. It fails only on structurally broken edges; an output of 0
// means the trade was absorbed entirely by fees or impact.
func SimulateRoute(route domain.Route, input float64) (float64, error) {
	amount := input
	for _, e := range route.Edges {
		out, err := AmountOut(e, amount)
		if err != nil {
			return 0, err
		}
		if out <= 0 {
			return 0, nil
		}
		amount = out
	}
	return amount, nil
}
