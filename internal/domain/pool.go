// Package domain defines the core types shared across the arbitrage engine:
// tokens, pool edges, routes, opportunities, execution attempts, and the
// interfaces implemented by the infrastructure layers.
package domain

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ChainID identifies a blockchain network (e.g. 1 for Ethereum mainnet).
type ChainID uint64

// TokenNode is a node in the market graph. Identity is (Chain, Address);
// a TokenNode is immutable once created.
type TokenNode struct {
	Chain    ChainID
	Address  common.Address
	Decimals uint8
	Symbol   string
}

// TokenKey is the comparable identity of a TokenNode.
type TokenKey struct {
	Chain   ChainID
	Address common.Address
}

// Key returns the node's identity.
func (t TokenNode) Key() TokenKey {
	return TokenKey{Chain: t.Chain, Address: t.Address}
}

// SmallestUnit returns the value of one indivisible unit of the token
// expressed in whole-token terms (10^-decimals).
func (t TokenNode) SmallestUnit() float64 {
	unit := 1.0
	for i := uint8(0); i < t.Decimals; i++ {
		unit /= 10
	}
	return unit
}

func (t TokenNode) String() string {
	if t.Symbol != "" {
		return t.Symbol
	}
	return fmt.Sprintf("%d:%s", t.Chain, t.Address.Hex())
}

// PoolKind classifies the pricing formula of a pool.
type PoolKind string

const (
	PoolConstantProduct PoolKind = "constant_product"
	PoolStableSwap      PoolKind = "stable_swap"
	PoolConcentrated    PoolKind = "concentrated"
)

// Valid reports whether the kind is one of the supported pricing formulas.
func (k PoolKind) Valid() bool {
	switch k {
	case PoolConstantProduct, PoolStableSwap, PoolConcentrated:
		return true
	}
	return false
}

// EdgeID identifies one directed swap edge of a pool. An unordered pool
// yields two directed edges, one per swap direction.
type EdgeID string

// MakeEdgeID builds the canonical edge ID for a pool and swap direction.
func MakeEdgeID(chain ChainID, pool common.Address, zeroForOne bool) EdgeID {
	dir := "01"
	if !zeroForOne {
		dir = "10"
	}
	return EdgeID(fmt.Sprintf("%d:%s:%s", chain, pool.Hex(), dir))
}

// PoolEdge is a directed swap edge in the market graph: trading In for Out
// through Pool. Reserves are denominated in whole-token units. Version is
// the per-edge monotonic counter maintained by the graph; an Opportunity
// derived from this edge carries the version for staleness checks.
type PoolEdge struct {
	ID         EdgeID
	Chain      ChainID
	Pool       common.Address
	Kind       PoolKind
	In         TokenNode
	Out        TokenNode
	ReserveIn  float64
	ReserveOut float64
	FeeBps     int
	// Amp is the amplification coefficient for stable_swap pools; ignored
	// for other kinds.
	Amp float64
	// Depth estimates the liquidity available on this edge in In-token
	// units, used by the search's liquidity-floor pruning.
	Depth     float64
	Version   uint64
	UpdatedAt time.Time
}

// FeeFraction returns the pool fee as a fraction (30 bps -> 0.003).
func (e PoolEdge) FeeFraction() float64 {
	return float64(e.FeeBps) / 10000.0
}

// SpotRate returns the marginal (zero-size) exchange rate of the edge net of
// fees. It is an upper bound on the realizable rate at any trade size.
func (e PoolEdge) SpotRate() float64 {
	if e.ReserveIn <= 0 {
		return 0
	}
	return e.ReserveOut / e.ReserveIn * (1 - e.FeeFraction())
}

// PoolUpdate is the normalized delta delivered by a liquidity feed adapter.
// Reserve0/Reserve1 are the pool's full reserves; the graph expands the
// update into the two directed edges. Version must be monotonic per pool.
type PoolUpdate struct {
	Chain      ChainID
	Pool       common.Address
	Kind       PoolKind
	Token0     TokenNode
	Token1     TokenNode
	Reserve0   float64
	Reserve1   float64
	FeeBps     int
	Amp        float64
	Version    uint64
	ObservedAt time.Time
}

// Validate checks the update for values the graph must never apply.
func (u PoolUpdate) Validate() error {
	if !u.Kind.Valid() {
		return fmt.Errorf("pool update %s: unknown pool kind %q: %w", u.Pool.Hex(), u.Kind, ErrMalformedUpdate)
	}
	if u.Reserve0 <= 0 || u.Reserve1 <= 0 {
		return fmt.Errorf("pool update %s: non-positive reserves (%g, %g): %w", u.Pool.Hex(), u.Reserve0, u.Reserve1, ErrMalformedUpdate)
	}
	if u.FeeBps < 0 || u.FeeBps >= 10000 {
		return fmt.Errorf("pool update %s: fee %d bps out of range: %w", u.Pool.Hex(), u.FeeBps, ErrMalformedUpdate)
	}
	if u.Kind == PoolStableSwap && u.Amp <= 0 {
		return fmt.Errorf("pool update %s: stable pool without amplification: %w", u.Pool.Hex(), ErrMalformedUpdate)
	}
	if u.Token0.Chain != u.Chain || u.Token1.Chain != u.Chain {
		return fmt.Errorf("pool update %s: token chain mismatch: %w", u.Pool.Hex(), ErrMalformedUpdate)
	}
	return nil
}
