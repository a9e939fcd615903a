package domain

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Fingerprint is the deterministic identity of a trading path: two
// structurally identical routes discovered independently collapse to the
// same fingerprint. It is the deduplication key in the opportunity cache and
// the single-flight key in the execution coordinator.
type Fingerprint string

// Route is an ordered sequence of directed pool edges forming a cycle (the
// output token of the last edge equals the input token of the first).
// Routes are immutable snapshots: the embedded edges are copies taken from a
// graph snapshot and are never mutated after construction.
type Route struct {
	Chain       ChainID
	Edges       []PoolEdge
	fingerprint Fingerprint
}

// NewRoute validates edge continuity and builds the route fingerprint.
// All edges must belong to the same chain; cross-chain routing is not
// supported.
func NewRoute(edges []PoolEdge) (Route, error) {
	if len(edges) == 0 {
		return Route{}, fmt.Errorf("route: no edges: %w", ErrInvalidRoute)
	}
	chain := edges[0].Chain
	for i, e := range edges {
		if e.Chain != chain {
			return Route{}, fmt.Errorf("route: edge %d on chain %d, expected %d: %w", i, e.Chain, chain, ErrMixedChains)
		}
		if i > 0 && edges[i-1].Out.Key() != e.In.Key() {
			return Route{}, fmt.Errorf("route: edge %d input %s does not follow %s: %w", i, e.In, edges[i-1].Out, ErrInvalidRoute)
		}
	}
	cp := make([]PoolEdge, len(edges))
	copy(cp, edges)
	r := Route{Chain: chain, Edges: cp}
	r.fingerprint = computeFingerprint(r)
	return r, nil
}

// computeFingerprint hashes (chain, input token, ordered edge identities).
// Edge IDs already encode pool address and swap direction.
func computeFingerprint(r Route) Fingerprint {
	h := sha256.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(r.Chain))
	h.Write(buf[:])
	h.Write(r.Edges[0].In.Address.Bytes())
	for _, e := range r.Edges {
		h.Write([]byte(e.ID))
		h.Write([]byte{0})
	}
	return Fingerprint(hex.EncodeToString(h.Sum(nil)[:16]))
}

// Fingerprint returns the route's deterministic identity.
func (r Route) Fingerprint() Fingerprint {
	return r.fingerprint
}

// Input returns the token the route starts from.
func (r Route) Input() TokenNode {
	return r.Edges[0].In
}

// Hops returns the number of swaps in the route.
func (r Route) Hops() int {
	return len(r.Edges)
}

// IsCycle reports whether the route ends on its input token.
func (r Route) IsCycle() bool {
	if len(r.Edges) == 0 {
		return false
	}
	return r.Edges[len(r.Edges)-1].Out.Key() == r.Edges[0].In.Key()
}

// Tokens returns the implied token sequence, input first. The slice has
// Hops()+1 entries; for a cycle the first and last entries are equal.
func (r Route) Tokens() []TokenNode {
	out := make([]TokenNode, 0, len(r.Edges)+1)
	out = append(out, r.Edges[0].In)
	for _, e := range r.Edges {
		out = append(out, e.Out)
	}
	return out
}

// MinDepthRatio returns, for a given input amount, the smallest ratio of
// edge depth to the amount flowing through that edge (approximated at spot
// rates). Ratios below 1 mean the trade exceeds estimated depth somewhere.
func (r Route) MinDepthRatio(inputAmount float64) float64 {
	if inputAmount <= 0 {
		return 0
	}
	minRatio := 0.0
	amount := inputAmount
	for i, e := range r.Edges {
		if e.Depth <= 0 {
			return 0
		}
		ratio := e.Depth / amount
		if i == 0 || ratio < minRatio {
			minRatio = ratio
		}
		amount *= e.SpotRate()
		if amount <= 0 {
			return 0
		}
	}
	return minRatio
}

// EdgeVersions returns the per-edge snapshot versions the route was built
// from, aligned with Edges.
func (r Route) EdgeVersions() []uint64 {
	out := make([]uint64, len(r.Edges))
	for i, e := range r.Edges {
		out[i] = e.Version
	}
	return out
}

func (r Route) String() string {
	if len(r.Edges) == 0 {
		return ""
	}
	s := r.Edges[0].In.String()
	for _, e := range r.Edges {
		s += "->" + e.Out.String()
	}
	return s
}
