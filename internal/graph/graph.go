// Package graph maintains the in-memory market graph: tokens as nodes and
// directed pool edges as weights, kept current from the liquidity feed.
// The graph is the only structure mutated by multiple producers; all
// mutation goes through ApplyUpdate.
package graph

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hulrap/TradingBot-sub007/internal/domain"
)

// Version is the graph's global monotonic version counter. Every applied
// update advances it; readers use it to tag snapshots.
type Version uint64

type poolKey struct {
	chain domain.ChainID
	pool  common.Address
}

// Graph is a directed weighted multigraph of tokens and pool edges. Reads
// take a shared lock and always observe fully applied updates, never a
// half-written edge pair.
type Graph struct {
	mu sync.RWMutex

	version     Version
	tokens      map[domain.TokenKey]domain.TokenNode
	edges       map[domain.EdgeID]domain.PoolEdge
	adjacency   map[domain.TokenKey][]domain.EdgeID
	poolVersion map[poolKey]uint64

	logger *slog.Logger
}

// New creates an empty market graph.
func New(logger *slog.Logger) *Graph {
	return &Graph{
		tokens:      make(map[domain.TokenKey]domain.TokenNode),
		edges:       make(map[domain.EdgeID]domain.PoolEdge),
		adjacency:   make(map[domain.TokenKey][]domain.EdgeID),
		poolVersion: make(map[poolKey]uint64),
		logger:      logger.With(slog.String("component", "market_graph")),
	}
}

// ApplyUpdate applies a normalized pool delta, expanding it into the two
// directed edges of the pool. Both edges become visible atomically. Updates
// with out-of-range values are rejected and never applied; updates whose
// version does not advance the pool's last applied version are rejected as
// stale, preserving per-pool ordering. The graph favors staleness over
// corruption.
func (g *Graph) ApplyUpdate(u domain.PoolUpdate) (Version, error) {
	if err := u.Validate(); err != nil {
		g.logger.Warn("rejected malformed pool update",
			slog.String("pool", u.Pool.Hex()),
			slog.Uint64("chain", uint64(u.Chain)),
			slog.String("error", err.Error()),
		)
		return 0, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	pk := poolKey{chain: u.Chain, pool: u.Pool}
	if last, ok := g.poolVersion[pk]; ok && u.Version <= last {
		return g.version, fmt.Errorf("graph: pool %s version %d <= %d: %w",
			u.Pool.Hex(), u.Version, last, domain.ErrStaleUpdate)
	}

	g.addTokenLocked(u.Token0)
	g.addTokenLocked(u.Token1)

	forward := directedEdge(u, true)
	reverse := directedEdge(u, false)
	g.upsertEdgeLocked(forward)
	g.upsertEdgeLocked(reverse)

	g.poolVersion[pk] = u.Version
	g.version++
	return g.version, nil
}

// directedEdge builds one directed edge from a full pool update.
func directedEdge(u domain.PoolUpdate, zeroForOne bool) domain.PoolEdge {
	in, out := u.Token0, u.Token1
	rin, rout := u.Reserve0, u.Reserve1
	if !zeroForOne {
		in, out = u.Token1, u.Token0
		rin, rout = u.Reserve1, u.Reserve0
	}
	return domain.PoolEdge{
		ID:         domain.MakeEdgeID(u.Chain, u.Pool, zeroForOne),
		Chain:      u.Chain,
		Pool:       u.Pool,
		Kind:       u.Kind,
		In:         in,
		Out:        out,
		ReserveIn:  rin,
		ReserveOut: rout,
		FeeBps:     u.FeeBps,
		Amp:        u.Amp,
		Depth:      rin,
		Version:    u.Version,
		UpdatedAt:  u.ObservedAt,
	}
}

func (g *Graph) addTokenLocked(t domain.TokenNode) {
	if _, ok := g.tokens[t.Key()]; !ok {
		g.tokens[t.Key()] = t
	}
}

func (g *Graph) upsertEdgeLocked(e domain.PoolEdge) {
	if _, ok := g.edges[e.ID]; !ok {
		key := e.In.Key()
		g.adjacency[key] = append(g.adjacency[key], e.ID)
		// Keep adjacency in a stable order so iteration is deterministic
		// for identical snapshots.
		sort.Slice(g.adjacency[key], func(i, j int) bool {
			return g.adjacency[key][i] < g.adjacency[key][j]
		})
	}
	g.edges[e.ID] = e
}

// Neighbors returns snapshot copies of the edges leaving the given token,
// sorted by descending depth estimate with edge ID as the deterministic
// tie-break.
func (g *Graph) Neighbors(token domain.TokenKey) []domain.PoolEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := g.adjacency[token]
	out := make([]domain.PoolEdge, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.edges[id])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Depth != out[j].Depth {
			return out[i].Depth > out[j].Depth
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Edge returns a snapshot copy of the edge with the given ID.
func (g *Graph) Edge(id domain.EdgeID) (domain.PoolEdge, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.edges[id]
	return e, ok
}

// CurrentVersion returns the live version of the edge, or 0 if the edge is
// unknown. Staleness checks compare this against an opportunity's snapshot
// versions without recomputing routes.
func (g *Graph) CurrentVersion(id domain.EdgeID) uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges[id].Version
}

// RouteFresh reports whether every edge of the route still carries the same
// version it had when the opportunity was evaluated.
func (g *Graph) RouteFresh(o domain.Opportunity) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for i, e := range o.Route.Edges {
		live, ok := g.edges[e.ID]
		if !ok || live.Version != o.SnapshotVersion(i) {
			return false
		}
	}
	return true
}

// GlobalVersion returns the graph-wide version counter.
func (g *Graph) GlobalVersion() Version {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.version
}

// Token returns the node registered under the given key.
func (g *Graph) Token(key domain.TokenKey) (domain.TokenNode, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.tokens[key]
	return t, ok
}

// TokenCount returns the number of registered tokens.
func (g *Graph) TokenCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.tokens)
}

// EdgeCount returns the number of directed edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// MaxSpotRate returns the best fee-adjusted marginal rate across all edges,
// used by the search as an optimistic per-hop bound.
func (g *Graph) MaxSpotRate() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	best := 0.0
	for _, e := range g.edges {
		if r := e.SpotRate(); r > best {
			best = r
		}
	}
	return best
}

// ConversionRate returns the marginal exchange rate from one token to
// another using the graph's own price data, trying a direct edge first and
// then a single intermediate hop. The boolean is false when no path with
// positive rates exists. The evaluator uses this to express gas costs in the
// route's input token without a second price oracle.
func (g *Graph) ConversionRate(from, to domain.TokenKey) (float64, bool) {
	if from == to {
		return 1, true
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if rate, ok := g.directRateLocked(from, to); ok {
		return rate, true
	}
	// One intermediate hop, best rate wins. Adjacency order is stable so
	// ties resolve deterministically.
	best := 0.0
	for _, id := range g.adjacency[from] {
		first := g.edges[id]
		r1 := first.SpotRate()
		if r1 <= 0 {
			continue
		}
		if r2, ok := g.directRateLocked(first.Out.Key(), to); ok {
			if rate := r1 * r2; rate > best {
				best = rate
			}
		}
	}
	if best > 0 {
		return best, true
	}
	return 0, false
}

func (g *Graph) directRateLocked(from, to domain.TokenKey) (float64, bool) {
	best := 0.0
	for _, id := range g.adjacency[from] {
		e := g.edges[id]
		if e.Out.Key() != to {
			continue
		}
		if r := e.SpotRate(); r > best {
			best = r
		}
	}
	if best > 0 {
		return best, true
	}
	return 0, false
}
