// Package search enumerates and ranks candidate multi-hop trading routes
// through the market graph. The search is deterministic for an identical
// graph snapshot: same inputs always yield the same ordered output, which is
// what makes incident postmortems reproducible.
package search

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/hulrap/TradingBot-sub007/internal/domain"
	"github.com/hulrap/TradingBot-sub007/internal/graph"
)

// Config holds the search parameters for one discovery cycle.
type Config struct {
	// MaxHops bounds route depth; practical values are 2-4.
	MaxHops int
	// TopK bounds how many ranked candidates a search returns.
	TopK int
	// LiquidityFloorRatio is the minimum edge depth relative to the amount
	// flowing through the edge; thinner edges are pruned.
	LiquidityFloorRatio float64
	// FanoutLimit caps expansion per node to the N deepest edges.
	FanoutLimit int
	// ProbeAmount is the candidate input size, in origin-token units, used
	// by the liquidity pruning.
	ProbeAmount float64
	// Budget bounds wall-clock time per search; zero means no budget.
	Budget time.Duration
}

// Engine performs bounded-depth cyclic route search over the market graph.
type Engine struct {
	graph  *graph.Graph
	cfg    Config
	logger *slog.Logger
}

// New creates a search engine over the given graph.
func New(g *graph.Graph, cfg Config, logger *slog.Logger) *Engine {
	if cfg.FanoutLimit <= 0 {
		cfg.FanoutLimit = 8
	}
	return &Engine{
		graph:  g,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "route_search")),
	}
}

// candidate is a complete cycle found during DFS together with its ranking
// keys.
type candidate struct {
	route     domain.Route
	cycleRate float64
	minDepth  float64
}

// searchState carries the mutable DFS state for one Search call. Neighbor
// lists are cached per node so the whole search observes one snapshot per
// node even while the live graph keeps moving.
type searchState struct {
	engine    *Engine
	ctx       context.Context
	deadline  time.Time
	origin    domain.TokenKey
	maxHops   int
	neighbors map[domain.TokenKey][]domain.PoolEdge
	onPath    map[domain.TokenKey]bool
	path      []domain.PoolEdge
	found     []candidate
	bestRate  float64
	maxRate   float64
	visited   int64
}

// Search returns up to topK routes that start and end at origin, ranked by
// estimated cycle rate. Ties prefer fewer hops, then higher minimum depth,
// then fingerprint order so the result is fully deterministic.
func (e *Engine) Search(ctx context.Context, origin domain.TokenKey, maxHops, topK int) []domain.Route {
	if maxHops <= 0 {
		maxHops = e.cfg.MaxHops
	}
	if topK <= 0 {
		topK = e.cfg.TopK
	}

	st := &searchState{
		engine:    e,
		ctx:       ctx,
		origin:    origin,
		maxHops:   maxHops,
		neighbors: make(map[domain.TokenKey][]domain.PoolEdge),
		onPath:    make(map[domain.TokenKey]bool),
		path:      make([]domain.PoolEdge, 0, maxHops),
	}
	if e.cfg.Budget > 0 {
		st.deadline = time.Now().Add(e.cfg.Budget)
	}

	st.onPath[origin] = true
	st.expand(origin, e.cfg.ProbeAmount, 1.0)

	sort.Slice(st.found, func(i, j int) bool {
		a, b := st.found[i], st.found[j]
		if a.cycleRate != b.cycleRate {
			return a.cycleRate > b.cycleRate
		}
		if a.route.Hops() != b.route.Hops() {
			return a.route.Hops() < b.route.Hops()
		}
		if a.minDepth != b.minDepth {
			return a.minDepth > b.minDepth
		}
		return a.route.Fingerprint() < b.route.Fingerprint()
	})
	if len(st.found) > topK {
		st.found = st.found[:topK]
	}

	out := make([]domain.Route, len(st.found))
	for i, c := range st.found {
		out[i] = c.route
	}
	e.logger.Debug("search finished",
		slog.Int64("nodes_visited", st.visited),
		slog.Int("candidates", len(out)),
		slog.Int("max_hops", maxHops),
	)
	return out
}

// maxSpotRate lazily loads the best single-edge rate in the graph; it is
// the optimistic per-hop bound used by the branch-and-bound pruning.
func (e *Engine) maxSpotRate(st *searchState) float64 {
	if st.maxRate == 0 {
		st.maxRate = e.graph.MaxSpotRate()
		if st.maxRate <= 0 {
			st.maxRate = 1
		}
	}
	return st.maxRate
}

// expand grows the current partial path from node. amount is the probe
// amount arriving at node; cumRate is the fee-adjusted product of spot rates
// along the path so far.
func (st *searchState) expand(node domain.TokenKey, amount, cumRate float64) {
	if st.expired() {
		return
	}
	st.visited++

	edges, ok := st.neighbors[node]
	if !ok {
		edges = st.engine.graph.Neighbors(node)
		if limit := st.engine.cfg.FanoutLimit; len(edges) > limit {
			edges = edges[:limit]
		}
		st.neighbors[node] = edges
	}

	for _, edge := range edges {
		rate := edge.SpotRate()
		if rate <= 0 {
			continue
		}

		// Pruning 1: liquidity floor. The edge must be able to absorb the
		// probe amount times the configured ratio.
		if floor := st.engine.cfg.LiquidityFloorRatio; floor > 0 && edge.Depth < amount*floor {
			continue
		}

		next := edge.Out.Key()
		nextRate := cumRate * rate
		depth := len(st.path) + 1

		if next == st.origin {
			if nextRate > 1.0 { // only keep cycles with a gross edge
				st.record(edge, nextRate)
				if nextRate > st.bestRate {
					st.bestRate = nextRate
				}
			}
			continue
		}

		if depth >= st.maxHops || st.onPath[next] {
			continue
		}

		// Pruning 2: branch and bound. Even with the best observed rate on
		// every remaining hop, a path that cannot beat the best cycle found
		// so far (or break even) is abandoned.
		remaining := st.maxHops - depth
		bound := nextRate
		max := st.engine.maxSpotRate(st)
		for i := 0; i < remaining; i++ {
			bound *= max
		}
		if bound <= 1.0 || (st.bestRate > 0 && bound <= st.bestRate) {
			continue
		}

		st.path = append(st.path, edge)
		st.onPath[next] = true
		st.expand(next, amount*rate, nextRate)
		st.onPath[next] = false
		st.path = st.path[:len(st.path)-1]
	}
}

// record turns the current path plus the closing edge into a candidate.
func (st *searchState) record(closing domain.PoolEdge, cycleRate float64) {
	edges := make([]domain.PoolEdge, 0, len(st.path)+1)
	edges = append(edges, st.path...)
	edges = append(edges, closing)

	route, err := domain.NewRoute(edges)
	if err != nil {
		// A discontinuous path is a search bug; log and drop.
		st.engine.logger.Error("search produced invalid route", slog.String("error", err.Error()))
		return
	}
	st.found = append(st.found, candidate{
		route:     route,
		cycleRate: cycleRate,
		minDepth:  route.MinDepthRatio(st.engine.cfg.ProbeAmount),
	})
}

func (st *searchState) expired() bool {
	select {
	case <-st.ctx.Done():
		return true
	default:
	}
	return !st.deadline.IsZero() && time.Now().After(st.deadline)
}
