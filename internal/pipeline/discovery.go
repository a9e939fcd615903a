// Package pipeline connects the engine's stages: liquidity updates trigger
// route search and evaluation, profitable opportunities land in the cache,
// and terminal attempts flow out to persistence and cold storage.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hulrap/TradingBot-sub007/internal/domain"
	"github.com/hulrap/TradingBot-sub007/internal/eval"
	"github.com/hulrap/TradingBot-sub007/internal/oppcache"
	"github.com/hulrap/TradingBot-sub007/internal/search"
	"github.com/hulrap/TradingBot-sub007/internal/telemetry"
)

// defaultDebounce batches bursts of update notifications into one search
// pass per origin token.
const defaultDebounce = 25 * time.Millisecond

// Discovery runs the search-evaluate-cache loop. Feed ingestors notify it
// of tokens whose edges changed; each sweep searches from every dirty
// origin, evaluates the ranked routes, and upserts profitable opportunities.
type Discovery struct {
	search    *search.Engine
	evaluator *eval.Evaluator
	cache     *oppcache.Cache
	stats     *telemetry.Collector
	publisher *telemetry.Publisher

	maxHops   int
	topK      int
	inputHint float64
	debounce  time.Duration

	notify chan domain.TokenKey
	logger *slog.Logger
}

// DiscoveryConfig carries the per-sweep search parameters.
type DiscoveryConfig struct {
	MaxHops int
	TopK    int
	// InputHint seeds the evaluator's input optimization.
	InputHint float64
	// Debounce batches notification bursts; zero uses the default.
	Debounce time.Duration
	// NotifyBuffer bounds the pending-token queue.
	NotifyBuffer int
}

func NewDiscovery(
	cfg DiscoveryConfig,
	searchEngine *search.Engine,
	evaluator *eval.Evaluator,
	cache *oppcache.Cache,
	stats *telemetry.Collector,
	publisher *telemetry.Publisher,
	logger *slog.Logger,
) *Discovery {
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	if cfg.NotifyBuffer <= 0 {
		cfg.NotifyBuffer = 4096
	}
	return &Discovery{
		search:    searchEngine,
		evaluator: evaluator,
		cache:     cache,
		stats:     stats,
		publisher: publisher,
		maxHops:   cfg.MaxHops,
		topK:      cfg.TopK,
		inputHint: cfg.InputHint,
		debounce:  cfg.Debounce,
		notify:    make(chan domain.TokenKey, cfg.NotifyBuffer),
		logger:    logger.With(slog.String("component", "discovery")),
	}
}

// Notify marks tokens dirty for the next sweep. Never blocks: when the
// queue is full the token is dropped, which is safe because a later update
// for the same pool re-notifies it.
func (d *Discovery) Notify(tokens []domain.TokenKey) {
	for _, token := range tokens {
		select {
		case d.notify <- token:
		default:
		}
	}
}

// Run sweeps dirty tokens until the context is cancelled.
func (d *Discovery) Run(ctx context.Context) error {
	d.logger.Info("discovery pipeline started",
		slog.Int("max_hops", d.maxHops),
		slog.Int("top_k", d.topK),
	)
	defer d.logger.Info("discovery pipeline stopped")

	for {
		dirty, err := d.collect(ctx)
		if err != nil {
			return err
		}
		for origin := range dirty {
			d.sweep(ctx, origin)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}

// collect blocks for the first dirty token, then drains the queue for one
// debounce window so a burst of updates becomes a single sweep per origin.
func (d *Discovery) collect(ctx context.Context) (map[domain.TokenKey]struct{}, error) {
	dirty := make(map[domain.TokenKey]struct{})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case token := <-d.notify:
		dirty[token] = struct{}{}
	}

	timer := time.NewTimer(d.debounce)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case token := <-d.notify:
			dirty[token] = struct{}{}
		case <-timer.C:
			return dirty, nil
		}
	}
}

// sweep searches from one origin and evaluates every ranked route.
func (d *Discovery) sweep(ctx context.Context, origin domain.TokenKey) {
	routes := d.search.Search(ctx, origin, d.maxHops, d.topK)
	d.stats.RoutesSearched(len(routes))

	for _, route := range routes {
		opp, err := d.evaluator.Evaluate(route, d.inputHint)
		if err != nil {
			var reject *eval.RejectError
			if errors.As(err, &reject) {
				d.stats.OpportunityRejected(reject.Reason)
				continue
			}
			d.logger.Warn("evaluation failed",
				slog.String("fingerprint", string(route.Fingerprint())),
				slog.String("error", err.Error()),
			)
			continue
		}

		if d.cache.Upsert(opp) {
			d.stats.OpportunityFound(opp.NetProfit)
			if d.publisher != nil {
				d.publisher.PublishOpportunity(ctx, opp)
			}
			d.logger.Debug("opportunity cached",
				slog.String("fingerprint", string(opp.Fingerprint)),
				slog.Float64("net_profit", opp.NetProfit),
				slog.Float64("confidence", opp.Confidence),
			)
		}
	}
}
