package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/hulrap/TradingBot-sub007/internal/domain"
	"github.com/hulrap/TradingBot-sub007/internal/eval"
	"github.com/hulrap/TradingBot-sub007/internal/execution"
	"github.com/hulrap/TradingBot-sub007/internal/feed"
	"github.com/hulrap/TradingBot-sub007/internal/graph"
	"github.com/hulrap/TradingBot-sub007/internal/network"
	"github.com/hulrap/TradingBot-sub007/internal/oppcache"
	"github.com/hulrap/TradingBot-sub007/internal/pipeline"
	"github.com/hulrap/TradingBot-sub007/internal/search"
	"github.com/hulrap/TradingBot-sub007/internal/telemetry"
)

// engine bundles the in-process core shared by every mode: the market graph,
// the discovery pipeline feeding the opportunity cache, and telemetry.
type engine struct {
	graph     *graph.Graph
	stats     *telemetry.Collector
	publisher *telemetry.Publisher
	cache     *oppcache.Cache
	discovery *pipeline.Discovery
	gas       *eval.GasModel
}

// buildEngine assembles the graph -> search -> eval -> cache core from the
// configuration. It starts nothing; the mode decides which loops run.
func (a *App) buildEngine(deps *Dependencies) *engine {
	g := graph.New(a.logger)
	stats := telemetry.NewCollector()
	publisher := telemetry.NewPublisher(
		stats, deps.StatsStore, deps.SignalBus,
		a.cfg.Telemetry.FlushInterval.Duration, a.logger,
	)

	native := make(map[domain.ChainID]domain.TokenKey, len(a.cfg.Chains))
	for _, ch := range a.cfg.Chains {
		if ch.NativeToken == "" {
			continue
		}
		id := domain.ChainID(ch.ChainID)
		native[id] = domain.TokenKey{Chain: id, Address: ch.NativeTokenAddress()}
	}
	// The gas config carries gwei; the model works in wei.
	gas := eval.NewGasModel(
		a.cfg.Gas.BaseGas, a.cfg.Gas.GasPerHop,
		a.cfg.Gas.FallbackPriceGwei*1e9, native,
	)

	searchEngine := search.New(g, search.Config{
		MaxHops:             a.cfg.Search.MaxHops,
		TopK:                a.cfg.Search.TopK,
		LiquidityFloorRatio: a.cfg.Search.LiquidityFloorRatio,
		FanoutLimit:         a.cfg.Search.FanoutLimit,
		ProbeAmount:         a.cfg.Search.ProbeAmount,
		Budget:              a.cfg.Search.Budget.Duration,
	}, a.logger)

	evaluator := eval.New(eval.Config{
		SlippageMarginBps:   a.cfg.Eval.SlippageMarginBps,
		LiquidityFloorRatio: a.cfg.Search.LiquidityFloorRatio,
		MaxStaleness:        a.cfg.Eval.MaxStaleness.Duration,
		MinInput:            a.cfg.Eval.MinInput,
		MaxInput:            a.cfg.Eval.MaxInput,
	}, gas, g, a.logger)

	cache := oppcache.New(a.cfg.Eval.MaxStaleness.Duration, a.cfg.Eval.MaxStaleness.Duration, a.logger)

	discovery := pipeline.NewDiscovery(pipeline.DiscoveryConfig{
		MaxHops:      a.cfg.Search.MaxHops,
		TopK:         a.cfg.Search.TopK,
		InputHint:    a.cfg.Eval.InputHint,
		Debounce:     a.cfg.Search.Debounce.Duration,
		NotifyBuffer: a.cfg.Search.NotifyBuffer,
	}, searchEngine, evaluator, cache, stats, publisher, a.logger)

	return &engine{
		graph:     g,
		stats:     stats,
		publisher: publisher,
		cache:     cache,
		discovery: discovery,
		gas:       gas,
	}
}

// startCore launches the loops every mode shares: cache expiry sweeps, the
// discovery pipeline, and telemetry flushing.
func (a *App) startCore(ctx context.Context, g *errgroup.Group, eng *engine) {
	g.Go(func() error { return eng.cache.Run(ctx) })
	g.Go(func() error { return eng.discovery.Run(ctx) })
	g.Go(func() error { return eng.publisher.Run(ctx) })
}

// startFeeds launches one liquidity feed and ingestor per configured chain.
func (a *App) startFeeds(ctx context.Context, g *errgroup.Group, eng *engine) {
	for _, ch := range a.cfg.Chains {
		f := feed.NewLiquidityFeed(ch.WSURL, domain.ChainID(ch.ChainID), ch.Pools, 0, a.logger)
		in := feed.NewIngestor(eng.graph, f.Updates(), eng.stats, eng.discovery.Notify, a.logger)
		g.Go(func() error { return f.Run(ctx) })
		g.Go(func() error { return in.Run(ctx) })
	}
}

// DiscoverMode runs discovery only: live feeds keep the graph current and
// profitable cycles land in the cache and on the signal bus, but nothing is
// ever submitted to a chain.
func (a *App) DiscoverMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting discover mode")

	g, ctx := errgroup.WithContext(ctx)
	eng := a.buildEngine(deps)
	a.startCore(ctx, g, eng)
	a.startFeeds(ctx, g, eng)

	return g.Wait()
}

// TradeMode runs the full loop: discovery plus the execution coordinator
// submitting cached opportunities through the network layer.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	// The risk context halts the whole mode when the daily loss limit trips.
	ctx, halt := context.WithCancel(ctx)
	defer halt()

	g, ctx := errgroup.WithContext(ctx)
	eng := a.buildEngine(deps)

	signer, err := network.NewLocalSigner(a.cfg.Signer.PrivateKey)
	if err != nil {
		return fmt.Errorf("trade mode: signer: %w", err)
	}

	endpoints := make(map[domain.ChainID][]string, len(a.cfg.Chains))
	executors := make(map[domain.ChainID]common.Address, len(a.cfg.Chains))
	chainIDs := make([]domain.ChainID, 0, len(a.cfg.Chains))
	for _, ch := range a.cfg.Chains {
		id := domain.ChainID(ch.ChainID)
		endpoints[id] = ch.RPCURLs
		executors[id] = ch.ExecutorAddress()
		chainIDs = append(chainIDs, id)
	}

	client, err := network.NewClient(network.Config{
		Endpoints:           endpoints,
		Executors:           executors,
		ReceiptPollInterval: a.cfg.Network.ReceiptPollInterval.Duration,
		RequestTimeout:      a.cfg.Network.RequestTimeout.Duration,
	}, signer, a.logger)
	if err != nil {
		return fmt.Errorf("trade mode: network: %w", err)
	}
	a.closers = append(a.closers, client.Close)

	poller := network.NewGasPricePoller(client, eng.gas, chainIDs, a.cfg.Gas.PollInterval.Duration, a.logger)
	g.Go(func() error { return poller.Run(ctx) })

	// Terminal attempts fan out to persistence, the archive, and the bus.
	var archiver *pipeline.Archiver
	if a.cfg.Archive.Enabled && deps.BlobWriter != nil {
		archiver = pipeline.NewArchiver(
			deps.BlobWriter,
			a.cfg.Archive.BatchSize,
			a.cfg.Archive.FlushInterval.Duration,
			a.logger,
		)
		g.Go(func() error { return archiver.Run(ctx) })
	}
	onTerminal := func(attempt domain.ExecutionAttempt) {
		storeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if deps.AttemptStore != nil {
			if err := deps.AttemptStore.Create(storeCtx, attempt); err != nil {
				a.logger.Warn("attempt persist failed",
					slog.String("attempt_id", attempt.ID),
					slog.String("error", err.Error()),
				)
			}
		}
		if archiver != nil {
			archiver.Record(attempt)
		}
		eng.publisher.PublishAttempt(storeCtx, attempt)
	}

	risk := execution.NewRiskContext(a.cfg.Risk.MaxNotional, a.cfg.Risk.MaxDailyLoss, halt)

	var locks domain.LockManager
	if a.cfg.Execution.DistributedLockTTL.Duration > 0 {
		locks = deps.LockManager
	}

	coord := execution.New(execution.Config{
		MaxStaleness:          a.cfg.Eval.MaxStaleness.Duration,
		InclusionDeadline:     a.cfg.Execution.InclusionDeadline.Duration,
		MaxConcurrentAttempts: a.cfg.Execution.MaxConcurrentAttempts,
		Retry: execution.RetryPolicy{
			Budget:    a.cfg.Execution.RetryBudget,
			BaseDelay: a.cfg.Execution.RetryBaseDelay.Duration,
			MaxDelay:  a.cfg.Execution.RetryMaxDelay.Duration,
		},
		SlippageMarginBps:  a.cfg.Eval.SlippageMarginBps,
		PollInterval:       a.cfg.Execution.PollInterval.Duration,
		CandidateBatch:     a.cfg.Execution.CandidateBatch,
		DistributedLockTTL: a.cfg.Execution.DistributedLockTTL.Duration,
	}, eng.graph, eng.cache, client, risk, locks, eng.stats, onTerminal, a.logger)
	g.Go(func() error { return coord.Run(ctx) })

	a.startCore(ctx, g, eng)
	a.startFeeds(ctx, g, eng)

	return g.Wait()
}

// ReplayMode feeds a recorded update stream through the discovery pipeline.
// The mode ends when the stream is exhausted.
func (a *App) ReplayMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting replay mode",
		slog.String("source", a.cfg.Replay.Source),
	)

	src, err := a.openReplaySource(ctx, deps)
	if err != nil {
		return fmt.Errorf("replay mode: %w", err)
	}
	defer src.Close()

	// Once ingestion drains the stream the remaining loops are cancelled.
	ctx, done := context.WithCancel(ctx)
	defer done()

	g, ctx := errgroup.WithContext(ctx)
	eng := a.buildEngine(deps)

	replay := pipeline.NewReplay(src, a.cfg.Replay.Speed, a.cfg.Replay.Buffer, a.logger)
	in := feed.NewIngestor(eng.graph, replay.Updates(), eng.stats, eng.discovery.Notify, a.logger)

	g.Go(func() error { return replay.Run(ctx) })
	g.Go(func() error {
		defer done()
		return in.Run(ctx)
	})
	a.startCore(ctx, g, eng)

	return g.Wait()
}

// openReplaySource resolves the configured recorded stream to a reader.
func (a *App) openReplaySource(ctx context.Context, deps *Dependencies) (io.ReadCloser, error) {
	switch a.cfg.Replay.Source {
	case "s3":
		if deps.BlobReader == nil {
			return nil, fmt.Errorf("s3 replay source requires s3 to be enabled")
		}
		return deps.BlobReader.Get(ctx, a.cfg.Replay.Key)
	default:
		return os.Open(a.cfg.Replay.Path)
	}
}
