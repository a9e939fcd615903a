package feed

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hulrap/TradingBot-sub007/internal/domain"
	"github.com/hulrap/TradingBot-sub007/internal/graph"
	"github.com/hulrap/TradingBot-sub007/internal/telemetry"
)

// Ingestor drains a feed's update stream into the market graph and notifies
// the discovery pipeline of the tokens whose edges changed. Rejected updates
// (malformed or non-monotonic) are counted and dropped without touching the
// graph.
type Ingestor struct {
	graph   *graph.Graph
	updates <-chan domain.PoolUpdate
	stats   *telemetry.Collector
	// onApplied receives the pair of tokens whose adjacency changed.
	onApplied func(tokens []domain.TokenKey)
	logger    *slog.Logger
}

func NewIngestor(g *graph.Graph, updates <-chan domain.PoolUpdate, stats *telemetry.Collector, onApplied func(tokens []domain.TokenKey), logger *slog.Logger) *Ingestor {
	return &Ingestor{
		graph:     g,
		updates:   updates,
		stats:     stats,
		onApplied: onApplied,
		logger:    logger.With(slog.String("component", "feed_ingestor")),
	}
}

// Run consumes until the context is cancelled or the update stream closes.
func (in *Ingestor) Run(ctx context.Context) error {
	in.logger.Info("feed ingestor started")
	defer in.logger.Info("feed ingestor stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-in.updates:
			if !ok {
				return nil
			}
			in.apply(update)
		}
	}
}

func (in *Ingestor) apply(update domain.PoolUpdate) {
	_, err := in.graph.ApplyUpdate(update)
	if err != nil {
		in.stats.UpdateRejected()
		level := slog.LevelWarn
		if errors.Is(err, domain.ErrStaleUpdate) {
			// Out-of-order delivery is routine on reconnect.
			level = slog.LevelDebug
		}
		in.logger.Log(context.Background(), level, "update dropped",
			slog.String("pool", update.Pool.Hex()),
			slog.Uint64("version", update.Version),
			slog.String("error", err.Error()),
		)
		return
	}
	in.stats.UpdateApplied()

	if in.onApplied != nil {
		in.onApplied([]domain.TokenKey{update.Token0.Key(), update.Token1.Key()})
	}
}
