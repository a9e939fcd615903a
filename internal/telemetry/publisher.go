package telemetry

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hulrap/TradingBot-sub007/internal/domain"
)

// Publisher flushes windowed snapshots to the stats store and the signal
// bus, and forwards individual engine events. Both sinks are optional:
// a nil store or bus is skipped.
type Publisher struct {
	collector *Collector
	store     domain.StatsStore
	bus       domain.SignalBus
	interval  time.Duration
	logger    *slog.Logger
}

func NewPublisher(collector *Collector, store domain.StatsStore, bus domain.SignalBus, interval time.Duration, logger *slog.Logger) *Publisher {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Publisher{
		collector: collector,
		store:     store,
		bus:       bus,
		interval:  interval,
		logger:    logger.With(slog.String("component", "telemetry_publisher")),
	}
}

// Run flushes one snapshot per interval until the context is cancelled,
// emitting a final flush on shutdown.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.flush(context.Background())
			return ctx.Err()
		case <-ticker.C:
			p.flush(ctx)
		}
	}
}

func (p *Publisher) flush(ctx context.Context) {
	snap := p.collector.Snapshot()

	if p.store != nil {
		if err := p.store.Insert(ctx, snap); err != nil {
			p.logger.Warn("stats insert failed", slog.String("error", err.Error()))
		}
	}
	if p.bus != nil {
		payload, err := json.Marshal(snap)
		if err == nil {
			if err := p.bus.Publish(ctx, domain.ChannelStats, payload); err != nil {
				p.logger.Warn("stats publish failed", slog.String("error", err.Error()))
			}
		}
	}

	p.logger.Info("stats window flushed",
		slog.Int64("updates_applied", snap.UpdatesApplied),
		slog.Int64("routes_searched", snap.RoutesSearched),
		slog.Int64("opps_found", snap.OppsFound),
		slog.Int64("attempts_confirmed", snap.AttemptsConfirmed),
		slog.Float64("profit_p50", snap.ProfitP50),
	)
}

// PublishOpportunity emits a discovery event on the signal bus.
func (p *Publisher) PublishOpportunity(ctx context.Context, opp domain.Opportunity) {
	if p.bus == nil {
		return
	}
	p.publishEvent(ctx, domain.ChannelOpportunities, domain.EngineEvent{
		Event:       "opportunity_found",
		Fingerprint: string(opp.Fingerprint),
		Route:       opp.Route.String(),
		Chain:       uint64(opp.Route.Chain),
		NetProfit:   opp.NetProfit,
		Confidence:  opp.Confidence,
		Timestamp:   opp.DiscoveredAt,
	})
}

// PublishAttempt emits a terminal attempt event on the signal bus.
func (p *Publisher) PublishAttempt(ctx context.Context, attempt domain.ExecutionAttempt) {
	if p.bus == nil {
		return
	}
	p.publishEvent(ctx, domain.ChannelAttempts, domain.EngineEvent{
		Event:       "attempt_terminal",
		Fingerprint: string(attempt.Opportunity.Fingerprint),
		Chain:       uint64(attempt.Opportunity.Route.Chain),
		AttemptID:   attempt.ID,
		State:       string(attempt.State),
		Reason:      string(attempt.FailureReason),
		NetProfit:   attempt.Opportunity.NetProfit,
		Timestamp:   attempt.CompletedAt,
	})
}

func (p *Publisher) publishEvent(ctx context.Context, channel string, event domain.EngineEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := p.bus.Publish(ctx, channel, payload); err != nil {
		p.logger.Debug("event publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
