package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/hulrap/TradingBot-sub007/internal/domain"
)

const (
	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// LiquidityFeed runs one chain's pool-delta subscription and pushes decoded
// updates onto a bounded channel. When the consumer falls behind, the oldest
// queued update is dropped in favor of the newest: a newer delta for a pool
// always supersedes an older one.
type LiquidityFeed struct {
	wsURL   string
	chain   domain.ChainID
	pools   []string
	updates chan domain.PoolUpdate
	logger  *slog.Logger
}

// NewLiquidityFeed creates a feed for the chain. bufSize bounds the update
// queue between the socket and the ingestor.
func NewLiquidityFeed(wsURL string, chain domain.ChainID, pools []string, bufSize int, logger *slog.Logger) *LiquidityFeed {
	if bufSize <= 0 {
		bufSize = 1024
	}
	return &LiquidityFeed{
		wsURL:   wsURL,
		chain:   chain,
		pools:   pools,
		updates: make(chan domain.PoolUpdate, bufSize),
		logger: logger.With(
			slog.String("component", "liquidity_feed"),
			slog.Uint64("chain", uint64(chain)),
		),
	}
}

// Updates is the stream consumed by the ingestor. It closes when Run
// returns.
func (f *LiquidityFeed) Updates() <-chan domain.PoolUpdate {
	return f.updates
}

// Run connects and re-connects with exponential backoff until the context is
// cancelled.
func (f *LiquidityFeed) Run(ctx context.Context) error {
	defer close(f.updates)

	delay := reconnectDelay
	for {
		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("liquidity stream disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (f *LiquidityFeed) runConnection(ctx context.Context) error {
	client := NewWSClient(f.wsURL, f.chain, f.pools, f.push)
	defer client.Close()

	if err := client.Connect(ctx); err != nil {
		return err
	}
	f.logger.Info("liquidity stream subscribed", slog.Int("pools", len(f.pools)))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-client.Err():
		return err
	}
}

// push enqueues the update, evicting the oldest entry when the buffer is
// full.
func (f *LiquidityFeed) push(update domain.PoolUpdate) {
	for {
		select {
		case f.updates <- update:
			return
		default:
		}
		select {
		case dropped := <-f.updates:
			f.logger.Debug("update queue full, dropping oldest",
				slog.String("pool", dropped.Pool.Hex()),
				slog.Uint64("version", dropped.Version),
			)
		default:
		}
	}
}
