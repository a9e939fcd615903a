package network

import (
	"context"
	"log/slog"
	"time"

	"github.com/hulrap/TradingBot-sub007/internal/domain"
	"github.com/hulrap/TradingBot-sub007/internal/eval"
)

// GasPricePoller refreshes the evaluator's gas model from the network so
// evaluation never blocks on RPC. A failed refresh keeps the previous
// observation; the model falls back to its configured price until the first
// success.
type GasPricePoller struct {
	network  domain.NetworkAccess
	model    *eval.GasModel
	chains   []domain.ChainID
	interval time.Duration
	logger   *slog.Logger
}

func NewGasPricePoller(network domain.NetworkAccess, model *eval.GasModel, chains []domain.ChainID, interval time.Duration, logger *slog.Logger) *GasPricePoller {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &GasPricePoller{
		network:  network,
		model:    model,
		chains:   chains,
		interval: interval,
		logger:   logger.With(slog.String("component", "gas_price_poller")),
	}
}

// Run polls until the context is cancelled. One immediate refresh happens on
// start so the model is primed before the first evaluation cycle.
func (p *GasPricePoller) Run(ctx context.Context) error {
	p.refresh(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.refresh(ctx)
		}
	}
}

func (p *GasPricePoller) refresh(ctx context.Context) {
	for _, chain := range p.chains {
		price, err := p.network.GasPrice(ctx, chain)
		if err != nil {
			p.logger.Warn("gas price refresh failed",
				slog.Uint64("chain", uint64(chain)),
				slog.String("error", err.Error()),
			)
			continue
		}
		p.model.ObservePrice(chain, price)
	}
}
