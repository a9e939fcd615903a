package network

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/hulrap/TradingBot-sub007/internal/domain"
)

const (
	// endpointCooldown is how long a failing endpoint sits out of
	// rotation.
	endpointCooldown = 30 * time.Second
	// maxConsecutiveFailures trips the cooldown.
	maxConsecutiveFailures = 3
)

type endpoint struct {
	url      string
	client   *ethclient.Client
	failures int
	downTill time.Time
}

// endpointPool rotates a chain's RPC endpoints round-robin, dialing lazily
// and benching endpoints that fail repeatedly. All failures still surface to
// the caller; the pool only decides who serves the next request.
type endpointPool struct {
	chain  domain.ChainID
	dial   func(ctx context.Context, url string) (*ethclient.Client, error)
	logger *slog.Logger

	mu        sync.Mutex
	endpoints []*endpoint
	next      int
	now       func() time.Time
}

func newEndpointPool(chain domain.ChainID, urls []string, logger *slog.Logger) (*endpointPool, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("network: chain %d: %w", chain, domain.ErrNoEndpoints)
	}
	p := &endpointPool{
		chain:  chain,
		dial:   ethclient.DialContext,
		now:    time.Now,
		logger: logger.With(slog.String("component", "rpc_pool"), slog.Uint64("chain", uint64(chain))),
	}
	for _, url := range urls {
		p.endpoints = append(p.endpoints, &endpoint{url: url})
	}
	return p, nil
}

// pick returns the next healthy endpoint, dialing it if needed. When every
// endpoint is benched the least recently benched one is pressed back into
// service rather than failing outright.
func (p *endpointPool) pick(ctx context.Context) (*endpoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	var fallback *endpoint
	for i := 0; i < len(p.endpoints); i++ {
		e := p.endpoints[(p.next+i)%len(p.endpoints)]
		if now.Before(e.downTill) {
			if fallback == nil || e.downTill.Before(fallback.downTill) {
				fallback = e
			}
			continue
		}
		p.next = (p.next + i + 1) % len(p.endpoints)
		return p.connectLocked(ctx, e)
	}
	if fallback != nil {
		return p.connectLocked(ctx, fallback)
	}
	return nil, fmt.Errorf("network: chain %d: %w", p.chain, domain.ErrNoEndpoints)
}

func (p *endpointPool) connectLocked(ctx context.Context, e *endpoint) (*endpoint, error) {
	if e.client != nil {
		return e, nil
	}
	client, err := p.dial(ctx, e.url)
	if err != nil {
		p.markLocked(e)
		return nil, classify("dial "+e.url, err)
	}
	e.client = client
	p.logger.Info("rpc endpoint connected", slog.String("url", e.url))
	return e, nil
}

// report feeds the request outcome back into health accounting. Only
// transient failures count against an endpoint; a revert says nothing about
// the endpoint's health.
func (p *endpointPool) report(e *endpoint, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err == nil || !domain.IsTransientNetworkError(err) {
		e.failures = 0
		return
	}
	p.markLocked(e)
}

func (p *endpointPool) markLocked(e *endpoint) {
	e.failures++
	if e.failures >= maxConsecutiveFailures {
		e.downTill = p.now().Add(endpointCooldown)
		e.failures = 0
		if e.client != nil {
			e.client.Close()
			e.client = nil
		}
		p.logger.Warn("rpc endpoint benched",
			slog.String("url", e.url),
			slog.Duration("cooldown", endpointCooldown),
		)
	}
}

func (p *endpointPool) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.endpoints {
		if e.client != nil {
			e.client.Close()
			e.client = nil
		}
	}
}
