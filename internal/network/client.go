// Package network is the engine's only path to the chain: a pooled,
// health-checked RPC access layer implementing simulation, submission,
// inclusion polling, and gas price queries. Everything above it sees
// domain.NetworkAccess and error transience classification, nothing else.
package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/hulrap/TradingBot-sub007/internal/domain"
)

// defaultGasLimit backs submissions whose simulation produced no estimate.
const defaultGasLimit = 900_000

// Config holds the per-chain wiring for the access layer.
type Config struct {
	// Endpoints lists RPC URLs per chain, tried round-robin.
	Endpoints map[domain.ChainID][]string
	// Executors maps each chain to its route executor contract.
	Executors map[domain.ChainID]common.Address
	// ReceiptPollInterval is the cadence of inclusion polling.
	ReceiptPollInterval time.Duration
	// RequestTimeout bounds each individual RPC call.
	RequestTimeout time.Duration
}

// Client implements domain.NetworkAccess over pooled ethclient connections.
type Client struct {
	cfg    Config
	pools  map[domain.ChainID]*endpointPool
	signer TxSigner
	enc    *routeEncoder
	logger *slog.Logger
}

var _ domain.NetworkAccess = (*Client)(nil)

// NewClient builds the access layer. Every chain named in Executors must
// have at least one endpoint.
func NewClient(cfg Config, signer TxSigner, logger *slog.Logger) (*Client, error) {
	if cfg.ReceiptPollInterval <= 0 {
		cfg.ReceiptPollInterval = 500 * time.Millisecond
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	enc, err := newRouteEncoder()
	if err != nil {
		return nil, err
	}

	pools := make(map[domain.ChainID]*endpointPool, len(cfg.Endpoints))
	for chain, urls := range cfg.Endpoints {
		pool, err := newEndpointPool(chain, urls, logger)
		if err != nil {
			return nil, err
		}
		pools[chain] = pool
	}
	for chain := range cfg.Executors {
		if _, ok := pools[chain]; !ok {
			return nil, fmt.Errorf("network: chain %d has an executor but no endpoints: %w", chain, domain.ErrNoEndpoints)
		}
	}

	return &Client{
		cfg:    cfg,
		pools:  pools,
		signer: signer,
		enc:    enc,
		logger: logger.With(slog.String("component", "network_client")),
	}, nil
}

// Simulate dry-runs the bundle with eth_call against the executor contract
// and estimates its gas. A revert is a simulation outcome, not an error.
func (c *Client) Simulate(ctx context.Context, bundle domain.TradeBundle) (domain.SimulationResult, error) {
	ep, executor, err := c.route(ctx, bundle.Chain)
	if err != nil {
		return domain.SimulationResult{}, err
	}

	data, err := c.enc.EncodeExecute(bundle)
	if err != nil {
		return domain.SimulationResult{}, err
	}
	msg := ethereum.CallMsg{
		From: c.signer.Address(),
		To:   &executor,
		Data: data,
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	ret, err := ep.client.CallContract(ctx, msg, nil)
	if err != nil {
		if isRevert(err) {
			c.pools[bundle.Chain].report(ep, nil)
			return domain.SimulationResult{Ok: false, Reason: err.Error()}, nil
		}
		cerr := classify("simulate", err)
		c.pools[bundle.Chain].report(ep, cerr)
		return domain.SimulationResult{}, cerr
	}

	gas, err := ep.client.EstimateGas(ctx, msg)
	if err != nil {
		if isRevert(err) {
			c.pools[bundle.Chain].report(ep, nil)
			return domain.SimulationResult{Ok: false, Reason: err.Error()}, nil
		}
		cerr := classify("estimate gas", err)
		c.pools[bundle.Chain].report(ep, cerr)
		return domain.SimulationResult{}, cerr
	}
	c.pools[bundle.Chain].report(ep, nil)

	output, err := c.enc.DecodeOutput(bundle, ret)
	if err != nil {
		return domain.SimulationResult{}, err
	}
	return domain.SimulationResult{
		Ok:             true,
		ExpectedOutput: output,
		GasEstimate:    gas,
	}, nil
}

// Submit signs and broadcasts the bundle transaction.
func (c *Client) Submit(ctx context.Context, bundle domain.TradeBundle) (domain.SubmissionHandle, error) {
	ep, executor, err := c.route(ctx, bundle.Chain)
	if err != nil {
		return domain.SubmissionHandle{}, err
	}

	data, err := c.enc.EncodeExecute(bundle)
	if err != nil {
		return domain.SubmissionHandle{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	nonce, err := ep.client.PendingNonceAt(ctx, c.signer.Address())
	if err != nil {
		cerr := classify("pending nonce", err)
		c.pools[bundle.Chain].report(ep, cerr)
		return domain.SubmissionHandle{}, cerr
	}
	gasPrice, err := ep.client.SuggestGasPrice(ctx)
	if err != nil {
		cerr := classify("suggest gas price", err)
		c.pools[bundle.Chain].report(ep, cerr)
		return domain.SubmissionHandle{}, cerr
	}

	gasLimit := bundle.GasLimit
	if gasLimit == 0 {
		gasLimit = defaultGasLimit
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &executor,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := c.signer.SignTx(bundle.Chain, tx)
	if err != nil {
		return domain.SubmissionHandle{}, err
	}
	if err := ep.client.SendTransaction(ctx, signed); err != nil {
		cerr := classify("send transaction", err)
		c.pools[bundle.Chain].report(ep, cerr)
		return domain.SubmissionHandle{}, cerr
	}
	c.pools[bundle.Chain].report(ep, nil)

	handle := domain.SubmissionHandle{
		Chain:       bundle.Chain,
		TxHash:      signed.Hash(),
		SubmittedAt: time.Now(),
	}
	c.logger.Info("transaction submitted",
		slog.Uint64("chain", uint64(bundle.Chain)),
		slog.String("tx_hash", handle.TxHash.Hex()),
		slog.Uint64("nonce", nonce),
	)
	return handle, nil
}

// AwaitInclusion polls for the receipt until the deadline. A missed deadline
// is a non-inclusion result, not an error; the attempt is never resubmitted.
func (c *Client) AwaitInclusion(ctx context.Context, handle domain.SubmissionHandle, deadline time.Time) (domain.InclusionResult, error) {
	pool, ok := c.pools[handle.Chain]
	if !ok {
		return domain.InclusionResult{}, fmt.Errorf("network: chain %d: %w", handle.Chain, domain.ErrNoEndpoints)
	}

	ticker := time.NewTicker(c.cfg.ReceiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.pollReceipt(ctx, pool, handle.TxHash)
		switch {
		case err == nil && receipt != nil:
			return domain.InclusionResult{
				Included:    true,
				Reverted:    receipt.Status == types.ReceiptStatusFailed,
				BlockNumber: receipt.BlockNumber.Uint64(),
				GasUsed:     receipt.GasUsed,
			}, nil
		case err != nil && !domain.IsTransientNetworkError(err):
			return domain.InclusionResult{}, err
		}
		// Pending or transient poll failure: keep polling until the
		// deadline runs out.
		select {
		case <-ctx.Done():
			if time.Now().After(deadline) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return domain.InclusionResult{Included: false}, nil
			}
			return domain.InclusionResult{}, classify("await inclusion", ctx.Err())
		case <-ticker.C:
			if time.Now().After(deadline) {
				return domain.InclusionResult{Included: false}, nil
			}
		}
	}
}

// pollReceipt performs one receipt query. A nil receipt with nil error means
// the transaction is still pending.
func (c *Client) pollReceipt(ctx context.Context, pool *endpointPool, hash common.Hash) (*types.Receipt, error) {
	ep, err := pool.pick(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	receipt, err := ep.client.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		pool.report(ep, nil)
		return nil, nil
	}
	if err != nil {
		cerr := classify("transaction receipt", err)
		pool.report(ep, cerr)
		return nil, cerr
	}
	pool.report(ep, nil)
	return receipt, nil
}

// GasPrice returns the chain's suggested gas price in wei.
func (c *Client) GasPrice(ctx context.Context, chain domain.ChainID) (float64, error) {
	pool, ok := c.pools[chain]
	if !ok {
		return 0, fmt.Errorf("network: chain %d: %w", chain, domain.ErrNoEndpoints)
	}
	ep, err := pool.pick(ctx)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	price, err := ep.client.SuggestGasPrice(ctx)
	if err != nil {
		cerr := classify("suggest gas price", err)
		pool.report(ep, cerr)
		return 0, cerr
	}
	pool.report(ep, nil)

	wei, _ := new(big.Float).SetInt(price).Float64()
	return wei, nil
}

// route resolves the chain's endpoint and executor contract.
func (c *Client) route(ctx context.Context, chain domain.ChainID) (*endpoint, common.Address, error) {
	executor, ok := c.cfg.Executors[chain]
	if !ok {
		return nil, common.Address{}, fmt.Errorf("network: chain %d has no executor contract: %w", chain, domain.ErrNoEndpoints)
	}
	pool, ok := c.pools[chain]
	if !ok {
		return nil, common.Address{}, fmt.Errorf("network: chain %d: %w", chain, domain.ErrNoEndpoints)
	}
	ep, err := pool.pick(ctx)
	if err != nil {
		return nil, common.Address{}, err
	}
	return ep, executor, nil
}

// Close tears down every pooled connection.
func (c *Client) Close() {
	for _, pool := range c.pools {
		pool.close()
	}
}
