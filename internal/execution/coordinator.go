// Package execution coordinates at-most-once, concurrency-bounded
// submission of opportunities to the chain. Each attempt runs a strict state
// machine (Pending -> Simulated -> Submitted -> terminal) behind a
// per-fingerprint single-flight lock and a global concurrency semaphore.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/hulrap/TradingBot-sub007/internal/domain"
	"github.com/hulrap/TradingBot-sub007/internal/graph"
	"github.com/hulrap/TradingBot-sub007/internal/oppcache"
	"github.com/hulrap/TradingBot-sub007/internal/telemetry"
)

// Config holds the coordinator parameters.
type Config struct {
	// MaxStaleness bounds opportunity age at Pending validation.
	MaxStaleness time.Duration
	// InclusionDeadline bounds the wait after submission.
	InclusionDeadline time.Duration
	// MaxConcurrentAttempts bounds simultaneously simulated/submitted
	// attempts, reflecting capital and nonce constraints.
	MaxConcurrentAttempts int64
	// Retry is the shared policy for transient network errors.
	Retry RetryPolicy
	// SlippageMarginBps derives the bundle's minimum acceptable output.
	SlippageMarginBps float64
	// PollInterval is the cadence of the candidate pull loop.
	PollInterval time.Duration
	// CandidateBatch is how many cache candidates each pull considers.
	CandidateBatch int
	// DistributedLockTTL applies when a distributed lock manager guards
	// multi-instance deployments.
	DistributedLockTTL time.Duration
}

// Coordinator drives execution attempts from the opportunity cache through
// the network access layer.
type Coordinator struct {
	cfg     Config
	graph   *graph.Graph
	cache   *oppcache.Cache
	network domain.NetworkAccess
	risk    *RiskContext
	// locks optionally adds a distributed guard on top of the in-process
	// single-flight lock; the local lock remains authoritative.
	locks domain.LockManager
	stats *telemetry.Collector

	flight *singleFlight
	sem    *semaphore.Weighted

	// onTerminal receives every terminal attempt exactly once.
	onTerminal func(domain.ExecutionAttempt)

	now    func() time.Time
	wg     sync.WaitGroup
	logger *slog.Logger
}

// New creates a coordinator. stats and onTerminal may be nil; locks may be
// nil for single-instance deployments.
func New(
	cfg Config,
	g *graph.Graph,
	cache *oppcache.Cache,
	network domain.NetworkAccess,
	risk *RiskContext,
	locks domain.LockManager,
	stats *telemetry.Collector,
	onTerminal func(domain.ExecutionAttempt),
	logger *slog.Logger,
) *Coordinator {
	if cfg.MaxConcurrentAttempts <= 0 {
		cfg.MaxConcurrentAttempts = 1
	}
	if cfg.CandidateBatch <= 0 {
		cfg.CandidateBatch = 16
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	if cfg.DistributedLockTTL <= 0 {
		cfg.DistributedLockTTL = 30 * time.Second
	}
	return &Coordinator{
		cfg:        cfg,
		graph:      g,
		cache:      cache,
		network:    network,
		risk:       risk,
		locks:      locks,
		stats:      stats,
		flight:     newSingleFlight(),
		sem:        semaphore.NewWeighted(cfg.MaxConcurrentAttempts),
		onTerminal: onTerminal,
		now:        time.Now,
		logger:     logger.With(slog.String("component", "execution_coordinator")),
	}
}

// Run pulls the best candidates from the cache and executes them until the
// context is cancelled. In-flight attempts are waited for on shutdown.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info("execution coordinator started",
		slog.Int64("max_concurrent", c.cfg.MaxConcurrentAttempts),
	)
	defer c.logger.Info("execution coordinator stopped")

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			c.dispatch(ctx)
		}
	}
}

// dispatch starts an execution for every candidate not already in flight.
func (c *Coordinator) dispatch(ctx context.Context) {
	for _, opp := range c.cache.BestCandidates(c.cfg.CandidateBatch) {
		if c.flight.Held(opp.Fingerprint) {
			continue
		}
		opp := opp
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if _, err := c.Execute(ctx, opp); err != nil && !errors.Is(err, domain.ErrInFlight) && !errors.Is(err, context.Canceled) {
				c.logger.Warn("execution failed",
					slog.String("fingerprint", string(opp.Fingerprint)),
					slog.String("error", err.Error()),
				)
			}
		}()
	}
}

// Execute runs one attempt for the opportunity through the full state
// machine and returns the terminal attempt. A fingerprint already in flight
// returns domain.ErrInFlight; that is an expected outcome of the
// single-flight check, not a failure.
func (c *Coordinator) Execute(ctx context.Context, opp domain.Opportunity) (domain.ExecutionAttempt, error) {
	release, err := c.flight.TryAcquire(opp.Fingerprint)
	if err != nil {
		return domain.ExecutionAttempt{}, err
	}
	// The lock must drop on every exit path, cancellation and panics
	// included.
	defer release()

	if c.locks != nil {
		unlock, err := c.locks.Acquire(ctx, "exec:"+string(opp.Fingerprint), c.cfg.DistributedLockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return domain.ExecutionAttempt{}, domain.ErrInFlight
			}
			return domain.ExecutionAttempt{}, fmt.Errorf("execution: distributed lock: %w", err)
		}
		defer unlock()
	}

	attempt := domain.ExecutionAttempt{
		ID:          uuid.New().String(),
		Opportunity: opp,
		State:       domain.AttemptPending,
		CreatedAt:   c.now(),
	}
	if c.stats != nil {
		c.stats.AttemptStarted()
	}

	// Pending: re-validate against the live graph; the opportunity can
	// have gone stale between cache read and this point.
	if reason, detail := c.validate(opp); reason != "" {
		return c.reject(attempt, reason, detail), nil
	}

	// The semaphore bounds simulated/submitted attempts globally. Waiting
	// here can outlast the opportunity, so freshness is re-checked after.
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return c.reject(attempt, domain.RejectStaleSource, "cancelled before simulation"), nil
	}
	defer c.sem.Release(1)

	if !c.graph.RouteFresh(opp) {
		return c.reject(attempt, domain.RejectStaleSource, "graph moved while awaiting execution slot"), nil
	}

	return c.execute(ctx, attempt)
}

// validate performs the Pending checks: staleness (invariant: snapshot
// versions must match the live graph), profit floor, and risk limits.
func (c *Coordinator) validate(opp domain.Opportunity) (domain.RejectReason, string) {
	if age := opp.Age(c.now()); age > c.cfg.MaxStaleness {
		return domain.RejectStaleSource, fmt.Sprintf("opportunity is %s old", age.Truncate(time.Millisecond))
	}
	if !c.graph.RouteFresh(opp) {
		return domain.RejectStaleSource, "snapshot versions no longer match live graph"
	}
	if opp.NetProfit <= 0 {
		return domain.RejectNegativeProfit, fmt.Sprintf("net profit %g", opp.NetProfit)
	}
	if err := c.risk.Allow(opp); err != nil {
		return domain.RejectRiskLimit, err.Error()
	}
	return "", ""
}

// execute drives Simulated -> Submitted -> terminal.
func (c *Coordinator) execute(ctx context.Context, attempt domain.ExecutionAttempt) (domain.ExecutionAttempt, error) {
	opp := attempt.Opportunity
	bundle := domain.TradeBundle{
		Chain:       opp.Route.Chain,
		Route:       opp.Route,
		InputAmount: opp.InputAmount,
		MinOutput:   opp.GrossOutput * (1 - c.cfg.SlippageMarginBps/10000),
		Deadline:    c.now().Add(c.cfg.InclusionDeadline),
	}

	// Simulated: dry run against current chain state.
	var sim domain.SimulationResult
	err := c.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		var callErr error
		sim, callErr = c.network.Simulate(ctx, bundle)
		attempt.AttemptCount++
		return callErr
	})
	if err != nil {
		return c.reject(attempt, domain.RejectSimulationFailed, err.Error()), nil
	}
	if !sim.Ok {
		// A failed simulation never retries the same opportunity
		// instance; rediscovery must produce a fresh one.
		return c.reject(attempt, domain.RejectSimulationFailed, sim.Reason), nil
	}
	if err := attempt.Transition(domain.AttemptSimulated, c.now()); err != nil {
		return attempt, err
	}
	bundle.GasLimit = sim.GasEstimate

	// Submitted: hand the bundle to the network layer.
	var handle domain.SubmissionHandle
	err = c.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		var callErr error
		handle, callErr = c.network.Submit(ctx, bundle)
		attempt.AttemptCount++
		return callErr
	})
	if err != nil {
		return c.reject(attempt, domain.RejectNetworkTimeout, fmt.Sprintf("submit: %v", err)), nil
	}
	if err := attempt.Transition(domain.AttemptSubmitted, c.now()); err != nil {
		return attempt, err
	}
	attempt.TxHash = handle.TxHash

	// Bounded wait for inclusion. On expiry the attempt is never
	// resubmitted; rediscovery decides whether the opportunity remains.
	deadline := attempt.SubmittedAt.Add(c.cfg.InclusionDeadline)
	waitCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	var incl domain.InclusionResult
	err = c.cfg.Retry.Do(waitCtx, func(ctx context.Context) error {
		var callErr error
		incl, callErr = c.network.AwaitInclusion(ctx, handle, deadline)
		return callErr
	})
	switch {
	case err != nil || !incl.Included:
		if terr := attempt.Transition(domain.AttemptExpired, c.now()); terr != nil {
			return attempt, terr
		}
		attempt.FailureReason = domain.RejectNetworkTimeout
		if err != nil {
			attempt.FailureDetail = fmt.Sprintf("inclusion wait: %v", err)
		} else {
			attempt.FailureDetail = "not included before deadline"
		}
	case incl.Reverted:
		if terr := attempt.Transition(domain.AttemptReverted, c.now()); terr != nil {
			return attempt, terr
		}
		attempt.GasUsed = incl.GasUsed
		attempt.RealizedProfit = -opp.GasCost
		attempt.FailureDetail = "transaction reverted"
	default:
		if terr := attempt.Transition(domain.AttemptConfirmed, c.now()); terr != nil {
			return attempt, terr
		}
		attempt.GasUsed = incl.GasUsed
		attempt.RealizedProfit = opp.NetProfit
	}

	c.finish(attempt)
	return attempt, nil
}

// reject terminates the attempt from Pending with a machine-readable
// reason.
func (c *Coordinator) reject(attempt domain.ExecutionAttempt, reason domain.RejectReason, detail string) domain.ExecutionAttempt {
	if err := attempt.Transition(domain.AttemptRejected, c.now()); err != nil {
		// Only reachable from a non-terminal state; log and keep going.
		c.logger.Error("reject on terminal attempt", slog.String("attempt_id", attempt.ID))
		return attempt
	}
	attempt.FailureReason = reason
	attempt.FailureDetail = detail
	c.finish(attempt)
	return attempt
}

// finish handles every terminal attempt exactly once: feed risk accounting,
// drop the consumed cache entry, and emit the record.
func (c *Coordinator) finish(attempt domain.ExecutionAttempt) {
	c.risk.RecordOutcome(attempt)
	c.cache.Invalidate(attempt.Opportunity.Fingerprint)
	if c.stats != nil {
		c.stats.AttemptFinished(attempt.State)
	}

	level := slog.LevelInfo
	if attempt.State != domain.AttemptConfirmed {
		level = slog.LevelWarn
	}
	c.logger.Log(context.Background(), level, "attempt terminal",
		slog.String("attempt_id", attempt.ID),
		slog.String("fingerprint", string(attempt.Opportunity.Fingerprint)),
		slog.String("state", string(attempt.State)),
		slog.String("reason", string(attempt.FailureReason)),
		slog.Float64("net_profit", attempt.Opportunity.NetProfit),
	)
	if c.onTerminal != nil {
		c.onTerminal(attempt)
	}
}

// InFlight returns the number of fingerprints currently claimed.
func (c *Coordinator) InFlight() int {
	return c.flight.Count()
}
