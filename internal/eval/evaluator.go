package eval

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/hulrap/TradingBot-sub007/internal/domain"
)

// Config holds the evaluator parameters for one discovery cycle.
type Config struct {
	// SlippageMarginBps is the safety buffer subtracted from gross output
	// before profit is computed.
	SlippageMarginBps float64
	// LiquidityFloorRatio mirrors the search floor; routes whose depth
	// ratio falls below it are rejected rather than priced.
	LiquidityFloorRatio float64
	// MaxStaleness bounds how old an edge snapshot may be at evaluation.
	MaxStaleness time.Duration
	// MinInput and MaxInput bound the optimal-input search, in input-token
	// units.
	MinInput float64
	MaxInput float64
}

// RejectError reports why a route did not become an opportunity. Rejections
// are local outcomes, never failures of the discovery pipeline.
type RejectError struct {
	Reason domain.RejectReason
	Detail string
}

func (e *RejectError) Error() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

// RejectReasonOf extracts the reject reason from an evaluation error, or ""
// when the error is not a rejection.
func RejectReasonOf(err error) domain.RejectReason {
	var re *RejectError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ""
}

// Evaluator prices candidate routes against the market graph's snapshots.
type Evaluator struct {
	cfg    Config
	gas    *GasModel
	conv   Converter
	now    func() time.Time
	logger *slog.Logger
}

// New creates an evaluator. conv is typically the market graph itself.
func New(cfg Config, gas *GasModel, conv Converter, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		cfg:    cfg,
		gas:    gas,
		conv:   conv,
		now:    time.Now,
		logger: logger.With(slog.String("component", "evaluator")),
	}
}

// Evaluate prices the route and returns an Opportunity with the optimal
// input amount, or a *RejectError naming the reason. The computation order
// is fixed: exact hop-by-hop simulation, optimal-input search, gas and
// slippage deduction, confidence scoring.
func (ev *Evaluator) Evaluate(route domain.Route, inputHint float64) (domain.Opportunity, error) {
	now := ev.now()

	// Staleness gate before any pricing.
	for _, e := range route.Edges {
		if age := now.Sub(e.UpdatedAt); age > ev.cfg.MaxStaleness {
			return domain.Opportunity{}, &RejectError{
				Reason: domain.RejectStaleSource,
				Detail: fmt.Sprintf("edge %s is %s old", e.ID, age.Truncate(time.Millisecond)),
			}
		}
	}

	lo, hi := ev.inputBounds(route, inputHint)
	if hi <= lo {
		return domain.Opportunity{}, &RejectError{
			Reason: domain.RejectInsufficientLiquidity,
			Detail: "no admissible input range",
		}
	}

	smallest := route.Input().SmallestUnit()
	if hi < smallest {
		return domain.Opportunity{}, &RejectError{
			Reason: domain.RejectPrecisionUnderflow,
			Detail: fmt.Sprintf("input bound %g below smallest unit %g", hi, smallest),
		}
	}

	// Profit is not monotonic in input size once price impact is in play;
	// golden-section search finds the peak of the unimodal profit curve.
	input, profit, err := ev.optimizeInput(route, lo, hi)
	if err != nil {
		return domain.Opportunity{}, err
	}
	gross, err := SimulateRoute(route, input)
	if err != nil {
		return domain.Opportunity{}, err
	}
	if gross < smallest || input < smallest {
		return domain.Opportunity{}, &RejectError{
			Reason: domain.RejectPrecisionUnderflow,
			Detail: fmt.Sprintf("amounts (%g in, %g out) below smallest unit", input, gross),
		}
	}

	gasCost, _ := ev.gasCost(route)
	if profit <= 0 {
		return domain.Opportunity{}, &RejectError{
			Reason: domain.RejectNegativeProfit,
			Detail: fmt.Sprintf("best net profit %g at input %g", profit, input),
		}
	}

	depthRatio := route.MinDepthRatio(input)
	if depthRatio < ev.cfg.LiquidityFloorRatio {
		return domain.Opportunity{}, &RejectError{
			Reason: domain.RejectInsufficientLiquidity,
			Detail: fmt.Sprintf("min depth ratio %.2f below floor %.2f", depthRatio, ev.cfg.LiquidityFloorRatio),
		}
	}

	opp := domain.Opportunity{
		Route:            route,
		Fingerprint:      route.Fingerprint(),
		InputAmount:      input,
		GrossOutput:      gross,
		GasCost:          gasCost,
		NetProfit:        profit,
		Confidence:       ev.confidence(route, depthRatio, now),
		DiscoveredAt:     now,
		SnapshotVersions: route.EdgeVersions(),
	}
	return opp, nil
}

// inputBounds derives the admissible input range from config and the route's
// liquidity: inputs beyond depth/floor cannot clear the liquidity gate.
func (ev *Evaluator) inputBounds(route domain.Route, hint float64) (lo, hi float64) {
	lo = ev.cfg.MinInput
	if lo <= 0 {
		lo = route.Input().SmallestUnit()
	}
	hi = ev.cfg.MaxInput
	if hint > 0 && hint < hi {
		hi = hint
	}
	if floor := ev.cfg.LiquidityFloorRatio; floor > 0 {
		if depthCap := route.Edges[0].Depth / floor; depthCap < hi {
			hi = depthCap
		}
	}
	return lo, hi
}

// netProfit is the objective of the input optimization: simulated output
// minus input, gas, and the slippage buffer.
func (ev *Evaluator) netProfit(route domain.Route, input float64) (float64, error) {
	gross, err := SimulateRoute(route, input)
	if err != nil {
		return 0, err
	}
	gasCost, ok := ev.gasCost(route)
	if !ok {
		// Unpriceable gas makes the trade unpriceable.
		return 0, &RejectError{
			Reason: domain.RejectStaleSource,
			Detail: "no conversion path for gas cost",
		}
	}
	buffer := gross * ev.cfg.SlippageMarginBps / 10000
	return gross - input - gasCost - buffer, nil
}

func (ev *Evaluator) gasCost(route domain.Route) (float64, bool) {
	return ev.gas.CostInToken(ev.conv, route.Chain, route.Input().Key(), route.Hops())
}

// optimizeInput golden-section-searches [lo, hi] for the input maximizing
// net profit.
func (ev *Evaluator) optimizeInput(route domain.Route, lo, hi float64) (bestInput, bestProfit float64, err error) {
	const phi = 1.618033988749895
	const iterations = 64

	a, b := lo, hi
	c := b - (b-a)/phi
	d := a + (b-a)/phi
	fc, err := ev.netProfit(route, c)
	if err != nil {
		return 0, 0, err
	}
	fd, err := ev.netProfit(route, d)
	if err != nil {
		return 0, 0, err
	}

	for i := 0; i < iterations && math.Abs(b-a) > (hi-lo)*1e-9; i++ {
		if fc > fd {
			b, d, fd = d, c, fc
			c = b - (b-a)/phi
			if fc, err = ev.netProfit(route, c); err != nil {
				return 0, 0, err
			}
		} else {
			a, c, fc = c, d, fd
			d = a + (b-a)/phi
			if fd, err = ev.netProfit(route, d); err != nil {
				return 0, 0, err
			}
		}
	}

	bestInput = (a + b) / 2
	bestProfit, err = ev.netProfit(route, bestInput)
	if err != nil {
		return 0, 0, err
	}
	// The boundary can beat the interior when profit is monotonic within
	// the admissible range.
	if pLo, e := ev.netProfit(route, lo); e == nil && pLo > bestProfit {
		bestInput, bestProfit = lo, pLo
	}
	if pHi, e := ev.netProfit(route, hi); e == nil && pHi > bestProfit {
		bestInput, bestProfit = hi, pHi
	}
	return bestInput, bestProfit, nil
}

// confidence scores the opportunity in (0, 1]: it decays with route age,
// hop count, and thin liquidity.
func (ev *Evaluator) confidence(route domain.Route, depthRatio float64, now time.Time) float64 {
	oldest := time.Duration(0)
	for _, e := range route.Edges {
		if age := now.Sub(e.UpdatedAt); age > oldest {
			oldest = age
		}
	}
	ageFactor := 1 - float64(oldest)/float64(ev.cfg.MaxStaleness)
	if ageFactor < 0 {
		ageFactor = 0
	}

	hopFactor := math.Pow(0.92, float64(route.Hops()-2))
	if hopFactor > 1 {
		hopFactor = 1
	}

	depthFactor := depthRatio / (depthRatio + ev.cfg.LiquidityFloorRatio)

	conf := ageFactor * hopFactor * depthFactor
	if conf <= 0 {
		return 0.01
	}
	if conf > 1 {
		conf = 1
	}
	return conf
}
