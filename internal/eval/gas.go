package eval

import (
	"sync"

	"github.com/hulrap/TradingBot-sub007/internal/domain"
)

// GasModel estimates the gas cost of a route in the route's input token.
// Prices are cached per chain and refreshed by the network layer's poller so
// evaluation never blocks on I/O; a configured fallback price covers chains
// that have not been observed yet.
type GasModel struct {
	mu sync.RWMutex

	// priceWei is the latest observed gas price per chain.
	priceWei map[domain.ChainID]float64
	// native maps each chain to its wrapped native token node in the
	// graph, used to convert gas into route input tokens.
	native map[domain.ChainID]domain.TokenKey

	baseGas   uint64
	gasPerHop uint64
	fallback  float64
}

// Converter turns an amount of one token into another using market prices.
// *graph.Graph satisfies it.
type Converter interface {
	ConversionRate(from, to domain.TokenKey) (float64, bool)
}

// NewGasModel creates a gas model. baseGas covers fixed transaction
// overhead; gasPerHop is added per swap. fallbackWei is used until a live
// price is observed for a chain.
func NewGasModel(baseGas, gasPerHop uint64, fallbackWei float64, native map[domain.ChainID]domain.TokenKey) *GasModel {
	return &GasModel{
		priceWei:  make(map[domain.ChainID]float64),
		native:    native,
		baseGas:   baseGas,
		gasPerHop: gasPerHop,
		fallback:  fallbackWei,
	}
}

// ObservePrice records a fresh gas price for the chain.
func (m *GasModel) ObservePrice(chain domain.ChainID, wei float64) {
	if wei <= 0 {
		return
	}
	m.mu.Lock()
	m.priceWei[chain] = wei
	m.mu.Unlock()
}

// GasUnits returns the estimated gas units for a route with the given hops.
func (m *GasModel) GasUnits(hops int) uint64 {
	return m.baseGas + m.gasPerHop*uint64(hops)
}

// CostInToken estimates the route's gas cost denominated in the given input
// token, converting through the market graph's own prices. The boolean is
// false when no conversion path from the chain's native token exists.
func (m *GasModel) CostInToken(conv Converter, chain domain.ChainID, input domain.TokenKey, hops int) (float64, bool) {
	// No gas to price means zero cost regardless of price availability;
	// only a route that actually burns gas needs a price and a conversion
	// path.
	units := m.GasUnits(hops)
	if units == 0 {
		return 0, true
	}

	m.mu.RLock()
	price, ok := m.priceWei[chain]
	nativeKey, hasNative := m.native[chain]
	m.mu.RUnlock()

	if !ok {
		price = m.fallback
	}
	if price <= 0 {
		return 0, false
	}
	costNative := float64(units) * price / 1e18

	if !hasNative {
		return 0, false
	}
	if nativeKey == input {
		return costNative, true
	}
	rate, ok := conv.ConversionRate(nativeKey, input)
	if !ok {
		return 0, false
	}
	return costNative * rate, true
}
