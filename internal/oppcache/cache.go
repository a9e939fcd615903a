// Package oppcache holds the current best-known opportunities, deduplicated
// by route fingerprint, with staleness tracking. Replacement is
// last-writer-wins by snapshot version rather than wall clock so the cache
// stays deterministic under clock skew.
package oppcache

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hulrap/TradingBot-sub007/internal/domain"
)

// Cache is an in-memory opportunity cache. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[domain.Fingerprint]domain.Opportunity

	maxStaleness  time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	logger        *slog.Logger
}

// New creates a cache that evicts entries older than maxStaleness, lazily on
// read and proactively on the periodic sweep.
func New(maxStaleness, sweepInterval time.Duration, logger *slog.Logger) *Cache {
	if sweepInterval <= 0 {
		sweepInterval = maxStaleness
	}
	return &Cache{
		entries:       make(map[domain.Fingerprint]domain.Opportunity),
		maxStaleness:  maxStaleness,
		sweepInterval: sweepInterval,
		now:           time.Now,
		logger:        logger.With(slog.String("component", "opportunity_cache")),
	}
}

// Upsert stores the opportunity unless an entry with the same fingerprint
// and an equal or newer snapshot version is already present. It reports
// whether the opportunity was stored.
func (c *Cache) Upsert(opp domain.Opportunity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.entries[opp.Fingerprint]; ok {
		if !opp.Supersedes(prev) {
			return false
		}
	}
	c.entries[opp.Fingerprint] = opp
	return true
}

// BestCandidates returns up to limit non-stale opportunities ordered by net
// profit, breaking ties by confidence and then fingerprint. Stale entries
// encountered on the way are evicted.
func (c *Cache) BestCandidates(limit int) []domain.Opportunity {
	if limit <= 0 {
		return nil
	}
	now := c.now()

	c.mu.Lock()
	out := make([]domain.Opportunity, 0, len(c.entries))
	for fp, opp := range c.entries {
		if opp.Age(now) > c.maxStaleness {
			delete(c.entries, fp)
			continue
		}
		out = append(out, opp)
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].NetProfit != out[j].NetProfit {
			return out[i].NetProfit > out[j].NetProfit
		}
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Fingerprint < out[j].Fingerprint
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Get returns the cached opportunity for the fingerprint if present and not
// stale.
func (c *Cache) Get(fp domain.Fingerprint) (domain.Opportunity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	opp, ok := c.entries[fp]
	if !ok {
		return domain.Opportunity{}, false
	}
	if opp.Age(c.now()) > c.maxStaleness {
		delete(c.entries, fp)
		return domain.Opportunity{}, false
	}
	return opp, true
}

// Invalidate removes the entry for the fingerprint, if any.
func (c *Cache) Invalidate(fp domain.Fingerprint) {
	c.mu.Lock()
	delete(c.entries, fp)
	c.mu.Unlock()
}

// Len returns the number of cached entries, stale included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Run sweeps stale entries periodically until the context is cancelled.
func (c *Cache) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if evicted := c.sweep(); evicted > 0 {
				c.logger.Debug("swept stale opportunities", slog.Int("evicted", evicted))
			}
		}
	}
}

func (c *Cache) sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	evicted := 0
	for fp, opp := range c.entries {
		if opp.Age(now) > c.maxStaleness {
			delete(c.entries, fp)
			evicted++
		}
	}
	return evicted
}
