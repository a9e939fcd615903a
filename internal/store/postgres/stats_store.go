package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hulrap/TradingBot-sub007/internal/domain"
)

// StatsStore implements domain.StatsStore.
type StatsStore struct {
	pool *pgxpool.Pool
}

var _ domain.StatsStore = (*StatsStore)(nil)

// NewStatsStore creates a StatsStore backed by the given pool.
func NewStatsStore(pool *pgxpool.Pool) *StatsStore {
	return &StatsStore{pool: pool}
}

// Insert persists one stats window.
func (s *StatsStore) Insert(ctx context.Context, snap domain.StatsSnapshot) error {
	rejects, err := json.Marshal(snap.OppsRejected)
	if err != nil {
		return fmt.Errorf("postgres: marshal reject counts: %w", err)
	}

	const query = `
		INSERT INTO engine_stats (
			window_start, window_end,
			updates_applied, updates_rejected, routes_searched,
			opps_found, opps_rejected,
			attempts_started, attempts_confirmed, attempts_reverted,
			attempts_expired, attempts_rejected,
			profit_p50, profit_p90, profit_max
		) VALUES (
			$1, $2,
			$3, $4, $5,
			$6, $7,
			$8, $9, $10,
			$11, $12,
			$13, $14, $15
		)`
	_, err = s.pool.Exec(ctx, query,
		snap.WindowStart, snap.WindowEnd,
		snap.UpdatesApplied, snap.UpdatesRejected, snap.RoutesSearched,
		snap.OppsFound, rejects,
		snap.AttemptsStarted, snap.AttemptsConfirmed, snap.AttemptsReverted,
		snap.AttemptsExpired, snap.AttemptsRejected,
		snap.ProfitP50, snap.ProfitP90, snap.ProfitMax,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert stats window: %w", err)
	}
	return nil
}

// ListRecent returns the newest stats windows, most recent first.
func (s *StatsStore) ListRecent(ctx context.Context, limit int) ([]domain.StatsSnapshot, error) {
	if limit <= 0 {
		limit = 100
	}

	const query = `
		SELECT window_start, window_end,
			updates_applied, updates_rejected, routes_searched,
			opps_found, opps_rejected,
			attempts_started, attempts_confirmed, attempts_reverted,
			attempts_expired, attempts_rejected,
			profit_p50, profit_p90, profit_max
		FROM engine_stats
		ORDER BY window_end DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list stats: %w", err)
	}
	defer rows.Close()

	var snaps []domain.StatsSnapshot
	for rows.Next() {
		var snap domain.StatsSnapshot
		var rejects []byte
		err := rows.Scan(
			&snap.WindowStart, &snap.WindowEnd,
			&snap.UpdatesApplied, &snap.UpdatesRejected, &snap.RoutesSearched,
			&snap.OppsFound, &rejects,
			&snap.AttemptsStarted, &snap.AttemptsConfirmed, &snap.AttemptsReverted,
			&snap.AttemptsExpired, &snap.AttemptsRejected,
			&snap.ProfitP50, &snap.ProfitP90, &snap.ProfitMax,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan stats: %w", err)
		}
		if len(rejects) > 0 {
			if err := json.Unmarshal(rejects, &snap.OppsRejected); err != nil {
				return nil, fmt.Errorf("postgres: decode reject counts: %w", err)
			}
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}
