package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hulrap/TradingBot-sub007/internal/domain"
)

// AttemptStore implements domain.AttemptStore. Rows are flattened terminal
// records: the route is stored as its display string, so a loaded attempt
// carries the opportunity's identity and economics but not replayable
// edges.
type AttemptStore struct {
	pool *pgxpool.Pool
}

var _ domain.AttemptStore = (*AttemptStore)(nil)

// NewAttemptStore creates an AttemptStore backed by the given pool.
func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

const attemptSelectCols = `id, fingerprint, chain, state, failure_reason, failure_detail,
	tx_hash, input_amount, net_profit, realized_profit, gas_used, attempt_count,
	created_at, submitted_at, completed_at`

// Create inserts one terminal attempt. Replays of the same attempt ID are
// skipped.
func (s *AttemptStore) Create(ctx context.Context, attempt domain.ExecutionAttempt) error {
	const query = `
		INSERT INTO execution_attempts (
			id, fingerprint, chain, route, state,
			failure_reason, failure_detail, tx_hash,
			input_amount, net_profit, realized_profit,
			gas_used, attempt_count,
			created_at, submitted_at, completed_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11,
			$12, $13,
			$14, $15, $16
		) ON CONFLICT (id) DO NOTHING`

	txHash := ""
	if attempt.TxHash != (common.Hash{}) {
		txHash = attempt.TxHash.Hex()
	}
	_, err := s.pool.Exec(ctx, query,
		attempt.ID,
		string(attempt.Opportunity.Fingerprint),
		int64(attempt.Opportunity.Route.Chain),
		attempt.Opportunity.Route.String(),
		string(attempt.State),
		string(attempt.FailureReason),
		attempt.FailureDetail,
		txHash,
		attempt.Opportunity.InputAmount,
		attempt.Opportunity.NetProfit,
		attempt.RealizedProfit,
		int64(attempt.GasUsed),
		attempt.AttemptCount,
		attempt.CreatedAt,
		nullableTime(attempt.SubmittedAt),
		nullableTime(attempt.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert attempt %s: %w", attempt.ID, err)
	}
	return nil
}

// GetByID loads one attempt record.
func (s *AttemptStore) GetByID(ctx context.Context, id string) (domain.ExecutionAttempt, error) {
	query := `SELECT ` + attemptSelectCols + ` FROM execution_attempts WHERE id = $1`

	attempt, err := scanAttempt(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ExecutionAttempt{}, fmt.Errorf("postgres: attempt %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ExecutionAttempt{}, fmt.Errorf("postgres: get attempt %s: %w", id, err)
	}
	return attempt, nil
}

// ListRecent returns attempts ordered newest first.
func (s *AttemptStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.ExecutionAttempt, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + attemptSelectCols + ` FROM execution_attempts`
	args := []any{}
	if opts.Since != nil {
		query += ` WHERE created_at >= $1`
		args = append(args, *opts.Since)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, limit, opts.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []domain.ExecutionAttempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan attempt: %w", err)
		}
		attempts = append(attempts, attempt)
	}
	return attempts, rows.Err()
}

// CountByState counts archived attempts in the given state.
func (s *AttemptStore) CountByState(ctx context.Context, state domain.AttemptState) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM execution_attempts WHERE state = $1`,
		string(state),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count attempts by state %s: %w", state, err)
	}
	return count, nil
}

func scanAttempt(row pgx.Row) (domain.ExecutionAttempt, error) {
	var (
		attempt       domain.ExecutionAttempt
		fingerprint   string
		chain         int64
		state         string
		failureReason string
		txHash        string
		gasUsed       int64
		submittedAt   *time.Time
		completedAt   *time.Time
	)
	err := row.Scan(
		&attempt.ID, &fingerprint, &chain, &state,
		&failureReason, &attempt.FailureDetail, &txHash,
		&attempt.Opportunity.InputAmount, &attempt.Opportunity.NetProfit,
		&attempt.RealizedProfit, &gasUsed, &attempt.AttemptCount,
		&attempt.CreatedAt, &submittedAt, &completedAt,
	)
	if err != nil {
		return domain.ExecutionAttempt{}, err
	}

	attempt.Opportunity.Fingerprint = domain.Fingerprint(fingerprint)
	attempt.Opportunity.Route.Chain = domain.ChainID(chain)
	attempt.State = domain.AttemptState(state)
	attempt.FailureReason = domain.RejectReason(failureReason)
	if txHash != "" {
		attempt.TxHash = common.HexToHash(txHash)
	}
	attempt.GasUsed = uint64(gasUsed)
	if submittedAt != nil {
		attempt.SubmittedAt = *submittedAt
	}
	if completedAt != nil {
		attempt.CompletedAt = *completedAt
	}
	return attempt, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
