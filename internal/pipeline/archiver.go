package pipeline

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hulrap/TradingBot-sub007/internal/domain"
)

// attemptRecord is the flat cold-storage shape of one terminal attempt.
type attemptRecord struct {
	ID             string    `json:"id"`
	Fingerprint    string    `json:"fingerprint"`
	Chain          uint64    `json:"chain"`
	Route          string    `json:"route"`
	State          string    `json:"state"`
	FailureReason  string    `json:"failure_reason,omitempty"`
	FailureDetail  string    `json:"failure_detail,omitempty"`
	TxHash         string    `json:"tx_hash,omitempty"`
	InputAmount    float64   `json:"input_amount"`
	NetProfit      float64   `json:"net_profit"`
	RealizedProfit float64   `json:"realized_profit"`
	GasUsed        uint64    `json:"gas_used,omitempty"`
	AttemptCount   int       `json:"attempt_count"`
	CreatedAt      time.Time `json:"created_at"`
	CompletedAt    time.Time `json:"completed_at"`
}

// Archiver batches terminal attempts into compressed JSONL objects in cold
// storage. Losing a batch on crash is acceptable; the store remains the
// authoritative record.
type Archiver struct {
	blob          domain.BlobWriter
	batchSize     int
	flushInterval time.Duration

	attempts chan domain.ExecutionAttempt
	now      func() time.Time
	logger   *slog.Logger
}

func NewArchiver(blob domain.BlobWriter, batchSize int, flushInterval time.Duration, logger *slog.Logger) *Archiver {
	if batchSize <= 0 {
		batchSize = 256
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Minute
	}
	return &Archiver{
		blob:          blob,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		attempts:      make(chan domain.ExecutionAttempt, batchSize*4),
		now:           time.Now,
		logger:        logger.With(slog.String("component", "attempt_archiver")),
	}
}

// Record enqueues a terminal attempt. Never blocks the execution path: when
// the queue is full the attempt is dropped from cold storage only.
func (a *Archiver) Record(attempt domain.ExecutionAttempt) {
	select {
	case a.attempts <- attempt:
	default:
		a.logger.Warn("archive queue full, dropping attempt",
			slog.String("attempt_id", attempt.ID),
		)
	}
}

// Run batches and flushes until the context is cancelled, with a final
// flush on shutdown.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()

	batch := make([]domain.ExecutionAttempt, 0, a.batchSize)
	for {
		select {
		case <-ctx.Done():
			a.drain(&batch)
			a.flush(context.Background(), batch)
			return ctx.Err()
		case attempt := <-a.attempts:
			batch = append(batch, attempt)
			if len(batch) >= a.batchSize {
				a.flush(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			a.flush(ctx, batch)
			batch = batch[:0]
		}
	}
}

func (a *Archiver) drain(batch *[]domain.ExecutionAttempt) {
	for {
		select {
		case attempt := <-a.attempts:
			*batch = append(*batch, attempt)
		default:
			return
		}
	}
}

func (a *Archiver) flush(ctx context.Context, batch []domain.ExecutionAttempt) {
	if len(batch) == 0 {
		return
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	for _, attempt := range batch {
		if err := enc.Encode(toRecord(attempt)); err != nil {
			a.logger.Warn("encode attempt record failed",
				slog.String("attempt_id", attempt.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if err := gz.Close(); err != nil {
		a.logger.Error("compress batch failed", slog.String("error", err.Error()))
		return
	}

	now := a.now().UTC()
	path := fmt.Sprintf("attempts/%s/%d.jsonl.gz", now.Format("2006-01-02"), now.UnixNano())
	if err := a.blob.Put(ctx, path, buf.Bytes(), "application/gzip"); err != nil {
		a.logger.Error("archive flush failed",
			slog.String("path", path),
			slog.Int("attempts", len(batch)),
			slog.String("error", err.Error()),
		)
		return
	}
	a.logger.Info("attempt batch archived",
		slog.String("path", path),
		slog.Int("attempts", len(batch)),
	)
}

func toRecord(attempt domain.ExecutionAttempt) attemptRecord {
	rec := attemptRecord{
		ID:             attempt.ID,
		Fingerprint:    string(attempt.Opportunity.Fingerprint),
		Chain:          uint64(attempt.Opportunity.Route.Chain),
		Route:          attempt.Opportunity.Route.String(),
		State:          string(attempt.State),
		FailureReason:  string(attempt.FailureReason),
		FailureDetail:  attempt.FailureDetail,
		InputAmount:    attempt.Opportunity.InputAmount,
		NetProfit:      attempt.Opportunity.NetProfit,
		RealizedProfit: attempt.RealizedProfit,
		GasUsed:        attempt.GasUsed,
		AttemptCount:   attempt.AttemptCount,
		CreatedAt:      attempt.CreatedAt,
		CompletedAt:    attempt.CompletedAt,
	}
	if attempt.TxHash != (common.Hash{}) {
		rec.TxHash = attempt.TxHash.Hex()
	}
	return rec
}
