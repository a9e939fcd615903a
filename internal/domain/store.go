package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
}

// AttemptStore archives terminal execution attempts.
type AttemptStore interface {
	Create(ctx context.Context, attempt ExecutionAttempt) error
	GetByID(ctx context.Context, id string) (ExecutionAttempt, error)
	ListRecent(ctx context.Context, opts ListOpts) ([]ExecutionAttempt, error)
	CountByState(ctx context.Context, state AttemptState) (int64, error)
}

// StatsStore persists periodic discovery statistics snapshots.
type StatsStore interface {
	Insert(ctx context.Context, snap StatsSnapshot) error
	ListRecent(ctx context.Context, limit int) ([]StatsSnapshot, error)
}

// LockManager provides distributed locking. The coordinator's in-process
// single-flight lock is always authoritative; a LockManager adds a second
// guard when several engine instances share one capital pool.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus publishes engine events for external consumers (dashboards,
// alerting). Payloads are JSON-encoded EngineEvent values.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// BlobWriter uploads archive objects to cold storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
}
