package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hulrap/TradingBot-sub007/internal/domain"
)

// Replay feeds recorded pool updates through the same ingestion path as a
// live stream, for offline evaluation of the discovery pipeline. The input
// is JSON lines of domain.PoolUpdate as written by the update recorder.
type Replay struct {
	src io.Reader
	// speed is a pacing multiplier over recorded timestamps: 1 replays in
	// real time, 2 at double speed, 0 as fast as possible.
	speed   float64
	updates chan domain.PoolUpdate
	logger  *slog.Logger
}

func NewReplay(src io.Reader, speed float64, bufSize int, logger *slog.Logger) *Replay {
	if bufSize <= 0 {
		bufSize = 1024
	}
	return &Replay{
		src:     src,
		speed:   speed,
		updates: make(chan domain.PoolUpdate, bufSize),
		logger:  logger.With(slog.String("component", "replay")),
	}
}

// Updates is the stream consumed by the ingestor. It closes when Run
// returns.
func (r *Replay) Updates() <-chan domain.PoolUpdate {
	return r.updates
}

// Run pushes every recorded update, pacing by recorded timestamps when a
// speed is set. Returns nil at end of input.
func (r *Replay) Run(ctx context.Context) error {
	defer close(r.updates)

	scanner := bufio.NewScanner(r.src)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var last time.Time
	var count int
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var update domain.PoolUpdate
		if err := json.Unmarshal(line, &update); err != nil {
			r.logger.Warn("skipping malformed record", slog.String("error", err.Error()))
			continue
		}

		if r.speed > 0 && !last.IsZero() && update.ObservedAt.After(last) {
			wait := time.Duration(float64(update.ObservedAt.Sub(last)) / r.speed)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		last = update.ObservedAt

		select {
		case <-ctx.Done():
			return ctx.Err()
		case r.updates <- update:
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("pipeline: replay read: %w", err)
	}
	r.logger.Info("replay complete", slog.Int("updates", count))
	return nil
}
