package workers

import (
	"context"
	"log/slog"
	"time"
)

// Sweepable is the part of the typing tracker the sweeper needs.
type Sweepable interface {
	Sweep() int
}

// TypingSweeper periodically evicts expired typing flags. The tracker
// is already correct without it (expiry is checked lazily); the sweep
// only bounds memory held by flags nobody reads anymore.
type TypingSweeper struct {
	log      *slog.Logger
	tracker  Sweepable
	interval time.Duration
}

func NewTypingSweeper(log *slog.Logger, tracker Sweepable, interval time.Duration) *TypingSweeper {
	return &TypingSweeper{log: log, tracker: tracker, interval: interval}
}

func (w *TypingSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if evicted := w.tracker.Sweep(); evicted > 0 {
				w.log.Debug("typing flags evicted", "count", evicted)
			}
		}
	}
}
