package worker

import (
	"context"
	"log/slog"
	"time"

	stash "github.com/eugener/stash/internal"
	"github.com/eugener/stash/internal/telemetry"
)

// Sweeper periodically removes expired entries from stores that keep them
// on disk until read.
type Sweeper struct {
	interval time.Duration
	targets  []stash.Sweepable
	metrics  *telemetry.Metrics // nil disables metrics
}

// NewSweeper creates a sweeper over targets. metrics may be nil.
func NewSweeper(interval time.Duration, metrics *telemetry.Metrics, targets ...stash.Sweepable) *Sweeper {
	return &Sweeper{interval: interval, targets: targets, metrics: metrics}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over all targets and returns the number of rows removed.
// A failing target is logged and skipped.
func (s *Sweeper) Sweep(ctx context.Context) int64 {
	var total int64
	for _, t := range s.targets {
		n, err := t.DeleteExpired(ctx)
		if err != nil {
			slog.LogAttrs(ctx, slog.LevelError, "sweep failed",
				slog.String("error", err.Error()),
			)
			continue
		}
		total += n
	}
	if total > 0 {
		if s.metrics != nil {
			s.metrics.SweptEntries.Add(float64(total))
		}
		slog.LogAttrs(ctx, slog.LevelDebug, "swept expired entries",
			slog.Int64("count", total),
		)
	}
	return total
}
