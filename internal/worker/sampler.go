package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sized is a named cache that can report its live entry count.
// *respcache.Gateway satisfies it.
type Sized interface {
	Name() string
	Size(ctx context.Context) (int, error)
}

// EntrySampler publishes the entry count of each cache to a gauge.
type EntrySampler struct {
	interval time.Duration
	gauge    *prometheus.GaugeVec
	caches   []Sized
}

// NewEntrySampler creates a sampler writing to gauge, labelled by cache name.
func NewEntrySampler(interval time.Duration, gauge *prometheus.GaugeVec, caches ...Sized) *EntrySampler {
	return &EntrySampler{interval: interval, gauge: gauge, caches: caches}
}

// Run samples immediately and then every interval until ctx is cancelled.
func (s *EntrySampler) Run(ctx context.Context) error {
	s.Sample(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sample(ctx)
		}
	}
}

// Sample reads every cache size once. Failures leave the previous value.
func (s *EntrySampler) Sample(ctx context.Context) {
	for _, c := range s.caches {
		n, err := c.Size(ctx)
		if err != nil {
			slog.LogAttrs(ctx, slog.LevelWarn, "cache size unavailable",
				slog.String("route", c.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.gauge.WithLabelValues(c.Name()).Set(float64(n))
	}
}
