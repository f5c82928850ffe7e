package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	m := NewMetrics(reg)

	if m.RequestsTotal == nil {
		t.Error("RequestsTotal is nil")
	}
	if m.RequestDuration == nil {
		t.Error("RequestDuration is nil")
	}
	if m.ActiveRequests == nil {
		t.Error("ActiveRequests is nil")
	}
	if m.CacheHits == nil {
		t.Error("CacheHits is nil")
	}
	if m.CacheMisses == nil {
		t.Error("CacheMisses is nil")
	}
	if m.CacheEntries == nil {
		t.Error("CacheEntries is nil")
	}
	if m.OriginErrors == nil {
		t.Error("OriginErrors is nil")
	}

	// Verify metrics can be gathered without error.
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather: %v", err)
	}
}

func TestNewMetricsIncrement(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	m := NewMetrics(reg)

	m.RequestsTotal.WithLabelValues("GET", "/pages/*", "200", "hit").Inc()
	m.CacheEntries.WithLabelValues("pages").Set(3)
	m.ActiveRequests.Set(5)
	m.RequestDuration.WithLabelValues("GET", "/pages/*").Observe(0.123)
	m.SweptEntries.Add(2)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather after increment: %v", err)
	}

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}

	want := []string{
		"stash_requests_total",
		"stash_cache_entries",
		"stash_active_requests",
		"stash_request_duration_seconds",
		"stash_swept_entries_total",
	}
	for _, name := range want {
		if !names[name] {
			t.Errorf("missing metric %q in gathered families", name)
		}
	}
}

func TestCacheObservers(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	m := NewMetrics(reg)
	onHit, onMiss := m.CacheObservers("pages")

	onHit("/a", time.Millisecond)
	onHit("/a", time.Millisecond)
	onMiss("/b", 2*time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	counters := make(map[string]float64)
	lookups := 0
	for _, f := range families {
		switch f.GetName() {
		case "stash_cache_hits_total", "stash_cache_misses_total":
			counters[f.GetName()] = f.GetMetric()[0].GetCounter().GetValue()
		case "stash_cache_lookup_duration_seconds":
			lookups = len(f.GetMetric())
		}
	}

	if got := counters["stash_cache_hits_total"]; got != 2 {
		t.Errorf("hits = %v, want 2", got)
	}
	if got := counters["stash_cache_misses_total"]; got != 1 {
		t.Errorf("misses = %v, want 1", got)
	}
	if lookups != 2 {
		t.Errorf("lookup duration series = %d, want 2 (hit and miss)", lookups)
	}
}
