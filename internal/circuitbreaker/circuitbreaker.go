// Package circuitbreaker guards origin fetches with a sliding-window error
// rate detector. An open breaker fails requests to a known-bad upstream
// immediately instead of waiting out a timeout on every cache miss.
package circuitbreaker

import (
	"sync"
	"time"
)

// State is the breaker state.
type State int

const (
	// StateClosed lets every fetch through.
	StateClosed State = iota
	// StateOpen rejects every fetch until OpenTimeout has elapsed.
	StateOpen
	// StateHalfOpen lets one probe fetch through.
	StateHalfOpen
)

// String returns the state name used in logs and metrics.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds breaker parameters.
type Config struct {
	ErrorThreshold float64       // weighted error rate that trips the breaker, e.g. 0.5
	MinSamples     int           // fetches in the window before the breaker may trip
	Window         time.Duration // sliding window length, whole seconds up to 60s
	OpenTimeout    time.Duration // time spent open before a probe is allowed
}

// DefaultConfig returns the defaults used when an origin sets none.
func DefaultConfig() Config {
	return Config{
		ErrorThreshold: 0.5,
		MinSamples:     20,
		Window:         30 * time.Second,
		OpenTimeout:    15 * time.Second,
	}
}

const maxBuckets = 60

type bucket struct {
	errors float64 // weighted
	total  int
}

// window is a ring of one-second buckets.
type window struct {
	buckets [maxBuckets]bucket
	size    int
	head    int
	headSec int64
}

func newWindow(d time.Duration) window {
	n := int(d / time.Second)
	if n <= 0 || n > maxBuckets {
		n = maxBuckets
	}
	return window{size: n}
}

// advance rotates the ring to nowSec, zeroing the buckets it passes.
func (w *window) advance(nowSec int64) {
	if w.headSec == 0 {
		w.headSec = nowSec
		return
	}
	gap := nowSec - w.headSec
	if gap <= 0 {
		return
	}
	for i := range min(int(gap), w.size) {
		w.buckets[(w.head+1+i)%w.size] = bucket{}
	}
	w.head = (w.head + int(gap)) % w.size
	w.headSec = nowSec
}

func (w *window) record(weight float64, now time.Time) {
	w.advance(now.Unix())
	w.buckets[w.head].total++
	w.buckets[w.head].errors += weight
}

func (w *window) rate(now time.Time) (rate float64, samples int) {
	w.advance(now.Unix())
	var errs float64
	for i := range w.size {
		errs += w.buckets[i].errors
		samples += w.buckets[i].total
	}
	if samples == 0 {
		return 0, 0
	}
	return errs / float64(samples), samples
}

func (w *window) reset() {
	*w = window{size: w.size}
}

// Breaker tracks the health of one upstream. It is safe for concurrent use.
type Breaker struct {
	mu       sync.Mutex
	cfg      Config
	state    State
	win      window
	openedAt time.Time
	probing  bool
	now      func() time.Time
}

// New creates a closed breaker.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg, win: newWindow(cfg.Window), now: time.Now}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a fetch may proceed. Every allowed fetch must be
// followed by exactly one call to Record.
func (b *Breaker) Allow() bool {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if now.Sub(b.openedAt) < b.cfg.OpenTimeout {
			return false
		}
		b.state = StateHalfOpen
		b.probing = true
		return true
	default:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
}

// Record reports the outcome of an allowed fetch. A zero weight is a success.
func (b *Breaker) Record(weight float64) {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.win.record(weight, now)

	switch b.state {
	case StateClosed:
		if weight == 0 {
			return
		}
		rate, samples := b.win.rate(now)
		if samples >= b.cfg.MinSamples && rate >= b.cfg.ErrorThreshold {
			b.trip(now)
		}
	case StateHalfOpen:
		if weight > 0 {
			b.trip(now)
			return
		}
		b.state = StateClosed
		b.probing = false
		b.win.reset()
	}
}

func (b *Breaker) trip(now time.Time) {
	b.state = StateOpen
	b.openedAt = now
	b.probing = false
}
