package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter/v2"
)

// Memory is an in-memory W-TinyLFU cache backed by otter. Entries are bounded
// by count and expire a fixed duration after they were written.
type Memory struct {
	cache *otter.Cache[string, string]
}

// NewMemory creates an in-memory cache holding at most maxSize entries.
// A ttl of zero or less disables expiry.
func NewMemory(maxSize int, ttl time.Duration) (*Memory, error) {
	opts := &otter.Options[string, string]{
		MaximumSize: maxSize,
	}
	if ttl > 0 {
		opts.ExpiryCalculator = otter.ExpiryWriting[string, string](ttl)
	}
	c, err := otter.New(opts)
	if err != nil {
		return nil, fmt.Errorf("create memory cache: %w", err)
	}
	return &Memory{cache: c}, nil
}

// Get retrieves a value if present and not expired.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m.cache.GetIfPresent(key)
	return v, ok, nil
}

// Set stores a value.
func (m *Memory) Set(_ context.Context, key, val string) error {
	m.cache.Set(key, val)
	return nil
}

// Delete removes a value.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.cache.Invalidate(key)
	return nil
}

// Purge removes all values.
func (m *Memory) Purge(_ context.Context) error {
	m.cache.InvalidateAll()
	return nil
}

// Len returns the approximate number of entries. Expired entries that have
// not been reclaimed yet may still be counted.
func (m *Memory) Len(_ context.Context) (int, error) {
	return m.cache.EstimatedSize(), nil
}
