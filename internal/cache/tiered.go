package cache

import (
	"context"
	"errors"

	stash "github.com/eugener/stash/internal"
)

// Tiered combines a fast local L1 with a shared L2. Reads try L1 first and
// back-fill it from L2; writes and deletes go to both tiers. L2 is the
// authoritative tier for Len.
type Tiered struct {
	l1 stash.Store
	l2 stash.Store
}

// NewTiered creates a tiered store.
func NewTiered(l1, l2 stash.Store) *Tiered {
	return &Tiered{l1: l1, l2: l2}
}

// Get checks L1 then L2.
func (t *Tiered) Get(ctx context.Context, key string) (string, bool, error) {
	if v, ok, err := t.l1.Get(ctx, key); err == nil && ok {
		return v, true, nil
	}
	v, ok, err := t.l2.Get(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}
	// Back-fill L1; a failure here only costs the next read a trip to L2.
	_ = t.l1.Set(ctx, key, v)
	return v, true, nil
}

// Set writes L2 before L1. A failed L2 write leaves L1 untouched.
func (t *Tiered) Set(ctx context.Context, key, val string) error {
	if err := t.l2.Set(ctx, key, val); err != nil {
		return err
	}
	return t.l1.Set(ctx, key, val)
}

// Delete removes key from both tiers.
func (t *Tiered) Delete(ctx context.Context, key string) error {
	return errors.Join(t.l1.Delete(ctx, key), t.l2.Delete(ctx, key))
}

// Purge clears both tiers.
func (t *Tiered) Purge(ctx context.Context) error {
	return errors.Join(t.l1.Purge(ctx), t.l2.Purge(ctx))
}

// Len reports the L2 entry count.
func (t *Tiered) Len(ctx context.Context) (int, error) {
	return t.l2.Len(ctx)
}
