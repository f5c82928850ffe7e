package cache

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestMemory_GetSetDelete(t *testing.T) {
	t.Parallel()
	m, err := NewMemory(100, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	// Get non-existent.
	if _, ok, err := m.Get(ctx, "missing"); err != nil || ok {
		t.Errorf("Get(missing) = ok %v, err %v; want miss", ok, err)
	}

	if err := m.Set(ctx, "k1", "v1"); err != nil {
		t.Fatal(err)
	}
	val, ok, err := m.Get(ctx, "k1")
	if err != nil || !ok {
		t.Fatalf("Get(k1) = ok %v, err %v; want hit", ok, err)
	}
	if val != "v1" {
		t.Errorf("value = %q, want %q", val, "v1")
	}

	if err := m.Delete(ctx, "k1"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := m.Get(ctx, "k1"); ok {
		t.Error("should not find deleted key")
	}
	// Deleting a missing key is not an error.
	if err := m.Delete(ctx, "k1"); err != nil {
		t.Errorf("Delete(missing) = %v, want nil", err)
	}
}

func TestMemory_Overwrite(t *testing.T) {
	t.Parallel()
	m, err := NewMemory(100, 0)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	_ = m.Set(ctx, "k", "first")
	_ = m.Set(ctx, "k", "second")

	val, _, _ := m.Get(ctx, "k")
	if val != "second" {
		t.Errorf("value = %q, want %q", val, "second")
	}
	if n, _ := m.Len(ctx); n != 1 {
		t.Errorf("Len = %d, want 1", n)
	}
}

func TestMemory_TTLExpiry(t *testing.T) {
	t.Parallel()
	m, err := NewMemory(100, 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	_ = m.Set(ctx, "expiring", "data")
	if _, ok, _ := m.Get(ctx, "expiring"); !ok {
		t.Fatal("entry should be present before ttl")
	}

	time.Sleep(150 * time.Millisecond)
	if _, ok, _ := m.Get(ctx, "expiring"); ok {
		t.Error("entry should be expired")
	}
}

func TestMemory_PurgeAndLen(t *testing.T) {
	t.Parallel()
	m, err := NewMemory(100, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	_ = m.Set(ctx, "a", "1")
	_ = m.Set(ctx, "b", "2")

	if n, err := m.Len(ctx); err != nil || n != 2 {
		t.Errorf("Len = %d, %v; want 2", n, err)
	}

	if err := m.Purge(ctx); err != nil {
		t.Fatal(err)
	}

	if _, ok, _ := m.Get(ctx, "a"); ok {
		t.Error("purge should remove all keys")
	}
	if n, _ := m.Len(ctx); n != 0 {
		t.Errorf("Len after purge = %d, want 0", n)
	}
}

func TestMemory_BoundedSize(t *testing.T) {
	t.Parallel()
	m, err := NewMemory(10, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for i := range 200 {
		_ = m.Set(ctx, fmt.Sprintf("key-%d", i), "v")
	}
	// Eviction runs in otter's maintenance cycle; give it a moment.
	time.Sleep(100 * time.Millisecond)

	if n, _ := m.Len(ctx); n > 10 {
		t.Errorf("Len = %d, want <= 10", n)
	}
}
