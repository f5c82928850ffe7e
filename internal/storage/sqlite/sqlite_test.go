package sqlite

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	// Use a unique file-based temp DB for each test to avoid shared :memory: races
	path := t.TempDir() + "/test.db"
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// fakeClock is a settable time source for expiry tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	s := db.Store("pages", Options{})
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "u:/x"); err != nil || ok {
		t.Fatalf("Get = ok %v, err %v; want miss", ok, err)
	}

	if err := s.Set(ctx, "u:/x", `{"hello":"world"}`); err != nil {
		t.Fatal("set:", err)
	}
	got, ok, err := s.Get(ctx, "u:/x")
	if err != nil || !ok {
		t.Fatalf("Get = ok %v, err %v; want hit", ok, err)
	}
	if got != `{"hello":"world"}` {
		t.Errorf("value = %q", got)
	}

	// Upsert replaces without duplicating.
	if err := s.Set(ctx, "u:/x", "v2"); err != nil {
		t.Fatal("set:", err)
	}
	if n, _ := s.Len(ctx); n != 1 {
		t.Errorf("len = %d, want 1", n)
	}
	got, _, _ = s.Get(ctx, "u:/x")
	if got != "v2" {
		t.Errorf("value = %q, want v2", got)
	}

	if err := s.Delete(ctx, "u:/x"); err != nil {
		t.Fatal("delete:", err)
	}
	if _, ok, _ := s.Get(ctx, "u:/x"); ok {
		t.Error("deleted entry still present")
	}
}

func TestStoreNamespaces(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	a := db.Store("a", Options{})
	b := db.Store("b", Options{})
	ctx := context.Background()

	_ = a.Set(ctx, "k", "from-a")
	_ = b.Set(ctx, "k", "from-b")

	if v, _, _ := a.Get(ctx, "k"); v != "from-a" {
		t.Errorf("a = %q, want from-a", v)
	}

	if err := a.Purge(ctx); err != nil {
		t.Fatal(err)
	}
	if n, _ := a.Len(ctx); n != 0 {
		t.Errorf("a len = %d, want 0", n)
	}
	if n, _ := b.Len(ctx); n != 1 {
		t.Errorf("purge leaked across namespaces: b len = %d, want 1", n)
	}
}

func TestStoreExpiry(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	db.now = clock.Now
	s := db.Store("ttl", Options{TTL: time.Minute})
	forever := db.Store("forever", Options{})
	ctx := context.Background()

	_ = s.Set(ctx, "k", "v")
	_ = forever.Set(ctx, "k", "v")

	clock.Advance(30 * time.Second)
	if _, ok, _ := s.Get(ctx, "k"); !ok {
		t.Fatal("entry expired early")
	}

	clock.Advance(31 * time.Second)
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Error("expired entry still readable")
	}
	if n, _ := s.Len(ctx); n != 0 {
		t.Errorf("len = %d, want 0 (expired rows excluded)", n)
	}

	removed, err := db.DeleteExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, ok, _ := forever.Get(ctx, "k"); !ok {
		t.Error("entry without ttl was swept")
	}
}

func TestStoreNamespaceDeleteExpired(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	db.now = clock.Now
	a := db.Store("a", Options{TTL: time.Second})
	b := db.Store("b", Options{TTL: time.Second})
	ctx := context.Background()

	_ = a.Set(ctx, "k", "v")
	_ = b.Set(ctx, "k", "v")
	clock.Advance(2 * time.Second)

	removed, err := a.DeleteExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	// b's row is expired but still physically present until swept.
	removed, _ = db.DeleteExpired(ctx)
	if removed != 1 {
		t.Errorf("db removed = %d, want 1", removed)
	}
}

func TestStoreMaxEntries(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	db.now = clock.Now
	s := db.Store("bounded", Options{MaxEntries: 100})
	ctx := context.Background()

	for i := range 250 {
		clock.Advance(time.Millisecond)
		if err := s.Set(ctx, fmt.Sprintf("/limit100?q=%d", i), "v"); err != nil {
			t.Fatal(err)
		}
		if n, _ := s.Len(ctx); n > 100 {
			t.Fatalf("len = %d after %d writes, want <= 100", n, i+1)
		}
	}

	// The oldest entries are evicted first.
	if _, ok, _ := s.Get(ctx, "/limit100?q=0"); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, ok, _ := s.Get(ctx, "/limit100?q=249"); !ok {
		t.Error("newest entry should be present")
	}
}

func TestPing(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("ping: %v", err)
	}
}
