// Package testutil provides test fakes for stash interfaces.
package testutil

import (
	"context"
	"errors"
	"sync"

	stash "github.com/eugener/stash/internal"
)

// FakeStore is a synchronous in-memory stash.Store without expiry or eviction.
type FakeStore struct {
	mu   sync.Mutex
	m    map[string]string
	sets int
}

// NewFakeStore returns an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{m: make(map[string]string)}
}

// Sets returns the number of Set calls so far.
func (s *FakeStore) Sets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets
}

// Get returns the value stored under key.
func (s *FakeStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok, nil
}

// Set stores val under key.
func (s *FakeStore) Set(_ context.Context, key, val string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = val
	s.sets++
	return nil
}

// Delete removes key.
func (s *FakeStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

// Purge removes every value.
func (s *FakeStore) Purge(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.m)
	return nil
}

// Len returns the number of stored values.
func (s *FakeStore) Len(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m), nil
}

// ErrStoreDown is returned by every FailStore operation.
var ErrStoreDown = errors.New("store down")

// FailStore fails every operation with ErrStoreDown.
type FailStore struct{}

func (FailStore) Get(context.Context, string) (string, bool, error) { return "", false, ErrStoreDown }
func (FailStore) Set(context.Context, string, string) error         { return ErrStoreDown }
func (FailStore) Delete(context.Context, string) error              { return ErrStoreDown }
func (FailStore) Purge(context.Context) error                       { return ErrStoreDown }
func (FailStore) Len(context.Context) (int, error)                  { return 0, ErrStoreDown }

var (
	_ stash.Store = (*FakeStore)(nil)
	_ stash.Store = FailStore{}
)
