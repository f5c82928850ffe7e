// Package stash defines domain types and interfaces for the stash response cache.
// This package has no project imports -- it is the dependency root.
package stash

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// --- Store ---

// Store is the key-value backend behind a cache gateway. Implementations own
// expiry, eviction and persistence; the gateway only looks up, inserts and
// removes entries.
type Store interface {
	// Get returns the value stored under key. The boolean reports a hit.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores val under key, replacing any previous value.
	Set(ctx context.Context, key, val string) error
	// Delete removes the value stored under key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
	// Purge removes every value.
	Purge(ctx context.Context) error
	// Len returns the number of live entries.
	Len(ctx context.Context) (int, error)
}

// Sweepable is implemented by stores whose expired entries must be removed
// by an external sweeper rather than by the store itself.
type Sweepable interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// --- Response types ---

// ResponseType controls how cached values are written to the client.
type ResponseType string

const (
	// ResponseJSON treats values as encoded JSON documents.
	ResponseJSON ResponseType = "json"
	// ResponseHTML emits values verbatim as HTML.
	ResponseHTML ResponseType = "html"
)

// Valid reports whether t is a known response type.
func (t ResponseType) Valid() bool {
	return t == ResponseJSON || t == ResponseHTML
}

// --- Context keys ---

type contextKey int

const ctxKeyMeta contextKey = 0

// requestMeta bundles per-request values into a single context allocation.
type requestMeta struct {
	RequestID string
}

func metaFromContext(ctx context.Context) *requestMeta {
	m, _ := ctx.Value(ctxKeyMeta).(*requestMeta)
	return m
}

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if m := metaFromContext(ctx); m != nil {
		return m.RequestID
	}
	return ""
}

// ContextWithRequestID returns a context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{RequestID: id})
}

// --- Shared helpers ---

// HashKey returns the hex-encoded SHA-256 hash of a raw credential.
func HashKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
