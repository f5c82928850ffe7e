// Package auth derives cache scopes from request credentials and guards the
// admin API with a static key.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	stash "github.com/eugener/stash/internal"
)

// bearerToken returns the token from an "Authorization: Bearer" header, or "".
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	raw := strings.TrimPrefix(h, "Bearer ")
	if raw == h {
		return ""
	}
	return strings.TrimSpace(raw)
}

// BearerScope scopes cache entries by the SHA-256 of the caller's bearer
// token, so raw credentials never reach the store. Requests without a token
// share the unscoped partition.
func BearerScope(_ http.ResponseWriter, r *http.Request) string {
	tok := bearerToken(r)
	if tok == "" {
		return ""
	}
	return stash.HashKey(tok)
}

// HeaderScope returns a scope function that uses the value of header name
// verbatim, e.g. a session or tenant ID set by an upstream proxy.
func HeaderScope(name string) func(http.ResponseWriter, *http.Request) string {
	return func(_ http.ResponseWriter, r *http.Request) string {
		return r.Header.Get(name)
	}
}

// StaticKey authenticates admin requests against a single bearer key.
// The zero value admits every request.
type StaticKey struct {
	hash string
}

// NewStaticKey returns a StaticKey for raw. An empty raw key disables the check.
func NewStaticKey(raw string) StaticKey {
	if raw == "" {
		return StaticKey{}
	}
	return StaticKey{hash: stash.HashKey(raw)}
}

// Authenticate returns stash.ErrUnauthorized unless r carries the key.
func (k StaticKey) Authenticate(r *http.Request) error {
	if k.hash == "" {
		return nil
	}
	tok := bearerToken(r)
	if tok == "" {
		return stash.ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(stash.HashKey(tok)), []byte(k.hash)) != 1 {
		return stash.ErrUnauthorized
	}
	return nil
}
