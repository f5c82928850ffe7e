package respcache

import (
	"context"
	"fmt"
	"net/http"

	stash "github.com/eugener/stash/internal"
)

type contextKey int

const ctxKeyState contextKey = 0

// state is the per-request value the gateway threads to downstream handlers.
type state struct {
	entry  Entry
	handle Handle
}

// Entry describes the outcome of the cache check for one request. It is
// created fresh for every request that passes through a gateway and must
// not outlive it.
type Entry struct {
	// IsCached reports a cache hit. Only set in manual-response mode; in
	// automatic mode a hit never reaches downstream handlers.
	IsCached bool
	// Value is the raw cached string on a hit, empty otherwise.
	Value string
	// Gateway is the gateway that handled the request.
	Gateway *Gateway
}

// Handle stores and emits a fresh value for the current request. It uses the
// key computed when the request entered the gateway. A Handle is not safe
// for concurrent use.
type Handle struct {
	g    *Gateway
	w    http.ResponseWriter
	r    *http.Request
	key  string
	sent bool
}

// FromContext returns the cache entry attached by a gateway, or nil.
func FromContext(ctx context.Context) *Entry {
	if s, ok := ctx.Value(ctxKeyState).(*state); ok {
		return &s.entry
	}
	return nil
}

// FromRequest returns the cache entry attached to r by a gateway, or nil.
func FromRequest(r *http.Request) *Entry {
	return FromContext(r.Context())
}

// HandleFromRequest returns the capture handle attached to r, or nil.
func HandleFromRequest(r *http.Request) *Handle {
	if s, ok := r.Context().Value(ctxKeyState).(*state); ok {
		return &s.handle
	}
	return nil
}

// Key returns the cache key the handle writes to.
func (h *Handle) Key() string { return h.key }

// Sent reports whether Send has written the response.
func (h *Handle) Sent() bool { return h.sent }

// Cache encodes v and stores it if the gateway's ShouldCache predicate
// admits this request. It returns the encoded value whether or not it was
// stored. Store errors are returned unchanged apart from wrapping.
func (h *Handle) Cache(v any) (string, error) {
	val, err := encodeValue(v)
	if err != nil {
		return "", err
	}
	return val, h.store(val)
}

// Send stores v like Cache and then writes it as the response. It writes at
// most once per request; later calls return stash.ErrAlreadySent. A JSON
// gateway refuses values that are not well-formed JSON before storing them.
func (h *Handle) Send(v any) (string, error) {
	if h.sent {
		return "", stash.ErrAlreadySent
	}
	val, err := encodeValue(v)
	if err != nil {
		return "", err
	}
	if err := checkValue(h.g.cfg.responseType, val); err != nil {
		return "", err
	}
	if err := h.store(val); err != nil {
		return val, err
	}
	h.sent = true
	if err := WriteValue(h.w, h.g.cfg.responseType, val); err != nil {
		return val, fmt.Errorf("write response: %w", err)
	}
	return val, nil
}

func (h *Handle) store(val string) error {
	if !h.g.cfg.shouldCache(h.w, h.r) {
		return nil
	}
	if err := h.g.store.Set(h.r.Context(), h.key, val); err != nil {
		return fmt.Errorf("store value: %w", err)
	}
	return nil
}
