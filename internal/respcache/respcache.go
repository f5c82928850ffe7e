// Package respcache implements the cache gateway: HTTP middleware that serves
// previously captured response bodies from a stash.Store and lets handlers
// capture fresh ones.
//
// Per request the gateway derives a key from the raw request URI and the
// caller's auth scope, looks it up, and then either
//
//   - writes the cached value and stops the chain (automatic delivery), or
//   - attaches an Entry and a Handle to the request context and calls the
//     next handler, which may serve Entry.Value or store a new value through
//     Handle.Cache / Handle.Send (manual delivery, misses and bypasses).
//
// The gateway takes no locks. Two concurrent misses for the same key both
// run the handler and both write; the store keeps the last write.
package respcache

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	stash "github.com/eugener/stash/internal"
	"github.com/eugener/stash/internal/cache"
	"github.com/eugener/stash/internal/telemetry"
)

var tracer = telemetry.Tracer("github.com/eugener/stash/internal/respcache")

// Gateway decides per request whether a cached response can be served and
// captures fresh responses into its store. It exclusively owns its store.
type Gateway struct {
	cfg   config
	store stash.Store
}

// New creates a gateway from opts merged over the defaults.
func New(opts Options) (*Gateway, error) {
	store := opts.Store
	if store == nil {
		maxEntries := opts.MaxEntries
		if maxEntries <= 0 {
			maxEntries = DefaultMaxEntries
		}
		ttl := opts.TTL
		if ttl == 0 {
			ttl = DefaultTTL
		}
		m, err := cache.NewMemory(maxEntries, ttl)
		if err != nil {
			return nil, fmt.Errorf("respcache: %w", err)
		}
		store = m
	}
	return &Gateway{cfg: newConfig(opts), store: store}, nil
}

// NewHTML creates a gateway that writes values verbatim as HTML.
func NewHTML(opts Options) (*Gateway, error) {
	opts.ResponseType = stash.ResponseHTML
	return New(opts)
}

// NewJSON creates a gateway that writes values as JSON documents.
func NewJSON(opts Options) (*Gateway, error) {
	opts.ResponseType = stash.ResponseJSON
	return New(opts)
}

// Name returns the gateway name.
func (g *Gateway) Name() string { return g.cfg.name }

// ResponseType returns the configured response type.
func (g *Gateway) ResponseType() stash.ResponseType { return g.cfg.responseType }

// Store returns the backing store.
func (g *Gateway) Store() stash.Store { return g.store }

// Clear removes every entry from the store.
func (g *Gateway) Clear(ctx context.Context) error {
	return g.store.Purge(ctx)
}

// Invalidate removes the entry for uri and scope.
func (g *Gateway) Invalidate(ctx context.Context, uri, scope string) error {
	return g.store.Delete(ctx, DeriveKey(uri, scope))
}

// Size returns the number of live entries in the store.
func (g *Gateway) Size(ctx context.Context) (int, error) {
	return g.store.Len(ctx)
}

// Middleware returns the gateway as chi-compatible middleware.
func (g *Gateway) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		uri := requestURI(r)

		st := &state{entry: Entry{Gateway: g}}
		var scope string

		if g.cfg.shouldCheckCache(w, r) {
			scope = g.cfg.auth(w, r)
			val, ok, err := g.lookup(r.Context(), DeriveKey(uri, scope))
			elapsed := time.Since(start)
			if err != nil {
				slog.LogAttrs(r.Context(), slog.LevelError, "cache lookup failed",
					slog.String("gateway", g.cfg.name),
					slog.String("uri", uri),
					slog.String("error", err.Error()),
					slog.String("request_id", stash.RequestIDFromContext(r.Context())),
				)
				http.Error(w, "cache unavailable", http.StatusInternalServerError)
				return
			}

			if ok {
				g.cfg.onCacheHit(uri, elapsed)
				slog.LogAttrs(r.Context(), slog.LevelDebug, "cache hit",
					slog.String("gateway", g.cfg.name),
					slog.String("uri", uri),
					slog.Int64("elapsed_us", elapsed.Microseconds()),
				)
				if !g.cfg.manualResponse {
					if err := WriteValue(w, g.cfg.responseType, val); err != nil {
						slog.LogAttrs(r.Context(), slog.LevelError, "cached value not writable",
							slog.String("gateway", g.cfg.name),
							slog.String("uri", uri),
							slog.String("error", err.Error()),
						)
						http.Error(w, "cached value not writable", http.StatusInternalServerError)
					}
					return
				}
				st.entry.IsCached = true
				st.entry.Value = val
			} else {
				g.cfg.onCacheMiss(uri, elapsed)
				slog.LogAttrs(r.Context(), slog.LevelDebug, "cache miss",
					slog.String("gateway", g.cfg.name),
					slog.String("uri", uri),
					slog.Int64("elapsed_us", elapsed.Microseconds()),
				)
			}
		}

		r = r.WithContext(context.WithValue(r.Context(), ctxKeyState, st))
		st.handle = Handle{g: g, w: w, r: r, key: DeriveKey(uri, scope)}
		next.ServeHTTP(w, r)
	})
}

// lookup queries the store inside a trace span.
func (g *Gateway) lookup(ctx context.Context, key string) (string, bool, error) {
	ctx, span := tracer.Start(ctx, "respcache.lookup")
	defer span.End()
	span.SetAttributes(attribute.String("cache.gateway", g.cfg.name))

	val, ok, err := g.store.Get(ctx, key)
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
	case ok:
		span.SetAttributes(attribute.String("cache.result", "hit"))
	default:
		span.SetAttributes(attribute.String("cache.result", "miss"))
	}
	return val, ok, err
}

// requestURI returns the request target exactly as received, falling back
// to the parsed URL for requests built in-process.
func requestURI(r *http.Request) string {
	if r.RequestURI != "" {
		return r.RequestURI
	}
	return r.URL.RequestURI()
}
