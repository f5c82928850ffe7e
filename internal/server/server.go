// Package server implements the HTTP transport layer for stash: the caching
// reverse proxy routes, the admin API and the system endpoints.
package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/eugener/stash/internal/auth"
	"github.com/eugener/stash/internal/circuitbreaker"
	"github.com/eugener/stash/internal/origin"
	"github.com/eugener/stash/internal/respcache"
	"github.com/eugener/stash/internal/telemetry"
)

// ReadyChecker reports whether the system is ready to serve traffic.
type ReadyChecker func(ctx context.Context) error

// Origin is an upstream mounted under Prefix behind a cache gateway. The
// gateway must run in manual-response mode; the origin handler writes hits.
type Origin struct {
	Prefix  string
	Gateway *respcache.Gateway
	Client  *origin.Client
	Breaker *circuitbreaker.Breaker // nil = no breaker
}

// Deps holds all dependencies for the HTTP server.
type Deps struct {
	Origins        []Origin
	AdminKey       auth.StaticKey     // zero value = admin API open
	ReadyCheck     ReadyChecker       // nil = always ready (for tests)
	Metrics        *telemetry.Metrics // nil = no metrics
	MetricsHandler http.Handler       // nil = no /metrics endpoint
}

// New creates an http.Handler with all routes and middleware wired.
func New(deps Deps) http.Handler {
	s := &server{deps: deps, origins: make(map[string]Origin, len(deps.Origins))}
	for _, o := range deps.Origins {
		s.origins[o.Gateway.Name()] = o
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(s.recovery)
	r.Use(s.requestID)
	r.Use(s.logging)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}

	// System endpoints (no auth)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// Admin API (static key)
	r.Route("/admin", func(r chi.Router) {
		r.Use(s.adminAuth)
		r.Get("/caches", s.handleListCaches)
		r.Get("/caches/{route}", s.handleGetCache)
		r.Delete("/caches/{route}", s.handleClearCache)
		r.Post("/caches/{route}/invalidate", s.handleInvalidate)
	})

	// Cached origins
	for _, o := range deps.Origins {
		h := r.With(o.Gateway.Middleware)
		prefix := strings.TrimSuffix(o.Prefix, "/")
		handler := s.originHandler(o)
		h.Handle(prefix+"/*", handler)
		if prefix != "" {
			h.Handle(prefix, handler)
		}
	}

	return r
}

type server struct {
	deps    Deps
	origins map[string]Origin // by gateway name
}
