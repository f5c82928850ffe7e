package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eugener/stash/internal/telemetry"
)

// statusText maps HTTP status codes to pre-allocated strings,
// avoiding a strconv.Itoa allocation per request.
var statusText [600]string

func init() {
	for i := range statusText {
		statusText[i] = strconv.Itoa(i)
	}
}

// metricsMiddleware records request duration and active count, and counts
// requests by route, status and the X-Cache result the handler wrote.
func metricsMiddleware(m *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.ActiveRequests.Inc()
			start := time.Now()

			sw := statusWriterPool.Get().(*statusWriter)
			sw.ResponseWriter = w
			sw.status = http.StatusOK
			sw.wroteHeader = false

			next.ServeHTTP(sw, r)

			elapsed := time.Since(start).Seconds()
			status := sw.status
			result := cacheResult(w.Header())
			sw.ResponseWriter = nil
			statusWriterPool.Put(sw)

			m.ActiveRequests.Dec()

			pattern := routePattern(r)
			statusStr := statusText[status]

			m.RequestsTotal.WithLabelValues(r.Method, pattern, statusStr, result).Inc()
			m.RequestDuration.WithLabelValues(r.Method, pattern).Observe(elapsed)
		})
	}
}

// unmatchedRoute labels requests no route claimed, so arbitrary 404 paths
// cannot grow the label set.
const unmatchedRoute = "unmatched"

// routePattern returns the chi route pattern for bounded cardinality.
// Origin traffic reports the mount pattern, e.g. "/api/*".
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return unmatchedRoute
}

// cacheResult maps the X-Cache header written by an origin handler to a
// metric label. Responses that never consulted a cache report "none".
func cacheResult(h http.Header) string {
	if v := h[cacheHeader]; len(v) > 0 {
		switch v[0] {
		case "HIT":
			return "hit"
		case "MISS":
			return "miss"
		}
	}
	return "none"
}
