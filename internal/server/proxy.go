package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	stash "github.com/eugener/stash/internal"
	"github.com/eugener/stash/internal/circuitbreaker"
	"github.com/eugener/stash/internal/origin"
	"github.com/eugener/stash/internal/respcache"
)

// X-Cache reports whether the body came from the cache.
const cacheHeader = "X-Cache"

var (
	cacheHit  = []string{"HIT"}
	cacheMiss = []string{"MISS"}
)

// originHandler serves cache hits from the request's Entry and fetches
// misses from the upstream. 200 responses to safe methods are captured
// through the request's Handle; anything else is relayed uncached.
func (s *server) originHandler(o Origin) http.HandlerFunc {
	route := o.Gateway.Name()
	return func(w http.ResponseWriter, r *http.Request) {
		if entry := respcache.FromRequest(r); entry != nil && entry.IsCached {
			w.Header()[cacheHeader] = cacheHit
			err := respcache.WriteValue(w, entry.Gateway.ResponseType(), entry.Value)
			if !errors.Is(err, stash.ErrInvalidJSON) {
				return
			}
			// Nothing was written; refetch and let the capture replace the entry.
			delete(w.Header(), cacheHeader)
			slog.LogAttrs(r.Context(), slog.LevelWarn, "cached value is not valid json, refetching",
				slog.String("route", route),
			)
		}

		if o.Breaker != nil && !o.Breaker.Allow() {
			if s.deps.Metrics != nil {
				s.deps.Metrics.OriginRejected.WithLabelValues(route).Inc()
			}
			writeJSON(w, http.StatusServiceUnavailable, errorResponse("upstream unavailable"))
			return
		}

		start := time.Now()
		resp, err := o.Client.Fetch(r.Context(), r)
		if o.Breaker != nil {
			var status int
			if resp != nil {
				status = resp.StatusCode
			}
			// Oversized bodies do not count against the upstream.
			berr := err
			if errors.Is(err, origin.ErrBodyTooLarge) {
				berr = nil
			}
			o.Breaker.Record(circuitbreaker.Weight(status, berr))
		}
		if s.deps.Metrics != nil {
			s.deps.Metrics.OriginDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
		if err != nil {
			if s.deps.Metrics != nil {
				s.deps.Metrics.OriginErrors.WithLabelValues(route).Inc()
			}
			slog.LogAttrs(r.Context(), slog.LevelError, "origin fetch failed",
				slog.String("route", route),
				slog.String("error", err.Error()),
				slog.String("request_id", stash.RequestIDFromContext(r.Context())),
			)
			msg := "upstream request failed"
			if errors.Is(err, origin.ErrBodyTooLarge) {
				msg = "upstream response too large"
			}
			writeJSON(w, http.StatusBadGateway, errorResponse(msg))
			return
		}

		w.Header()[cacheHeader] = cacheMiss
		h := respcache.HandleFromRequest(r)
		// Send always answers 200, so anything else is passed through as is.
		if resp.StatusCode != http.StatusOK || h == nil || !respcache.SafeMethods(w, r) {
			relay(w, resp)
			return
		}

		if _, err := h.Send(resp.Body); err != nil {
			if h.Sent() {
				slog.LogAttrs(r.Context(), slog.LevelWarn, "client write failed",
					slog.String("route", route),
					slog.String("error", err.Error()),
				)
				return
			}
			switch {
			case errors.Is(err, stash.ErrInvalidJSON):
				slog.LogAttrs(r.Context(), slog.LevelWarn, "origin returned invalid json, not cached",
					slog.String("route", route),
				)
			default:
				if s.deps.Metrics != nil {
					s.deps.Metrics.CacheStoreErrors.WithLabelValues(route).Inc()
				}
				slog.LogAttrs(r.Context(), slog.LevelError, "cache store failed",
					slog.String("route", route),
					slog.String("error", err.Error()),
					slog.String("request_id", stash.RequestIDFromContext(r.Context())),
				)
			}
			relay(w, resp)
		}
	}
}

// relay writes an upstream response through unchanged.
func relay(w http.ResponseWriter, resp *origin.Response) {
	for key, vals := range resp.Header {
		w.Header()[key] = vals
	}
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func errorResponse(msg string) apiError {
	var e apiError
	e.Error.Message = msg
	return e
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, stash.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, stash.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, stash.ErrBadRequest), errors.Is(err, stash.ErrInvalidJSON):
		return http.StatusBadRequest
	case errors.Is(err, stash.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// jsonCT is a pre-allocated header value slice. Direct map assignment
// (w.Header()["Content-Type"] = jsonCT) avoids the []string{v} alloc
// that Header.Set creates on every call. Saves 1 alloc/req.
var jsonCT = []string{"application/json"}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
