package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	stash "github.com/eugener/stash/internal"
)

// maxAdminBody is the maximum allowed admin request body size (1 MB).
const maxAdminBody = 1 << 20

// decodeJSON limits body size, decodes JSON into v, and writes a 400 on error.
// Returns true if decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxAdminBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body"))
		return false
	}
	return true
}

// writeAdminError logs the full error server-side and returns a sanitized
// message to the client to avoid leaking internal details (e.g. SQLite errors).
func writeAdminError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	switch {
	case errors.Is(err, stash.ErrNotFound):
		writeJSON(w, status, errorResponse("not found"))
	case errors.Is(err, stash.ErrBadRequest):
		writeJSON(w, status, errorResponse(err.Error()))
	default:
		slog.LogAttrs(r.Context(), slog.LevelError, "admin error",
			slog.String("error", err.Error()),
			slog.String("request_id", stash.RequestIDFromContext(r.Context())),
		)
		writeJSON(w, status, errorResponse("internal error"))
	}
}

type listResponse struct {
	Data any `json:"data"`
}

// cacheInfo describes one mounted cache.
type cacheInfo struct {
	Name         string             `json:"name"`
	Prefix       string             `json:"prefix"`
	ResponseType stash.ResponseType `json:"response_type"`
	Entries      *int               `json:"entries"` // null when the store cannot count
}

func (s *server) describe(r *http.Request, o Origin) cacheInfo {
	info := cacheInfo{
		Name:         o.Gateway.Name(),
		Prefix:       o.Prefix,
		ResponseType: o.Gateway.ResponseType(),
	}
	n, err := o.Gateway.Size(r.Context())
	if err != nil {
		slog.LogAttrs(r.Context(), slog.LevelWarn, "cache size unavailable",
			slog.String("route", info.Name),
			slog.String("error", err.Error()),
		)
		return info
	}
	info.Entries = &n
	return info
}

// lookupOrigin resolves the {route} URL parameter.
func (s *server) lookupOrigin(r *http.Request) (Origin, error) {
	name := chi.URLParam(r, "route")
	o, ok := s.origins[name]
	if !ok {
		return Origin{}, fmt.Errorf("cache %q: %w", name, stash.ErrNotFound)
	}
	return o, nil
}

func (s *server) handleListCaches(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.origins))
	for name := range s.origins {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]cacheInfo, 0, len(names))
	for _, name := range names {
		out = append(out, s.describe(r, s.origins[name]))
	}
	writeJSON(w, http.StatusOK, listResponse{Data: out})
}

func (s *server) handleGetCache(w http.ResponseWriter, r *http.Request) {
	o, err := s.lookupOrigin(r)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.describe(r, o))
}

func (s *server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	o, err := s.lookupOrigin(r)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	if err := o.Gateway.Clear(r.Context()); err != nil {
		writeAdminError(w, r, err)
		return
	}
	slog.LogAttrs(r.Context(), slog.LevelInfo, "cache cleared",
		slog.String("route", o.Gateway.Name()),
	)
	w.WriteHeader(http.StatusNoContent)
}

// invalidateRequest names one entry by the request URI that produced it.
type invalidateRequest struct {
	Path  string `json:"path"`  // request URI including prefix and query, e.g. "/api/items?q=0"
	Scope string `json:"scope"` // auth scope, empty for unscoped entries
}

func (s *server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	o, err := s.lookupOrigin(r)
	if err != nil {
		writeAdminError(w, r, err)
		return
	}
	var req invalidateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !strings.HasPrefix(req.Path, "/") {
		writeAdminError(w, r, fmt.Errorf("path must start with /: %w", stash.ErrBadRequest))
		return
	}
	if err := o.Gateway.Invalidate(r.Context(), req.Path, req.Scope); err != nil {
		writeAdminError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
