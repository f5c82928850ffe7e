package server

import (
	"log/slog"
	"net/http"
)

var (
	okBody       = []byte("ok")
	notReadyBody = []byte("not ready")
	plainCT      = []string{"text/plain"}
)

func (s *server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header()["Content-Type"] = plainCT
	w.WriteHeader(http.StatusOK)
	w.Write(okBody)
}

// handleReadyz reports whether the cache stores are reachable. The failure
// reason is logged, not returned, since readiness probes are unauthenticated.
func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header()["Content-Type"] = plainCT
	if s.deps.ReadyCheck != nil {
		if err := s.deps.ReadyCheck(r.Context()); err != nil {
			slog.LogAttrs(r.Context(), slog.LevelWarn, "readiness check failed",
				slog.String("error", err.Error()),
			)
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write(notReadyBody)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write(okBody)
}
