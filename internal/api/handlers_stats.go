package api

import (
	"net/http"
)

func (s *Server) handleSourceStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Stats == nil {
		jsonError(w, "source stats unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"source": "notion",
		"stats":  s.deps.Stats.Snapshot(),
	})
}
