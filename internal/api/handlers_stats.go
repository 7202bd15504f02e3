package api

import (
	"encoding/json"
	"net/http"
)

func (s *Server) handleLayoutStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		jsonError(w, "layout stats unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"open_documents": s.registry.Len(),
		"stats":          s.stats.Snapshot(),
	})
}

func (s *Server) handleDataTypes(w http.ResponseWriter, r *http.Request) {
	if s.taxonomy == nil {
		jsonError(w, "taxonomy unavailable", http.StatusServiceUnavailable)
		return
	}
	idx, err := s.taxonomy.DataTypes(r.Context())
	if err != nil {
		s.log.Error("taxonomy fetch failed", "error", err)
		jsonError(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, idx)
}
