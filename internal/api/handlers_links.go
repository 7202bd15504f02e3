package api

import (
	"encoding/json"
	"net/http"

	"github.com/dgallion1/dochighlight/internal/overview"
	"github.com/go-chi/chi/v5"
)

type linkRequest struct {
	SpanID   string `json:"span_id"`
	EntityID string `json:"entity_id"`
	Color    string `json:"color"`
}

func (s *Server) handleListLinks(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"links": v.Links()})
}

func (s *Server) handleAddLink(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if err := v.AddLink(req.SpanID, req.EntityID, req.Color); err != nil {
		writeViewError(w, err)
		return
	}
	stroke, _ := v.Stroke(req.SpanID)
	writeJSON(w, http.StatusOK, map[string]any{"link": req, "stroke": stroke})
}

// handleRemoveLink takes span_id and entity_id as query parameters.
func (s *Server) handleRemoveLink(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	spanID := r.URL.Query().Get("span_id")
	entityID := r.URL.Query().Get("entity_id")
	if spanID == "" || entityID == "" {
		jsonError(w, "span_id and entity_id are required", http.StatusBadRequest)
		return
	}
	if err := v.RemoveLink(spanID, entityID); err != nil {
		writeViewError(w, err)
		return
	}
	stroke, _ := v.Stroke(spanID)
	writeJSON(w, http.StatusOK, map[string]any{"span_id": spanID, "entity_id": entityID, "stroke": stroke})
}

func (s *Server) handleEntity(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	entityID := chi.URLParam(r, "entityID")
	spans, err := v.EntitySpans(entityID)
	if err != nil {
		writeViewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entity_id": entityID, "span_ids": spans})
}

func (s *Server) handleRemoveEntity(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	entityID := chi.URLParam(r, "entityID")
	spans, err := v.RemoveEntity(entityID)
	if err != nil {
		writeViewError(w, err)
		return
	}
	s.log.Info("entity removed", "doc_id", v.ID(), "entity_id", entityID, "spans", len(spans))
	writeJSON(w, http.StatusOK, map[string]any{"entity_id": entityID, "span_ids": spans})
}

func (s *Server) handleEntityPages(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	entityID := chi.URLParam(r, "entityID")
	pages, err := v.PagesOfEntity(entityID)
	if err != nil {
		writeViewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entity_id": entityID, "pages": pages})
}

func (s *Server) handleMarkers(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	markers := v.Markers()
	if markers == nil {
		markers = []overview.Marker{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"markers": markers})
}

// handleSetOverview resizes the overview and returns the reprojected markers.
func (s *Server) handleSetOverview(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	var size overview.Size
	if err := json.NewDecoder(r.Body).Decode(&size); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if size.Width < 0 || size.Height <= 0 {
		jsonError(w, "height must be positive and width non-negative", http.StatusBadRequest)
		return
	}
	markers := v.SetOverview(size)
	if markers == nil {
		markers = []overview.Marker{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"overview": size, "markers": markers})
}
