package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleSpanPages(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	spanID := chi.URLParam(r, "spanID")
	pages, err := v.PagesOfSpan(spanID)
	if err != nil {
		writeViewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"span_id": spanID, "pages": pages})
}

func (s *Server) handleSpanOrder(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	spanID := chi.URLParam(r, "spanID")
	idx, err := v.ReadingOrderIndex(spanID)
	if err != nil {
		writeViewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"span_id": spanID, "index": idx})
}

func (s *Server) handleSpanStroke(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	stroke, err := v.Stroke(chi.URLParam(r, "spanID"))
	if err != nil {
		writeViewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stroke)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	jpg, err := v.Snapshot(r.Context(), chi.URLParam(r, "spanID"))
	if err != nil {
		writeViewError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(jpg)))
	w.Write(jpg)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	if err := v.Select(chi.URLParam(r, "spanID")); err != nil {
		writeViewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"selected": v.Selected()})
}

func (s *Server) handleUnselect(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	if err := v.Unselect(chi.URLParam(r, "spanID")); err != nil {
		writeViewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"selected": v.Selected()})
}

func (s *Server) handleHover(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	spanID := chi.URLParam(r, "spanID")
	if err := v.Hover(spanID); err != nil {
		writeViewError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEndHover(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	if err := v.EndHover(chi.URLParam(r, "spanID")); err != nil {
		writeViewError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"selected": v.Selected()})
}

func (s *Server) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	if err := v.Unselect(); err != nil {
		writeViewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"selected": []string{}})
}

type rangeRequest struct {
	SpanIDs []string `json:"span_ids"`
	Select  bool     `json:"select"`
}

// handleRange expands span_ids to their contiguous reading-order range and
// optionally selects it.
func (s *Server) handleRange(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	var req rangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	spans := v.SpanRange(req.SpanIDs...)
	if req.Select && len(spans) > 0 {
		if err := v.Select(spans...); err != nil {
			writeViewError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"span_ids": spans})
}
