package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/dgallion1/dochighlight/internal/viewer"
)

// renderResult reports a page series. Failed pages do not fail the request.
type renderResult struct {
	Pages  []viewer.PageSnapshot `json:"pages"`
	Errors []string              `json:"errors,omitempty"`
}

func (s *Server) handleRenderPage(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	page, ok := pageParam(w, r)
	if !ok {
		return
	}
	force := r.URL.Query().Get("force") == "true"

	snap, err := v.RenderPage(r.Context(), page, force)
	if err != nil {
		s.log.Warn("render page failed", "doc_id", v.ID(), "page", page, "error", err)
		writeViewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleRenderUntil lays out pages 1..until, defaulting to every page.
func (s *Server) handleRenderUntil(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	until := v.NumPages()
	if q := r.URL.Query().Get("until"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			jsonError(w, "until must be a positive integer", http.StatusBadRequest)
			return
		}
		until = n
	}

	pages, err := v.RenderUntil(r.Context(), until)
	s.writeSeries(w, v, pages, err)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	pages, err := v.Refresh(r.Context())
	s.writeSeries(w, v, pages, err)
}

func (s *Server) writeSeries(w http.ResponseWriter, v *viewer.View, pages []viewer.PageSnapshot, err error) {
	res := renderResult{Pages: pages}
	if res.Pages == nil {
		res.Pages = []viewer.PageSnapshot{}
	}
	if err != nil {
		s.log.Warn("render series incomplete", "doc_id", v.ID(), "rendered", len(pages), "error", err)
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range joined.Unwrap() {
				res.Errors = append(res.Errors, e.Error())
			}
		} else {
			res.Errors = []string{err.Error()}
		}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleShapes(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	page, ok := pageParam(w, r)
	if !ok {
		return
	}
	snap, found := v.Page(page)
	if !found {
		writeViewError(w, &viewer.NotFoundError{Kind: "rendered page", ID: strconv.Itoa(page)})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	page, ok := pageParam(w, r)
	if !ok {
		return
	}
	png, err := v.Overlay(page)
	if err != nil {
		writeViewError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Write(png)
}

// handleHit resolves the span under page pixel (x, y).
func (s *Server) handleHit(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	page, ok := pageParam(w, r)
	if !ok {
		return
	}
	x, errX := strconv.ParseFloat(r.URL.Query().Get("x"), 64)
	y, errY := strconv.ParseFloat(r.URL.Query().Get("y"), 64)
	if errX != nil || errY != nil {
		jsonError(w, "x and y must be numbers", http.StatusBadRequest)
		return
	}
	spanID, handle, found := v.SpanAt(page, x, y)
	if !found {
		writeViewError(w, &viewer.NotFoundError{Kind: "span at", ID: fmt.Sprintf("%d:%g,%g", page, x, y)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"span_id": spanID, "handle": handle, "page": page})
}
