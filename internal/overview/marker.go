// Package overview projects highlighted areas onto the scrollbar overview.
package overview

import (
	"math"
	"sort"
	"sync"
)

// Extent is an area's position in document content coordinates, i.e. page
// offset already applied.
type Extent struct {
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
}

// Size is a width/height pair. A zero Width disables horizontal mapping.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Marker is one area projected into overview space.
type Marker struct {
	SpanID string  `json:"span_id"`
	Area   int     `json:"area"`
	Top    float64 `json:"top"`
	Height float64 `json:"height"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Color  string  `json:"color"`
}

// Project maps e from content space into overview space. A zero content
// dimension yields zero geometry on that axis.
func Project(spanID, color string, e Extent, content, overview Size) Marker {
	m := Marker{SpanID: spanID, Color: color}
	if content.Height > 0 {
		m.Top = math.Floor(e.Top * overview.Height / content.Height)
		m.Height = math.Floor((e.Bottom - e.Top) * overview.Height / content.Height)
	}
	if content.Width > 0 && overview.Width > 0 {
		m.Left = math.Floor(e.Left * overview.Width / content.Width)
		m.Width = math.Floor((e.Right - e.Left) * overview.Width / content.Width)
	}
	return m
}

type entry struct {
	color   string
	extents []Extent
}

// MarkerSet keeps the markers of every linked span. Extents are retained so
// markers can be reprojected when the content or overview size changes.
type MarkerSet struct {
	mu       sync.Mutex
	entries  map[string]*entry
	content  Size
	overview Size
}

func NewMarkerSet(overview Size) *MarkerSet {
	return &MarkerSet{
		entries:  make(map[string]*entry),
		overview: overview,
	}
}

// Set adds or replaces the geometry and color of spanID's markers.
func (s *MarkerSet) Set(spanID, color string, extents []Extent) []Marker {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]Extent, len(extents))
	copy(cp, extents)
	s.entries[spanID] = &entry{color: color, extents: cp}
	return s.projectLocked(spanID)
}

// Recolor changes only the color. It reports false for an unknown span.
func (s *MarkerSet) Recolor(spanID, color string) ([]Marker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[spanID]
	if !ok {
		return nil, false
	}
	e.color = color
	return s.projectLocked(spanID), true
}

// Remove drops spanID's markers and reports whether any existed.
func (s *MarkerSet) Remove(spanID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[spanID]
	delete(s.entries, spanID)
	return ok
}

// Has reports whether spanID currently has markers.
func (s *MarkerSet) Has(spanID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[spanID]
	return ok
}

// Reproject records new content and overview sizes. A zero overview keeps
// the previous one.
func (s *MarkerSet) Reproject(content, overview Size) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content = content
	if overview.Height > 0 || overview.Width > 0 {
		s.overview = overview
	}
}

// Sizes returns the current content and overview sizes.
func (s *MarkerSet) Sizes() (content, overview Size) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content, s.overview
}

// Get returns spanID's markers.
func (s *MarkerSet) Get(spanID string) ([]Marker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[spanID]; !ok {
		return nil, false
	}
	return s.projectLocked(spanID), true
}

// All returns every marker ordered by top, then span id.
func (s *MarkerSet) All() []Marker {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Marker, 0, len(s.entries))
	for id := range s.entries {
		out = append(out, s.projectLocked(id)...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Top != out[j].Top {
			return out[i].Top < out[j].Top
		}
		if out[i].SpanID != out[j].SpanID {
			return out[i].SpanID < out[j].SpanID
		}
		return out[i].Area < out[j].Area
	})
	return out
}

func (s *MarkerSet) projectLocked(spanID string) []Marker {
	e := s.entries[spanID]
	out := make([]Marker, len(e.extents))
	for i, x := range e.extents {
		out[i] = Project(spanID, e.color, x, s.content, s.overview)
		out[i].Area = i
	}
	return out
}
