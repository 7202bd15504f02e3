package viewer

import (
	"fmt"
	"sort"

	"github.com/dgallion1/dochighlight/internal/overview"
	"github.com/dgallion1/dochighlight/internal/raster"
)

// Link associates a span with a highlighted entity.
type Link struct {
	SpanID   string `json:"span_id"`
	EntityID string `json:"entity_id"`
	Color    string `json:"color"`
}

// AddLink links spanID to entityID. Re-adding an existing link moves it to
// the most recent position, so its color becomes the span's color.
func (v *View) AddLink(spanID, entityID, color string) error {
	if !v.doc.HasSpan(spanID) {
		return notFound("span", spanID)
	}
	if entityID == "" {
		return fmt.Errorf("%w: entity id is required", ErrInvalidArgument)
	}
	if _, err := raster.ParseColor(color); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidColor, err)
	}

	v.mu.Lock()
	ls := removeLink(v.links[spanID], entityID)
	v.links[spanID] = append(ls, link{entityID: entityID, color: color})
	if !contains(v.entities[entityID], spanID) {
		v.entities[entityID] = append(v.entities[entityID], spanID)
	}
	v.markers.Set(spanID, color, v.extentsLocked(spanID))
	stroke := v.strokeLocked(spanID)
	markers := v.markers.All()
	v.touchLocked()
	v.mu.Unlock()

	v.log.Debug("link added", "span_id", spanID, "entity_id", entityID)
	v.sink.StrokeChanged(v.id, spanID, stroke)
	v.sink.MarkersChanged(v.id, markers)
	return nil
}

// RemoveLink unlinks spanID from entityID. The span falls back to the color
// of its most recent remaining link, or loses its marker.
func (v *View) RemoveLink(spanID, entityID string) error {
	if !v.doc.HasSpan(spanID) {
		return notFound("span", spanID)
	}

	v.mu.Lock()
	if !hasLink(v.links[spanID], entityID) {
		v.mu.Unlock()
		return notFound("link", spanID+"/"+entityID)
	}
	v.unlinkLocked(spanID, entityID)
	stroke := v.strokeLocked(spanID)
	markers := v.markers.All()
	v.touchLocked()
	v.mu.Unlock()

	v.log.Debug("link removed", "span_id", spanID, "entity_id", entityID)
	v.sink.StrokeChanged(v.id, spanID, stroke)
	v.sink.MarkersChanged(v.id, markers)
	return nil
}

// RemoveEntity removes every link of entityID.
func (v *View) RemoveEntity(entityID string) ([]string, error) {
	v.mu.Lock()
	spans, ok := v.entities[entityID]
	if !ok {
		v.mu.Unlock()
		return nil, notFound("entity", entityID)
	}
	spans = append([]string(nil), spans...)
	strokes := make([]raster.Stroke, len(spans))
	for i, s := range spans {
		v.unlinkLocked(s, entityID)
		strokes[i] = v.strokeLocked(s)
	}
	markers := v.markers.All()
	v.touchLocked()
	v.mu.Unlock()

	for i, s := range spans {
		v.sink.StrokeChanged(v.id, s, strokes[i])
	}
	v.sink.MarkersChanged(v.id, markers)
	return spans, nil
}

func (v *View) unlinkLocked(spanID, entityID string) {
	ls := removeLink(v.links[spanID], entityID)
	if len(ls) == 0 {
		delete(v.links, spanID)
		v.markers.Remove(spanID)
	} else {
		v.links[spanID] = ls
		v.markers.Recolor(spanID, ls[len(ls)-1].color)
	}

	spans := v.entities[entityID]
	for i, s := range spans {
		if s == spanID {
			spans = append(spans[:i:i], spans[i+1:]...)
			break
		}
	}
	if len(spans) == 0 {
		delete(v.entities, entityID)
	} else {
		v.entities[entityID] = spans
	}
}

// LinkColor returns the span's effective color: that of its most recently
// added remaining link.
func (v *View) LinkColor(spanID string) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.colorLocked(spanID)
}

func (v *View) colorLocked(spanID string) (string, bool) {
	ls := v.links[spanID]
	if len(ls) == 0 {
		return "", false
	}
	return ls[len(ls)-1].color, true
}

// Links returns every link ordered by span reading order, then age.
func (v *View) Links() []Link {
	v.mu.Lock()
	defer v.mu.Unlock()
	spans := make([]string, 0, len(v.links))
	for span := range v.links {
		spans = append(spans, span)
	}
	order := func(span string) int {
		if i, ok := v.doc.ReadingOrderIndex(span); ok {
			return i
		}
		return len(v.doc.Sentences)
	}
	sort.Slice(spans, func(i, j int) bool {
		oi, oj := order(spans[i]), order(spans[j])
		if oi != oj {
			return oi < oj
		}
		return spans[i] < spans[j]
	})
	var out []Link
	for _, span := range spans {
		for _, l := range v.links[span] {
			out = append(out, Link{SpanID: span, EntityID: l.entityID, Color: l.color})
		}
	}
	return out
}

// EntitySpans returns the spans linked to entityID.
func (v *View) EntitySpans(entityID string) ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	spans, ok := v.entities[entityID]
	if !ok {
		return nil, notFound("entity", entityID)
	}
	return append([]string(nil), spans...), nil
}

// PagesOfSpan returns the pages spanID appears on.
func (v *View) PagesOfSpan(spanID string) ([]int, error) {
	pages, ok := v.doc.PagesOfSpan(spanID)
	if !ok {
		return nil, notFound("span", spanID)
	}
	return pages, nil
}

// PagesOfEntity returns the union of pages of every span linked to
// entityID.
func (v *View) PagesOfEntity(entityID string) ([]int, error) {
	spans, err := v.EntitySpans(entityID)
	if err != nil {
		return nil, err
	}
	var all []int
	for _, s := range spans {
		pages, _ := v.doc.PagesOfSpan(s)
		all = append(all, pages...)
	}
	return sortedUnique(all), nil
}

// ReadingOrderIndex returns spanID's position in reading order.
func (v *View) ReadingOrderIndex(spanID string) (int, error) {
	i, ok := v.doc.ReadingOrderIndex(spanID)
	if !ok {
		return 0, notFound("span", spanID)
	}
	return i, nil
}

// SpanRange returns the contiguous reading-order range covering spanIDs.
func (v *View) SpanRange(spanIDs ...string) []string {
	return v.doc.SpanRange(spanIDs...)
}

// Markers returns the current overview markers.
func (v *View) Markers() []overview.Marker {
	return v.markers.All()
}

// SetOverview resizes the overview and reprojects every marker.
func (v *View) SetOverview(size overview.Size) []overview.Marker {
	v.mu.Lock()
	content, _ := v.markers.Sizes()
	v.markers.Reproject(content, size)
	markers := v.markers.All()
	v.touchLocked()
	v.mu.Unlock()

	v.sink.MarkersChanged(v.id, markers)
	return markers
}

// refreshMarkersLocked recomputes content size from the rendered pages and
// the extents of every linked span.
func (v *View) refreshMarkersLocked() {
	var content overview.Size
	for _, p := range v.sortedPagesLocked() {
		r := v.pages[p]
		content.Height += float64(r.snap.Height)
		if w := float64(r.snap.Width); w > content.Width {
			content.Width = w
		}
	}
	v.markers.Reproject(content, overview.Size{})
	for span := range v.links {
		c, _ := v.colorLocked(span)
		v.markers.Set(span, c, v.extentsLocked(span))
	}
}

// extentsLocked returns spanID's areas in content coordinates: each page is
// offset by the heights of the rendered pages before it.
func (v *View) extentsLocked(spanID string) []overview.Extent {
	var out []overview.Extent
	var offset float64
	for _, p := range v.sortedPagesLocked() {
		r := v.pages[p]
		if sl, ok := r.spans[spanID]; ok {
			for _, a := range sl.Areas {
				out = append(out, overview.Extent{
					Top:    offset + a.Bounds.Y.Lo,
					Bottom: offset + a.Bounds.Y.Hi,
					Left:   a.Bounds.X.Lo,
					Right:  a.Bounds.X.Hi,
				})
			}
		}
		offset += float64(r.snap.Height)
	}
	return out
}

func (v *View) sortedPagesLocked() []int {
	out := make([]int, 0, len(v.pages))
	for p := range v.pages {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

func removeLink(ls []link, entityID string) []link {
	out := ls[:0:0]
	for _, l := range ls {
		if l.entityID != entityID {
			out = append(out, l)
		}
	}
	return out
}

func hasLink(ls []link, entityID string) bool {
	for _, l := range ls {
		if l.entityID == entityID {
			return true
		}
	}
	return false
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
