package viewer

import (
	"sort"

	"github.com/dgallion1/dochighlight/internal/raster"
)

// Select marks spans as selected. Unknown ids fail the whole call.
func (v *View) Select(spanIDs ...string) error {
	return v.setSelected(true, spanIDs)
}

// Unselect clears the selection of spanIDs, or of every span when none are
// given.
func (v *View) Unselect(spanIDs ...string) error {
	if len(spanIDs) == 0 {
		v.mu.Lock()
		for s := range v.selected {
			spanIDs = append(spanIDs, s)
		}
		v.mu.Unlock()
		sort.Strings(spanIDs)
	}
	return v.setSelected(false, spanIDs)
}

func (v *View) setSelected(on bool, spanIDs []string) error {
	for _, s := range spanIDs {
		if !v.doc.HasSpan(s) {
			return notFound("span", s)
		}
	}
	v.mu.Lock()
	strokes := make([]raster.Stroke, len(spanIDs))
	for i, s := range spanIDs {
		if on {
			v.selected[s] = true
		} else {
			delete(v.selected, s)
		}
		strokes[i] = v.strokeLocked(s)
	}
	v.touchLocked()
	v.mu.Unlock()

	for i, s := range spanIDs {
		v.sink.StrokeChanged(v.id, s, strokes[i])
	}
	return nil
}

// Selected returns the selected spans in reading order.
func (v *View) Selected() []string {
	v.mu.Lock()
	ids := make([]string, 0, len(v.selected))
	for s := range v.selected {
		ids = append(ids, s)
	}
	v.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool {
		a, _ := v.doc.ReadingOrderIndex(ids[i])
		b, _ := v.doc.ReadingOrderIndex(ids[j])
		if a != b {
			return a < b
		}
		return ids[i] < ids[j]
	})
	return ids
}

// Hover moves the hover highlight to spanID.
func (v *View) Hover(spanID string) error {
	if !v.doc.HasSpan(spanID) {
		return notFound("span", spanID)
	}
	v.mu.Lock()
	prev := v.hovered
	v.hovered = spanID
	var prevStroke raster.Stroke
	if prev != "" && prev != spanID {
		prevStroke = v.strokeLocked(prev)
	}
	stroke := v.strokeLocked(spanID)
	v.mu.Unlock()

	if prev != "" && prev != spanID {
		v.sink.StrokeChanged(v.id, prev, prevStroke)
	}
	v.sink.StrokeChanged(v.id, spanID, stroke)
	return nil
}

// EndHover drops the hover highlight if spanID holds it.
func (v *View) EndHover(spanID string) error {
	if !v.doc.HasSpan(spanID) {
		return notFound("span", spanID)
	}
	v.mu.Lock()
	if v.hovered == spanID {
		v.hovered = ""
	}
	stroke := v.strokeLocked(spanID)
	v.mu.Unlock()

	v.sink.StrokeChanged(v.id, spanID, stroke)
	return nil
}

// Stroke returns how spanID's outline is currently drawn.
func (v *View) Stroke(spanID string) (raster.Stroke, error) {
	if !v.doc.HasSpan(spanID) {
		return raster.Stroke{}, notFound("span", spanID)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.strokeLocked(spanID), nil
}

func (v *View) strokeLocked(spanID string) raster.Stroke {
	c, _ := v.colorLocked(spanID)
	return raster.ResolveStroke(v.opts, c, v.selected[spanID], v.hovered == spanID)
}
