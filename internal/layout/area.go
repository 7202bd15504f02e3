package layout

import (
	"github.com/golang/geo/r2"
)

// MarginFunc returns the interline margin to use on a page. When ok is
// false the candidate line's own height is used instead.
type MarginFunc func(page int) (margin float64, ok bool)

// Area is a vertically contiguous run of lines belonging to one span.
// Lines are kept in insertion order, which is top-to-bottom reading order.
type Area struct {
	SpanID string  `json:"span_id"`
	Lines  []Line  `json:"lines"`
	Bounds r2.Rect `json:"-"`
	Page   int     `json:"page"`
}

// NewArea builds an area from lines without applying any membership test.
func NewArea(spanID string, lines ...Line) Area {
	b := areaBuilder{spanID: spanID}
	for _, l := range lines {
		b.add(l)
	}
	return b.area()
}

// Accepts reports whether l is next to this area: same page and l's
// midpoint within margin of the current vertical extent.
func (a Area) Accepts(l Line, margin float64) bool {
	if len(a.Lines) == 0 {
		return true
	}
	if l.Page != a.Page {
		return false
	}
	if l.MidY-margin > a.Bounds.Y.Hi {
		return false
	}
	if l.MidY+margin < a.Bounds.Y.Lo {
		return false
	}
	return true
}

// ClusterAreas groups a span's lines into areas with a single forward pass.
// margin may be nil.
func ClusterAreas(spanID string, lines []Line, margin MarginFunc) []Area {
	if len(lines) == 0 {
		return nil
	}
	var areas []Area
	cur := areaBuilder{spanID: spanID}
	for _, l := range lines {
		delta := l.Height()
		if margin != nil {
			if m, ok := margin(l.Page); ok {
				delta = m
			}
		}
		if !cur.accepts(l, delta) {
			areas = append(areas, cur.area())
			cur = areaBuilder{spanID: spanID}
		}
		cur.add(l)
	}
	return append(areas, cur.area())
}

type areaBuilder struct {
	spanID string
	lines  []Line
	bounds r2.Rect
	page   int
}

func (b *areaBuilder) accepts(l Line, margin float64) bool {
	return Area{Lines: b.lines, Bounds: b.bounds, Page: b.page}.Accepts(l, margin)
}

func (b *areaBuilder) add(l Line) {
	if len(b.lines) == 0 {
		b.bounds = l.Bounds
		b.page = l.Page
	} else {
		b.bounds = b.bounds.Union(l.Bounds)
	}
	b.lines = append(b.lines, l)
}

func (b *areaBuilder) area() Area {
	lines := make([]Line, len(b.lines))
	copy(lines, b.lines)
	return Area{SpanID: b.spanID, Lines: lines, Bounds: b.bounds, Page: b.page}
}
