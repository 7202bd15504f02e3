package layout

import (
	"math"
	"sort"

	"github.com/golang/geo/r2"
)

// Pattern identifies which decomposition produced an area's shapes.
type Pattern int

const (
	PatternBlock      Pattern = 1 // single rectangle
	PatternDisjoint   Pattern = 2 // two rows that do not overlap horizontally
	PatternLeftFlush  Pattern = 3 // left edges flush, right edge indented at the bottom
	PatternRightFlush Pattern = 4 // right edges flush, left edge indented at the top
	PatternParagraph  Pattern = 5 // both edges indented around a wider body
)

func (p Pattern) String() string {
	switch p {
	case PatternBlock:
		return "block"
	case PatternDisjoint:
		return "disjoint"
	case PatternLeftFlush:
		return "left-flush"
	case PatternRightFlush:
		return "right-flush"
	case PatternParagraph:
		return "paragraph"
	default:
		return "unknown"
	}
}

// Segment is one straight border stroke.
type Segment struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Length returns the Euclidean length of the segment.
func (s Segment) Length() float64 {
	return math.Hypot(s.X1-s.X0, s.Y1-s.Y0)
}

// Offset translates the segment by (dx, dy).
func (s Segment) Offset(dx, dy float64) Segment {
	return Segment{X0: s.X0 + dx, Y0: s.Y0 + dy, X1: s.X1 + dx, Y1: s.Y1 + dy}
}

// Shape is one rectangle of a highlight. X/Y place it on the page; Borders
// are local to its top-left corner and trace only the parts of its
// perimeter that lie on the outer boundary of the area's union.
type Shape struct {
	SpanID  string    `json:"span_id"`
	Page    int       `json:"page"`
	Area    int       `json:"area"`
	Pattern Pattern   `json:"pattern"`
	X       float64   `json:"x"`
	Y       float64   `json:"y"`
	W       float64   `json:"w"`
	H       float64   `json:"h"`
	Borders []Segment `json:"borders"`
}

// Bounds returns the shape rectangle in page coordinates.
func (s Shape) Bounds() r2.Rect {
	return r2.RectFromPoints(r2.Point{X: s.X, Y: s.Y}, r2.Point{X: s.X + s.W, Y: s.Y + s.H})
}

// PageBorders returns the border segments in page coordinates.
func (s Shape) PageBorders() []Segment {
	out := make([]Segment, len(s.Borders))
	for i, b := range s.Borders {
		out[i] = b.Offset(s.X, s.Y)
	}
	return out
}

// rect is a shape under construction, borders in page coordinates.
type rect struct {
	min, max r2.Point
	borders  []Segment
}

// centerSquare is spanned by the first line's left edge and the last
// line's right edge, between the first and last inter-line gaps.
type centerSquare struct {
	topLeft, topRight, bottomLeft, bottomRight r2.Point
}

// BuildShapes decomposes an area into one to three rectangles plus their
// outer border path. An area matching none of the five patterns yields an
// *InputError.
func BuildShapes(area Area, opts Options) ([]Shape, error) {
	if len(area.Lines) == 0 {
		return nil, inputErrorf(area.SpanID, area.Page, "area has no lines")
	}
	lines := make([]Line, len(area.Lines))
	copy(lines, area.Lines)
	sort.SliceStable(lines, func(i, j int) bool {
		if lines[i].Bounds.Y.Lo != lines[j].Bounds.Y.Lo {
			return lines[i].Bounds.Y.Lo < lines[j].Bounds.Y.Lo
		}
		return lines[i].Bounds.X.Lo < lines[j].Bounds.X.Lo
	})

	bw := opts.BorderWidth
	half := bw / 2

	container := lines[0].Bounds
	for _, l := range lines[1:] {
		container = container.Union(l.Bounds)
	}
	container = container.ExpandedByMargin(half)
	if !finiteRect(container) {
		return nil, inputErrorf(area.SpanID, area.Page, "non-finite area bounds")
	}

	first := lines[0]
	last := lines[len(lines)-1]
	second := first
	beforeLast := last
	if len(lines) > 1 {
		second = lines[1]
		beforeLast = lines[len(lines)-2]
	}

	cs := squareOff(centerSquare{
		topLeft:     r2.Point{X: first.Bounds.X.Lo, Y: jsRound((second.Bounds.Y.Lo + first.Bounds.Y.Hi) / 2)},
		bottomRight: r2.Point{X: last.Bounds.X.Hi, Y: jsRound((last.Bounds.Y.Lo + beforeLast.Bounds.Y.Hi) / 2)},
	}, container, 2*bw)

	cMin, cMax := container.Lo(), container.Hi()
	leftFlush := cs.topLeft.X == cMin.X && cs.bottomLeft.X == cMin.X
	rightFlush := cs.topRight.X == cMax.X && cs.bottomRight.X == cMax.X

	var pattern Pattern
	var rects []rect
	switch {
	case len(lines) == 1 || (leftFlush && rightFlush):
		pattern, rects = PatternBlock, blockRects(cMin, cMax)
	case len(lines) == 2 && cs.bottomRight.X < cs.topLeft.X:
		pattern, rects = PatternDisjoint, disjointRects(first, last, cMin, cMax, half)
	case leftFlush:
		pattern, rects = PatternLeftFlush, leftFlushRects(cs, cMin, cMax, half)
	case rightFlush:
		pattern, rects = PatternRightFlush, rightFlushRects(cs, cMin, cMax, half)
	case len(lines) == 2:
		// Two overlapping rows indented on both sides: snap the smaller
		// indentation flush and use the matching two-rectangle cap.
		if cs.topLeft.X-cMin.X <= cMax.X-cs.bottomRight.X {
			cs.topLeft.X, cs.bottomLeft.X = cMin.X, cMin.X
			pattern, rects = PatternLeftFlush, leftFlushRects(cs, cMin, cMax, half)
		} else {
			cs.topRight.X, cs.bottomRight.X = cMax.X, cMax.X
			pattern, rects = PatternRightFlush, rightFlushRects(cs, cMin, cMax, half)
		}
	case cs.topLeft.X > cs.bottomRight.X:
		pattern, rects = PatternParagraph, paragraphRects(cs, cMin, cMax, half)
	default:
		pattern, rects = PatternParagraph, staggeredRects(cs, cMin, cMax, half)
	}

	shapes := make([]Shape, 0, len(rects))
	for _, r := range rects {
		w := r.max.X - r.min.X
		h := r.max.Y - r.min.Y
		if !finite(w) || !finite(h) || w <= 0 || h <= 0 {
			return nil, inputErrorf(area.SpanID, area.Page,
				"%d lines do not fit the %s pattern (degenerate %vx%v rectangle)", len(lines), pattern, w, h)
		}
		local := make([]Segment, len(r.borders))
		for i, b := range r.borders {
			local[i] = b.Offset(-r.min.X, -r.min.Y)
		}
		shapes = append(shapes, Shape{
			SpanID:  area.SpanID,
			Page:    area.Page,
			Pattern: pattern,
			X:       r.min.X,
			Y:       r.min.Y,
			W:       w,
			H:       h,
			Borders: local,
		})
	}
	return shapes, nil
}

// squareOff derives the remaining corners and snaps every coordinate that
// lies within tolerance of the container edge onto that edge.
func squareOff(cs centerSquare, container r2.Rect, tolerance float64) centerSquare {
	cs.topRight = r2.Point{X: cs.bottomRight.X, Y: cs.topLeft.Y}
	cs.bottomLeft = r2.Point{X: cs.topLeft.X, Y: cs.bottomRight.Y}

	snap := func(v, edge float64) float64 {
		if math.Abs(v-edge) <= tolerance {
			return edge
		}
		return v
	}
	lo, hi := container.Lo(), container.Hi()
	cs.topLeft = r2.Point{X: snap(cs.topLeft.X, lo.X), Y: snap(cs.topLeft.Y, lo.Y)}
	cs.topRight = r2.Point{X: snap(cs.topRight.X, hi.X), Y: snap(cs.topRight.Y, lo.Y)}
	cs.bottomLeft = r2.Point{X: snap(cs.bottomLeft.X, lo.X), Y: snap(cs.bottomLeft.Y, hi.Y)}
	cs.bottomRight = r2.Point{X: snap(cs.bottomRight.X, hi.X), Y: snap(cs.bottomRight.Y, hi.Y)}
	return cs
}

func seg(x0, y0, x1, y1 float64) Segment {
	return Segment{X0: x0, Y0: y0, X1: x1, Y1: y1}
}

//	1 1
//	1 1
func blockRects(cMin, cMax r2.Point) []rect {
	return []rect{{
		min: cMin,
		max: cMax,
		borders: []Segment{
			seg(cMin.X, cMin.Y, cMax.X, cMin.Y),
			seg(cMax.X, cMin.Y, cMax.X, cMax.Y),
			seg(cMax.X, cMax.Y, cMin.X, cMax.Y),
			seg(cMin.X, cMax.Y, cMin.X, cMin.Y),
		},
	}}
}

//	0 1
//	1 0
//
// The first row stays open on the right and the last row on the left, where
// the text wraps.
func disjointRects(first, last Line, cMin, cMax r2.Point, half float64) []rect {
	top := first.Bounds.ExpandedByMargin(half)
	bottom := last.Bounds.ExpandedByMargin(half)
	return []rect{
		{
			min: r2.Point{X: top.X.Lo, Y: cMin.Y},
			max: r2.Point{X: cMax.X, Y: top.Y.Hi},
			borders: []Segment{
				seg(top.X.Lo, cMin.Y, cMax.X, cMin.Y),
				seg(cMax.X, top.Y.Hi, top.X.Lo, top.Y.Hi),
				seg(top.X.Lo, cMin.Y, top.X.Lo, top.Y.Hi),
			},
		},
		{
			min: r2.Point{X: cMin.X, Y: bottom.Y.Lo},
			max: r2.Point{X: bottom.X.Hi, Y: cMax.Y},
			borders: []Segment{
				seg(cMin.X, bottom.Y.Lo, bottom.X.Hi, bottom.Y.Lo),
				seg(bottom.X.Hi, bottom.Y.Lo, bottom.X.Hi, cMax.Y),
				seg(cMin.X, cMax.Y, bottom.X.Hi, cMax.Y),
			},
		},
	}
}

//	1 1
//	1 0
func leftFlushRects(cs centerSquare, cMin, cMax r2.Point, half float64) []rect {
	br := cs.bottomRight
	return []rect{
		{
			min: cMin,
			max: r2.Point{X: cMax.X, Y: br.Y},
			borders: []Segment{
				seg(cMin.X, br.Y, cMin.X, cMin.Y),
				seg(cMin.X, cMin.Y, cMax.X, cMin.Y),
				seg(cMax.X, cMin.Y, cMax.X, br.Y),
				seg(cMax.X, br.Y, br.X-half, br.Y),
			},
		},
		{
			min: r2.Point{X: cMin.X, Y: br.Y},
			max: r2.Point{X: br.X, Y: cMax.Y},
			borders: []Segment{
				seg(cMin.X, br.Y, cMin.X, cMax.Y),
				seg(cMin.X, cMax.Y, br.X, cMax.Y),
				seg(br.X, cMax.Y, br.X, br.Y-half),
			},
		},
	}
}

//	0 1
//	1 1
func rightFlushRects(cs centerSquare, cMin, cMax r2.Point, half float64) []rect {
	tl := cs.topLeft
	return []rect{
		{
			min: r2.Point{X: tl.X, Y: cMin.Y},
			max: r2.Point{X: cMax.X, Y: tl.Y},
			borders: []Segment{
				seg(tl.X, tl.Y+half, tl.X, cMin.Y),
				seg(tl.X, cMin.Y, cMax.X, cMin.Y),
				seg(cMax.X, cMin.Y, cMax.X, tl.Y),
			},
		},
		{
			min: r2.Point{X: cMin.X, Y: tl.Y},
			max: cMax,
			borders: []Segment{
				seg(tl.X+half, tl.Y, cMin.X, tl.Y),
				seg(cMin.X, tl.Y, cMin.X, cMax.Y),
				seg(cMin.X, cMax.Y, cMax.X, cMax.Y),
				seg(cMax.X, cMax.Y, cMax.X, tl.Y),
			},
		},
	}
}

//	0 0 1
//	1 1 1
//	1 0 0
//
// Top and bottom caps do not overlap horizontally: cap, full-width body, cap.
func paragraphRects(cs centerSquare, cMin, cMax r2.Point, half float64) []rect {
	tl, br := cs.topLeft, cs.bottomRight
	return []rect{
		{
			min: r2.Point{X: tl.X, Y: cMin.Y},
			max: r2.Point{X: cMax.X, Y: tl.Y},
			borders: []Segment{
				seg(tl.X, tl.Y+half, tl.X, cMin.Y),
				seg(tl.X, cMin.Y, cMax.X, cMin.Y),
				seg(cMax.X, cMin.Y, cMax.X, tl.Y),
			},
		},
		{
			min: r2.Point{X: cMin.X, Y: tl.Y},
			max: r2.Point{X: cMax.X, Y: br.Y},
			borders: []Segment{
				seg(tl.X+half, tl.Y, cMin.X, tl.Y),
				seg(cMin.X, tl.Y, cMin.X, br.Y),
				seg(br.X-half, br.Y, cMax.X, br.Y),
				seg(cMax.X, br.Y, cMax.X, tl.Y),
			},
		},
		{
			min: r2.Point{X: cMin.X, Y: br.Y},
			max: r2.Point{X: br.X, Y: cMax.Y},
			borders: []Segment{
				seg(cMin.X, br.Y, cMin.X, cMax.Y),
				seg(cMin.X, cMax.Y, br.X, cMax.Y),
				seg(br.X, cMax.Y, br.X, br.Y-half),
			},
		},
	}
}

//	0 1 1
//	1 1 1
//	1 1 0
//
// Caps overlap horizontally, so two overlapping L-halves cover the body.
func staggeredRects(cs centerSquare, cMin, cMax r2.Point, half float64) []rect {
	tl, br := cs.topLeft, cs.bottomRight
	return []rect{
		{
			min: r2.Point{X: tl.X, Y: cMin.Y},
			max: r2.Point{X: cMax.X, Y: br.Y},
			borders: []Segment{
				seg(tl.X, tl.Y+half, tl.X, cMin.Y),
				seg(tl.X, cMin.Y, cMax.X, cMin.Y),
				seg(cMax.X, cMin.Y, cMax.X, br.Y),
				seg(cMax.X, br.Y, br.X-half, br.Y),
			},
		},
		{
			min: r2.Point{X: cMin.X, Y: tl.Y},
			max: r2.Point{X: br.X, Y: cMax.Y},
			borders: []Segment{
				seg(tl.X+half, tl.Y, cMin.X, tl.Y),
				seg(cMin.X, tl.Y, cMin.X, cMax.Y),
				seg(cMin.X, cMax.Y, br.X, cMax.Y),
				seg(br.X, cMax.Y, br.X, br.Y-half),
			},
		},
	}
}

// jsRound rounds half up, matching the coordinates produced by the
// browser viewer.
func jsRound(v float64) float64 {
	return math.Floor(v + 0.5)
}

func finiteRect(r r2.Rect) bool {
	return finite(r.X.Lo) && finite(r.X.Hi) && finite(r.Y.Lo) && finite(r.Y.Hi)
}
