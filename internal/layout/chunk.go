// Package layout turns positioned text fragments into the rectangles and
// outline segments that highlight a text span across line wraps.
//
// The pipeline is: NormalizeFragment -> ClusterLines -> ClusterAreas ->
// BuildShapes. Every stage is a pure function over immutable values.
package layout

import (
	"math"
	"sort"

	"github.com/golang/geo/r2"
)

// Fragment is one measured glyph-run box as supplied by the metadata.
type Fragment struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	W      float64 `json:"w"`
	H      float64 `json:"h"`
	Page   int     `json:"page"`
	SpanID string  `json:"span_id"`
}

// Chunk is a fragment scaled into page-pixel space and inflated by the
// chunk margin. Values are whole pixels.
type Chunk struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	W    float64 `json:"w"`
	H    float64 `json:"h"`
	Page int     `json:"page"`
}

// Bounds returns the chunk rectangle.
func (c Chunk) Bounds() r2.Rect {
	return r2.RectFromPoints(r2.Point{X: c.X, Y: c.Y}, r2.Point{X: c.X + c.W, Y: c.Y + c.H})
}

// MidY is the vertical midpoint of the chunk.
func (c Chunk) MidY() float64 {
	return c.Y + c.H/2
}

// Right is the x coordinate of the right edge.
func (c Chunk) Right() float64 {
	return c.X + c.W
}

// NormalizeFragment scales f and inflates it by opts.MarginChunk. Min edges
// are floored and extents ceiled so the inflation is never lost to rounding.
func NormalizeFragment(f Fragment, scale float64, opts Options) (Chunk, error) {
	if !finite(scale) || scale <= 0 {
		return Chunk{}, inputErrorf(f.SpanID, f.Page, "invalid scale %v", scale)
	}
	for _, v := range []float64{f.X, f.Y, f.W, f.H} {
		if !finite(v) {
			return Chunk{}, inputErrorf(f.SpanID, f.Page, "non-numeric coordinate in fragment %+v", f)
		}
	}
	if f.W < 0 || f.H < 0 {
		return Chunk{}, inputErrorf(f.SpanID, f.Page, "negative size %vx%v", f.W, f.H)
	}
	if f.Page < 1 {
		return Chunk{}, inputErrorf(f.SpanID, f.Page, "page number out of range")
	}

	m := opts.MarginChunk
	return Chunk{
		X:    math.Floor((f.X - m.Left) * scale),
		Y:    math.Floor((f.Y - m.Top) * scale),
		W:    math.Ceil((f.W + m.Left + m.Right) * scale),
		H:    math.Ceil((f.H + m.Top + m.Bottom) * scale),
		Page: f.Page,
	}, nil
}

// CheckPage reports a fragment whose page is missing or outside
// 1..numPages. Such a fragment belongs to no page pass.
func CheckPage(f Fragment, numPages int) error {
	if f.Page < 1 {
		return inputErrorf(f.SpanID, f.Page, "missing or non-numeric page")
	}
	if f.Page > numPages {
		return inputErrorf(f.SpanID, f.Page, "page beyond last page %d", numPages)
	}
	return nil
}

// SortFragments orders fragments for reading: by page, then by row, then
// left to right. Two fragments share a row when either one's vertical
// midpoint falls inside the other's vertical extent.
func SortFragments(frags []Fragment) {
	sort.SliceStable(frags, func(i, j int) bool {
		a, b := frags[i], frags[j]
		if a.Page != b.Page {
			return a.Page < b.Page
		}
		if sameRow(a, b) {
			return a.X < b.X
		}
		return a.Y < b.Y
	})
}

func sameRow(a, b Fragment) bool {
	am := a.Y + a.H/2
	bm := b.Y + b.H/2
	return (am >= b.Y && am <= b.Y+b.H) || (bm >= a.Y && bm <= a.Y+a.H)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
