package layout

import (
	"github.com/golang/geo/r2"
)

// Line is a visual text row: the chunks it owns, their exact union and a
// width-weighted mean vertical midpoint.
type Line struct {
	Chunks []Chunk `json:"chunks"`
	Bounds r2.Rect `json:"-"`
	MidY   float64 `json:"mid_y"`
	Page   int     `json:"page"`
}

// NewLine builds a line from chunks without applying any membership test.
func NewLine(chunks ...Chunk) Line {
	var b lineBuilder
	for _, c := range chunks {
		b.add(c)
	}
	return b.line()
}

// Height returns the line's vertical extent.
func (l Line) Height() float64 {
	return l.Bounds.Y.Hi - l.Bounds.Y.Lo
}

// Center is the geometric vertical midpoint of the bounds.
func (l Line) Center() float64 {
	return l.Bounds.Y.Lo + l.Height()/2
}

// Accepts reports whether c continues this line: same page, c's midpoint
// inside the current vertical extent, and c not trailing behind content
// already on the line.
func (l Line) Accepts(c Chunk) bool {
	if len(l.Chunks) == 0 {
		return true
	}
	if c.Page != l.Page {
		return false
	}
	mid := c.MidY()
	if mid < l.Bounds.Y.Lo || mid > l.Bounds.Y.Hi {
		return false
	}
	return c.Right() >= l.Bounds.X.Lo
}

// ClusterLines groups chunks into lines with a single forward pass. Chunks
// must already be in reading order; concatenating the Chunks of the result
// reproduces the input exactly.
func ClusterLines(chunks []Chunk) []Line {
	if len(chunks) == 0 {
		return nil
	}
	var lines []Line
	var cur lineBuilder
	for _, c := range chunks {
		if !cur.accepts(c) {
			lines = append(lines, cur.line())
			cur = lineBuilder{}
		}
		cur.add(c)
	}
	return append(lines, cur.line())
}

// lineBuilder accumulates a line; line() snapshots it as an immutable value.
type lineBuilder struct {
	chunks   []Chunk
	bounds   r2.Rect
	midSum   float64
	midCoeff float64
	page     int
}

func (b *lineBuilder) accepts(c Chunk) bool {
	if len(b.chunks) == 0 {
		return true
	}
	return Line{Chunks: b.chunks, Bounds: b.bounds, Page: b.page}.Accepts(c)
}

func (b *lineBuilder) add(c Chunk) {
	if len(b.chunks) == 0 {
		b.bounds = c.Bounds()
		b.page = c.Page
	} else {
		b.bounds = b.bounds.Union(c.Bounds())
	}
	b.midSum += c.MidY() * c.W
	b.midCoeff += c.W
	b.chunks = append(b.chunks, c)
}

func (b *lineBuilder) line() Line {
	chunks := make([]Chunk, len(b.chunks))
	copy(chunks, b.chunks)
	mid := b.bounds.Center().Y
	if b.midCoeff > 0 {
		mid = b.midSum / b.midCoeff
	}
	return Line{Chunks: chunks, Bounds: b.bounds, MidY: mid, Page: b.page}
}
