package layout

import (
	"reflect"
	"testing"
)

func normalizeAll(t *testing.T, frags []Fragment) []Chunk {
	t.Helper()
	opts := DefaultOptions()
	chunks := make([]Chunk, 0, len(frags))
	for _, f := range frags {
		c, err := NormalizeFragment(f, 1, opts)
		if err != nil {
			t.Fatalf("normalize %+v: %v", f, err)
		}
		chunks = append(chunks, c)
	}
	return chunks
}

func TestClusterLines_SameRowMerges(t *testing.T) {
	chunks := normalizeAll(t, []Fragment{
		{X: 10, Y: 10, W: 50, H: 12, Page: 1},
		{X: 70, Y: 10, W: 30, H: 12, Page: 1},
	})
	lines := ClusterLines(chunks)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	b := lines[0].Bounds
	if b.X.Lo != 8 || b.Y.Lo != 8 || b.X.Hi != 102 || b.Y.Hi != 24 {
		t.Errorf("expected bounds (8,8)-(102,24), got (%v,%v)-(%v,%v)", b.X.Lo, b.Y.Lo, b.X.Hi, b.Y.Hi)
	}
	if lines[0].Page != 1 {
		t.Errorf("expected page 1, got %d", lines[0].Page)
	}
}

func TestClusterLines_VerticalGapSplits(t *testing.T) {
	chunks := normalizeAll(t, []Fragment{
		{X: 10, Y: 10, W: 50, H: 12, Page: 1},
		{X: 10, Y: 40, W: 50, H: 12, Page: 1},
	})
	lines := ClusterLines(chunks)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
}

func TestClusterLines_TrailingChunkStartsNewLine(t *testing.T) {
	chunks := []Chunk{
		{X: 100, Y: 0, W: 50, H: 10, Page: 1},
		{X: 10, Y: 0, W: 20, H: 10, Page: 1},
	}
	if n := len(ClusterLines(chunks)); n != 2 {
		t.Errorf("expected chunk behind the line to split it, got %d lines", n)
	}
}

func TestClusterLines_PageChangeSplits(t *testing.T) {
	chunks := []Chunk{
		{X: 0, Y: 0, W: 50, H: 10, Page: 1},
		{X: 60, Y: 0, W: 20, H: 10, Page: 2},
	}
	lines := ClusterLines(chunks)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[1].Page != 2 {
		t.Errorf("expected second line on page 2, got %d", lines[1].Page)
	}
}

func TestClusterLines_PreservesChunks(t *testing.T) {
	chunks := []Chunk{
		{X: 0, Y: 0, W: 40, H: 10, Page: 1},
		{X: 45, Y: 1, W: 40, H: 10, Page: 1},
		{X: 0, Y: 20, W: 80, H: 10, Page: 1},
		{X: 90, Y: 20, W: 10, H: 10, Page: 1},
		{X: 0, Y: 40, W: 30, H: 10, Page: 1},
		{X: 0, Y: 0, W: 30, H: 10, Page: 2},
	}
	lines := ClusterLines(chunks)
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}
	var got []Chunk
	for _, l := range lines {
		got = append(got, l.Chunks...)
	}
	if !reflect.DeepEqual(got, chunks) {
		t.Errorf("concatenated chunks differ from input:\n got %+v\nwant %+v", got, chunks)
	}
}

func TestClusterLines_BoundsAreUnion(t *testing.T) {
	chunks := []Chunk{
		{X: 0, Y: 0, W: 40, H: 10, Page: 1},
		{X: 45, Y: 2, W: 40, H: 12, Page: 1},
	}
	lines := ClusterLines(chunks)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	want := chunks[0].Bounds().Union(chunks[1].Bounds())
	if lines[0].Bounds != want {
		t.Errorf("expected bounds %v, got %v", want, lines[0].Bounds)
	}
}

func TestClusterLines_Deterministic(t *testing.T) {
	chunks := []Chunk{
		{X: 0, Y: 0, W: 40, H: 10, Page: 1},
		{X: 45, Y: 1, W: 40, H: 10, Page: 1},
		{X: 0, Y: 20, W: 80, H: 10, Page: 1},
	}
	a := ClusterLines(chunks)
	b := ClusterLines(chunks)
	if !reflect.DeepEqual(a, b) {
		t.Error("expected identical output for identical input")
	}
}

func TestLine_WeightedMidY(t *testing.T) {
	l := NewLine(
		Chunk{X: 0, Y: 0, W: 10, H: 10, Page: 1},
		Chunk{X: 10, Y: 0, W: 30, H: 20, Page: 1},
	)
	if l.MidY != 8.75 {
		t.Errorf("expected width-weighted mid 8.75, got %v", l.MidY)
	}
	if l.Center() != 10 {
		t.Errorf("expected geometric center 10, got %v", l.Center())
	}
	if l.Height() != 20 {
		t.Errorf("expected height 20, got %v", l.Height())
	}
}

func TestClusterLines_Empty(t *testing.T) {
	if lines := ClusterLines(nil); lines != nil {
		t.Errorf("expected nil, got %v", lines)
	}
}
