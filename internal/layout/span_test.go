package layout

import (
	"errors"
	"math"
	"testing"
)

func TestLayoutSpan_SkipsBadFragments(t *testing.T) {
	frags := []Fragment{
		{X: 10, Y: 10, W: 50, H: 12, Page: 1},
		{X: math.NaN(), Y: 10, W: 5, H: 12, Page: 1},
		{X: 70, Y: 10, W: 30, H: 12, Page: 1},
	}
	out, errs := LayoutSpan("s1", frags, 1, nil, DefaultOptions())
	if len(errs) != 1 {
		t.Fatalf("expected 1 diagnostic, got %d: %v", len(errs), errs)
	}
	var inErr *InputError
	if !errors.As(errs[0], &inErr) || inErr.SpanID != "s1" {
		t.Errorf("expected *InputError for s1, got %v", errs[0])
	}
	if len(out.Lines) != 1 || len(out.Areas) != 1 || len(out.Shapes) != 1 {
		t.Fatalf("expected 1 line/area/shape, got %d/%d/%d", len(out.Lines), len(out.Areas), len(out.Shapes))
	}
	if out.Page != 1 || out.SpanID != "s1" {
		t.Errorf("unexpected span layout header %+v", out)
	}
}

func TestLayoutSpan_PreSortFixesOrder(t *testing.T) {
	frags := []Fragment{
		{X: 70, Y: 10, W: 30, H: 12, Page: 1},
		{X: 10, Y: 10, W: 50, H: 12, Page: 1},
	}
	opts := DefaultOptions()
	out, errs := LayoutSpan("s1", frags, 1, nil, opts)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(out.Lines) != 1 {
		t.Errorf("expected sorted fragments to form 1 line, got %d", len(out.Lines))
	}
	if frags[0].X != 70 {
		t.Error("input slice must not be reordered")
	}

	opts.PreSort = false
	out, _ = LayoutSpan("s1", frags, 1, nil, opts)
	if len(out.Lines) != 2 {
		t.Errorf("expected caller order to be trusted without presort, got %d lines", len(out.Lines))
	}
}

func TestLayoutSpan_AreasAndShapeIndex(t *testing.T) {
	frags := []Fragment{
		{X: 0, Y: 0, W: 100, H: 12, Page: 1},
		{X: 0, Y: 300, W: 100, H: 12, Page: 1},
	}
	out, errs := LayoutSpan("s1", frags, 2, nil, DefaultOptions())
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(out.Areas) != 2 || len(out.Shapes) != 2 {
		t.Fatalf("expected 2 areas and 2 shapes, got %d and %d", len(out.Areas), len(out.Shapes))
	}
	if out.Shapes[0].Area != 0 || out.Shapes[1].Area != 1 {
		t.Errorf("expected shape area indexes 0 and 1, got %d and %d", out.Shapes[0].Area, out.Shapes[1].Area)
	}
	top, bottom, _, _ := out.Extent(1)
	if top != 596 || bottom != 628 {
		t.Errorf("expected second area extent 596..628, got %v..%v", top, bottom)
	}
}

func TestLayoutSpan_Empty(t *testing.T) {
	out, errs := LayoutSpan("s1", nil, 1, nil, DefaultOptions())
	if len(errs) != 0 || len(out.Shapes) != 0 {
		t.Errorf("expected empty result, got %+v %v", out, errs)
	}
}
