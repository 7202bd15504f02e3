package layout

import (
	"errors"
	"math"
	"testing"
)

func TestNormalizeFragment_ScaleAndMargin(t *testing.T) {
	opts := DefaultOptions()
	c, err := NormalizeFragment(Fragment{X: 10.3, Y: 5, W: 20, H: 10, Page: 3}, 1.5, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Chunk{X: 12, Y: 4, W: 36, H: 21, Page: 3}
	if c != want {
		t.Errorf("expected %+v, got %+v", want, c)
	}
}

func TestNormalizeFragment_FloorsMinAndCeilsExtent(t *testing.T) {
	opts := DefaultOptions()
	opts.MarginChunk = Margin{}
	c, err := NormalizeFragment(Fragment{X: 1.9, Y: 1.1, W: 2.1, H: 2.9, Page: 1}, 1, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.X != 1 || c.Y != 1 || c.W != 3 || c.H != 3 {
		t.Errorf("expected (1,1,3,3), got %+v", c)
	}
}

func TestNormalizeFragment_InvalidInput(t *testing.T) {
	opts := DefaultOptions()
	cases := []struct {
		name  string
		frag  Fragment
		scale float64
	}{
		{"nan x", Fragment{X: math.NaN(), W: 1, H: 1, Page: 1}, 1},
		{"inf height", Fragment{W: 1, H: math.Inf(1), Page: 1}, 1},
		{"negative width", Fragment{W: -4, H: 1, Page: 1}, 1},
		{"page zero", Fragment{W: 1, H: 1, Page: 0}, 1},
		{"zero scale", Fragment{W: 1, H: 1, Page: 1}, 0},
		{"nan scale", Fragment{W: 1, H: 1, Page: 1}, math.NaN()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.frag.SpanID = "s1"
			_, err := NormalizeFragment(tc.frag, tc.scale, opts)
			var inErr *InputError
			if !errors.As(err, &inErr) {
				t.Fatalf("expected *InputError, got %v", err)
			}
			if inErr.SpanID != "s1" {
				t.Errorf("expected span id s1 in error, got %q", inErr.SpanID)
			}
		})
	}
}

func TestCheckPage(t *testing.T) {
	for _, page := range []int{0, -2, 4} {
		err := CheckPage(Fragment{SpanID: "s1", Page: page}, 3)
		var inErr *InputError
		if !errors.As(err, &inErr) || inErr.Page != page {
			t.Errorf("page %d: expected *InputError, got %v", page, err)
		}
	}
	for _, page := range []int{1, 3} {
		if err := CheckPage(Fragment{Page: page}, 3); err != nil {
			t.Errorf("page %d: unexpected error %v", page, err)
		}
	}
}

func TestSortFragments_ReadingOrder(t *testing.T) {
	frags := []Fragment{
		{X: 0, Y: 0, W: 5, H: 10, Page: 2, SpanID: "d"},
		{X: 50, Y: 10, W: 5, H: 10, Page: 1, SpanID: "b"},
		{X: 0, Y: 40, W: 5, H: 10, Page: 1, SpanID: "c"},
		{X: 10, Y: 11, W: 5, H: 10, Page: 1, SpanID: "a"},
	}
	SortFragments(frags)

	var got string
	for _, f := range frags {
		got += f.SpanID
	}
	if got != "abcd" {
		t.Errorf("expected order abcd, got %s", got)
	}
}

func TestSortFragments_StableForTies(t *testing.T) {
	frags := []Fragment{
		{X: 10, Y: 10, W: 5, H: 10, Page: 1, SpanID: "first"},
		{X: 10, Y: 10, W: 5, H: 10, Page: 1, SpanID: "second"},
	}
	SortFragments(frags)
	if frags[0].SpanID != "first" || frags[1].SpanID != "second" {
		t.Errorf("expected stable order, got %s, %s", frags[0].SpanID, frags[1].SpanID)
	}
}

func TestOptionsValidate(t *testing.T) {
	if err := DefaultOptions().Validate(); err != nil {
		t.Fatalf("default options should validate: %v", err)
	}

	bad := DefaultOptions()
	bad.BorderWidth = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error for zero border width")
	}

	bad = DefaultOptions()
	bad.MarginImage.Left = -1
	if err := bad.Validate(); err == nil {
		t.Error("expected error for negative image margin")
	}

	bad = DefaultOptions()
	bad.SelectedBorderWidth = math.Inf(1)
	if err := bad.Validate(); err == nil {
		t.Error("expected error for infinite selected border width")
	}
}
