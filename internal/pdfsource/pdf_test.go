package pdfsource

import (
	"fmt"
	"strings"
	"testing"

	pdflib "github.com/ledongthuc/pdf"
)

// buildPDF assembles a minimal two-page document with a correct xref table.
// Page 1 inherits its MediaBox from the page tree.
func buildPDF() []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R 4 0 R] /Count 2 /MediaBox [0 0 612 792] >>",
		"<< /Type /Page /Parent 2 0 R >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 300 400] >>",
	}
	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return []byte(b.String())
}

func TestOpen_PageSizes(t *testing.T) {
	src, err := Open(buildPDF())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := src.NumPages(); n != 2 {
		t.Fatalf("expected 2 pages, got %d", n)
	}

	w, h, err := src.PageSize(1)
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if w != 612 || h != 792 {
		t.Errorf("expected inherited 612x792, got %vx%v", w, h)
	}

	w, h, err = src.PageSize(2)
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if w != 300 || h != 400 {
		t.Errorf("expected 300x400, got %vx%v", w, h)
	}

	if _, _, err := src.PageSize(3); err == nil {
		t.Error("expected error for page out of range")
	}
}

func TestOpen_NotAPDF(t *testing.T) {
	if _, err := Open([]byte("definitely not a pdf document, just some text that is long enough")); err == nil {
		t.Fatal("expected error for non-pdf input")
	}
}

func TestMergeGlyphs_WordsAndBaselines(t *testing.T) {
	glyphs := []pdflib.Text{
		{S: "H", X: 72, Y: 700, W: 8, FontSize: 12},
		{S: "i", X: 80, Y: 700, W: 3, FontSize: 12},
		{S: " ", X: 83, Y: 700, W: 3, FontSize: 12},
		{S: "y", X: 86, Y: 700, W: 6, FontSize: 12},
		{S: "o", X: 92, Y: 700, W: 6, FontSize: 12},
		{S: "n", X: 72, Y: 680, W: 6, FontSize: 12},
		{S: "e", X: 78, Y: 680, W: 6, FontSize: 12},
		{S: "\u0301", X: 84, Y: 680, W: 0, FontSize: 12},
	}
	runs := mergeGlyphs(glyphs, 0, 792)
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d: %+v", len(runs), runs)
	}
	if runs[0].Text != "Hi" || runs[1].Text != "yo" {
		t.Errorf("expected Hi/yo, got %q/%q", runs[0].Text, runs[1].Text)
	}
	if runs[0].X != 72 || runs[0].W != 11 {
		t.Errorf("expected first run x=72 w=11, got x=%v w=%v", runs[0].X, runs[0].W)
	}
	if runs[0].Y != 80 || runs[0].H != 12 {
		t.Errorf("expected top-down y=80 h=12, got y=%v h=%v", runs[0].Y, runs[0].H)
	}
	if runs[2].Text != "n\u00e9" {
		t.Errorf("expected NFC-composed text, got %q", runs[2].Text)
	}
	if runs[2].Y != 100 {
		t.Errorf("expected second baseline at y=100, got %v", runs[2].Y)
	}
}

func TestMergeGlyphs_GapSplitsRun(t *testing.T) {
	glyphs := []pdflib.Text{
		{S: "a", X: 10, Y: 100, W: 5, FontSize: 10},
		{S: "b", X: 40, Y: 100, W: 5, FontSize: 10},
	}
	if runs := mergeGlyphs(glyphs, 0, 200); len(runs) != 2 {
		t.Errorf("expected wide gap to split runs, got %d", len(runs))
	}
}

func TestMergeGlyphs_OffsetMediaBox(t *testing.T) {
	// MediaBox [50 100 662 892]: the top-left corner is (50, 892).
	glyphs := []pdflib.Text{
		{S: "H", X: 122, Y: 780, W: 6, FontSize: 12},
		{S: "i", X: 128, Y: 780, W: 5, FontSize: 12},
	}
	runs := mergeGlyphs(glyphs, 50, 892)
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if r := runs[0]; r.X != 72 || r.Y != 100 || r.W != 11 {
		t.Errorf("expected x=72 y=100 w=11, got x=%v y=%v w=%v", r.X, r.Y, r.W)
	}
}
