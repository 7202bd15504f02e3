// Package pdfsource reads page geometry and positioned text runs from PDF
// files. It is the fallback metadata source when an upload carries no
// sentence metadata of its own.
package pdfsource

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
	"golang.org/x/text/unicode/norm"
)

// Run is a horizontal run of text in top-left-origin page units.
type Run struct {
	Text     string  `json:"text"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	W        float64 `json:"w"`
	H        float64 `json:"h"`
	FontSize float64 `json:"font_size"`
}

// PageText is the text layer of one page.
type PageText struct {
	Number int     `json:"number"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Runs   []Run   `json:"runs"`
}

// Source is an opened PDF document.
type Source struct {
	r *pdflib.Reader
}

// Open parses a PDF held in memory.
func Open(data []byte) (*Source, error) {
	r, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	return &Source{r: r}, nil
}

// NumPages returns the page count.
func (s *Source) NumPages() int {
	return s.r.NumPage()
}

// PageSize returns the MediaBox width and height of page n (1-based),
// following the page tree for inherited boxes.
func (s *Source) PageSize(n int) (w, h float64, err error) {
	box, err := s.mediaBox(n)
	if err != nil {
		return 0, 0, err
	}
	return box.width(), box.height(), nil
}

// rect is a normalized MediaBox in PDF user space.
type rect struct {
	llx, lly, urx, ury float64
}

func (r rect) width() float64  { return r.urx - r.llx }
func (r rect) height() float64 { return r.ury - r.lly }

func (s *Source) mediaBox(n int) (rect, error) {
	if n < 1 || n > s.r.NumPage() {
		return rect{}, fmt.Errorf("page %d out of range 1..%d", n, s.r.NumPage())
	}
	p := s.r.Page(n)
	if p.V.IsNull() {
		return rect{}, fmt.Errorf("page %d: missing page object", n)
	}
	box := p.V.Key("MediaBox")
	for parent := p.V.Key("Parent"); box.IsNull() && !parent.IsNull(); parent = parent.Key("Parent") {
		box = parent.Key("MediaBox")
	}
	if box.Len() != 4 {
		return rect{}, fmt.Errorf("page %d: invalid MediaBox", n)
	}
	x0, y0 := box.Index(0).Float64(), box.Index(1).Float64()
	x1, y1 := box.Index(2).Float64(), box.Index(3).Float64()
	r := rect{
		llx: math.Min(x0, x1), lly: math.Min(y0, y1),
		urx: math.Max(x0, x1), ury: math.Max(y0, y1),
	}
	if r.width() == 0 || r.height() == 0 {
		return rect{}, fmt.Errorf("page %d: empty MediaBox", n)
	}
	return r, nil
}

// Text extracts page n's glyphs merged into word runs.
func (s *Source) Text(n int) (pt PageText, err error) {
	box, err := s.mediaBox(n)
	if err != nil {
		return PageText{}, err
	}
	// The content stream decoder panics on malformed operators.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page %d: decode content: %v", n, r)
		}
	}()
	content := s.r.Page(n).Content()
	return PageText{
		Number: n,
		Width:  box.width(),
		Height: box.height(),
		Runs:   mergeGlyphs(content.Text, box.llx, box.ury),
	}, nil
}

// Pages extracts the text layer of every page. Pages that fail to decode
// are returned with no runs so page numbering stays aligned.
func (s *Source) Pages() ([]PageText, []error) {
	var errs []error
	out := make([]PageText, 0, s.NumPages())
	for i := 1; i <= s.NumPages(); i++ {
		pt, err := s.Text(i)
		if err != nil {
			errs = append(errs, err)
			w, h, _ := s.PageSize(i)
			pt = PageText{Number: i, Width: w, Height: h}
		}
		out = append(out, pt)
	}
	return out, errs
}

// mergeGlyphs joins consecutive glyphs on the same baseline into word runs
// and moves the origin to the box's top-left corner (left, top).
func mergeGlyphs(glyphs []pdflib.Text, left, top float64) []Run {
	var runs []Run
	var cur *Run
	var baseline float64
	var sb strings.Builder

	flush := func() {
		if cur == nil {
			return
		}
		cur.Text = norm.NFC.String(sb.String())
		if strings.TrimSpace(cur.Text) != "" {
			runs = append(runs, *cur)
		}
		cur = nil
		sb.Reset()
	}

	for _, g := range glyphs {
		if strings.TrimSpace(g.S) == "" {
			flush()
			continue
		}
		size := g.FontSize
		if size <= 0 {
			size = 1
		}
		adjacent := cur != nil &&
			g.Y == baseline &&
			g.FontSize == cur.FontSize &&
			math.Abs(g.X-left-(cur.X+cur.W)) <= size*0.3
		if !adjacent {
			flush()
			cur = &Run{X: g.X - left, Y: top - g.Y - size, H: size, FontSize: g.FontSize}
			baseline = g.Y
		}
		sb.WriteString(g.S)
		cur.W = g.X - left + g.W - cur.X
	}
	flush()
	return runs
}
