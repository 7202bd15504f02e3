// Package metadata models the per-document sentence metadata that drives the
// layout engine: which spans appear on which page and the measured boxes of
// their glyph runs.
package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/dgallion1/dochighlight/internal/layout"
)

// Coord is a numeric value that may arrive as a JSON number or a numeric
// string. Unparseable values decode to NaN so the layout engine can reject
// the fragment instead of the whole document.
type Coord float64

func (c *Coord) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*c = Coord(math.NaN())
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			v = math.NaN()
		}
		*c = Coord(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		*c = Coord(math.NaN())
		return nil
	}
	*c = Coord(v)
	return nil
}

func (c Coord) MarshalJSON() ([]byte, error) {
	v := float64(c)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// Box is one measured glyph run. The page may be keyed "page" or "p". A
// missing, non-numeric or fractional page decodes to 0.
type Box struct {
	X    Coord `json:"x"`
	Y    Coord `json:"y"`
	W    Coord `json:"w"`
	H    Coord `json:"h"`
	Page int   `json:"page"`
}

func (b *Box) UnmarshalJSON(data []byte) error {
	var raw struct {
		X    Coord  `json:"x"`
		Y    Coord  `json:"y"`
		W    Coord  `json:"w"`
		H    Coord  `json:"h"`
		Page *Coord `json:"page"`
		P    *Coord `json:"p"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*b = Box{X: raw.X, Y: raw.Y, W: raw.W, H: raw.H}
	page := raw.Page
	if page == nil {
		page = raw.P
	}
	if page != nil {
		if f := float64(*page); f == math.Trunc(f) && math.Abs(f) < math.MaxInt32 {
			b.Page = int(f)
		}
	}
	return nil
}

// Point is a page position.
type Point struct {
	X Coord `json:"x"`
	Y Coord `json:"y"`
}

// AreaHint carries the extractor's interline measurement per page.
type AreaHint struct {
	Interlines map[int]Coord `json:"interlines"`
}

// SentencePage is the extractor's per-page summary of a sentence.
type SentencePage struct {
	Min     Point `json:"min"`
	Max     Point `json:"max"`
	Columns []int `json:"columns,omitempty"`
}

// Sentence is one span's metadata.
type Sentence struct {
	Text   string               `json:"text,omitempty"`
	Chunks []Box                `json:"chunks"`
	Areas  []AreaHint           `json:"areas,omitempty"`
	Pages  map[int]SentencePage `json:"pages,omitempty"`
}

// Page lists the spans appearing on a page and optionally its native size.
type Page struct {
	Sentences map[string]bool `json:"sentences"`
	Width     float64         `json:"width,omitempty"`
	Height    float64         `json:"height,omitempty"`
}

// Document is the decoded metadata of one document. It is immutable once
// Decode or FromRuns returns.
type Document struct {
	Pages     map[int]Page        `json:"pages"`
	Sentences map[string]Sentence `json:"sentences"`

	order []string
	index map[string]int
}

// Decode reads and validates document metadata.
func Decode(r io.Reader) (*Document, error) {
	var d Document
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	d.finalize()
	return &d, nil
}

// Validate checks referential integrity between pages and sentences.
func (d *Document) Validate() error {
	if len(d.Pages) == 0 {
		return fmt.Errorf("metadata has no pages")
	}
	for n, p := range d.Pages {
		if n < 1 {
			return fmt.Errorf("invalid page number %d", n)
		}
		for id := range p.Sentences {
			if _, ok := d.Sentences[id]; !ok {
				return fmt.Errorf("page %d references unknown sentence %q", n, id)
			}
		}
	}
	return nil
}

func (d *Document) finalize() {
	if d.Sentences == nil {
		d.Sentences = map[string]Sentence{}
	}
	d.order = d.readingOrder()
	d.index = make(map[string]int, len(d.order))
	for i, id := range d.order {
		d.index[id] = i
	}
}

// NumPages returns the highest page number known to the metadata.
func (d *Document) NumPages() int {
	n := 0
	for p := range d.Pages {
		if p > n {
			n = p
		}
	}
	return n
}

// PageSize returns the native page size if the metadata records one.
func (d *Document) PageSize(page int) (w, h float64, ok bool) {
	p, found := d.Pages[page]
	if !found || p.Width <= 0 || p.Height <= 0 {
		return 0, 0, false
	}
	return p.Width, p.Height, true
}

// HasSpan reports whether spanID is a known sentence.
func (d *Document) HasSpan(spanID string) bool {
	_, ok := d.Sentences[spanID]
	return ok
}

// SpanText returns the sentence text, if recorded.
func (d *Document) SpanText(spanID string) string {
	return d.Sentences[spanID].Text
}

// SpansOnPage returns the spans listed for page, sorted by id.
func (d *Document) SpansOnPage(page int) []string {
	p, ok := d.Pages[page]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(p.Sentences))
	for id := range p.Sentences {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Fragments returns spanID's boxes on page in metadata order.
func (d *Document) Fragments(spanID string, page int) []layout.Fragment {
	s, ok := d.Sentences[spanID]
	if !ok {
		return nil
	}
	var out []layout.Fragment
	for _, b := range s.Chunks {
		if b.Page != page {
			continue
		}
		out = append(out, layout.Fragment{
			X:      float64(b.X),
			Y:      float64(b.Y),
			W:      float64(b.W),
			H:      float64(b.H),
			Page:   b.Page,
			SpanID: spanID,
		})
	}
	return out
}

// StrayFragments returns spanID's boxes whose page is missing or outside
// 1..NumPages. They are reported once, on the span's first page, so that
// page's pass can surface them as diagnostics.
func (d *Document) StrayFragments(spanID string, page int) []layout.Fragment {
	s, ok := d.Sentences[spanID]
	if !ok || d.homePage(spanID) != page {
		return nil
	}
	n := d.NumPages()
	var out []layout.Fragment
	for _, b := range s.Chunks {
		if b.Page >= 1 && b.Page <= n {
			continue
		}
		out = append(out, layout.Fragment{
			X:      float64(b.X),
			Y:      float64(b.Y),
			W:      float64(b.W),
			H:      float64(b.H),
			Page:   b.Page,
			SpanID: spanID,
		})
	}
	return out
}

// homePage is the first page spanID is laid out on, or 0.
func (d *Document) homePage(spanID string) int {
	if pages, _ := d.PagesOfSpan(spanID); len(pages) > 0 {
		return pages[0]
	}
	home := 0
	for n, p := range d.Pages {
		if p.Sentences[spanID] && (home == 0 || n < home) {
			home = n
		}
	}
	return home
}

// Interline returns the unscaled interline metric for page. Every span on
// the page may contribute; the last value seen in span id order wins.
func (d *Document) Interline(page int) (float64, bool) {
	var v float64
	found := false
	for _, id := range d.SpansOnPage(page) {
		for _, a := range d.Sentences[id].Areas {
			if x, ok := a.Interlines[page]; ok {
				f := float64(x)
				if f > 0 && !math.IsInf(f, 0) {
					v, found = f, true
				}
			}
		}
	}
	return v, found
}

// PagesOfSpan returns the sorted pages on which spanID has boxes or a page
// summary. Pages outside 1..NumPages are left out.
func (d *Document) PagesOfSpan(spanID string) ([]int, bool) {
	s, ok := d.Sentences[spanID]
	if !ok {
		return nil, false
	}
	n := d.NumPages()
	seen := map[int]bool{}
	for _, b := range s.Chunks {
		if b.Page >= 1 && b.Page <= n {
			seen[b.Page] = true
		}
	}
	for p := range s.Pages {
		if p >= 1 && p <= n {
			seen[p] = true
		}
	}
	pages := make([]int, 0, len(seen))
	for p := range seen {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages, true
}

// ReadingOrder returns every span in document reading order.
func (d *Document) ReadingOrder() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// ReadingOrderIndex returns spanID's position in reading order.
func (d *Document) ReadingOrderIndex(spanID string) (int, bool) {
	i, ok := d.index[spanID]
	return i, ok
}

// SpanRange returns the contiguous run of spans, in reading order, between
// the earliest and latest of spanIDs. Unknown ids are ignored.
func (d *Document) SpanRange(spanIDs ...string) []string {
	lo, hi := -1, -1
	for _, id := range spanIDs {
		i, ok := d.index[id]
		if !ok {
			continue
		}
		if lo < 0 || i < lo {
			lo = i
		}
		if i > hi {
			hi = i
		}
	}
	if lo < 0 {
		return []string{}
	}
	out := make([]string, hi-lo+1)
	copy(out, d.order[lo:hi+1])
	return out
}

type orderKey struct {
	id     string
	page   int
	column int
	minY   float64
}

// readingOrder sorts spans by (first page, column, top y, id). The column
// and top come from the sentence's page summary when present, else from
// its boxes on that page.
func (d *Document) readingOrder() []string {
	keys := make([]orderKey, 0, len(d.Sentences))
	for id, s := range d.Sentences {
		pages, _ := d.PagesOfSpan(id)
		for n, p := range d.Pages {
			if p.Sentences[id] && (len(pages) == 0 || n < pages[0]) {
				pages = append([]int{n}, pages...)
			}
		}
		k := orderKey{id: id, page: math.MaxInt, minY: math.Inf(1)}
		if len(pages) > 0 {
			k.page = pages[0]
		}
		if sp, ok := s.Pages[k.page]; ok {
			if len(sp.Columns) > 0 {
				k.column = sp.Columns[len(sp.Columns)-1]
			}
			if y := float64(sp.Min.Y); !math.IsNaN(y) {
				k.minY = y
			}
		}
		if math.IsInf(k.minY, 1) {
			for _, b := range s.Chunks {
				if y := float64(b.Y); b.Page == k.page && y < k.minY {
					k.minY = y
				}
			}
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.page != b.page {
			return a.page < b.page
		}
		if a.column != b.column {
			return a.column < b.column
		}
		if a.minY != b.minY {
			return a.minY < b.minY
		}
		return a.id < b.id
	})
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.id
	}
	return out
}
