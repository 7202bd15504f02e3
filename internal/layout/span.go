package layout

// SpanLayout is everything computed for one span on one page.
type SpanLayout struct {
	SpanID string  `json:"span_id"`
	Page   int     `json:"page"`
	Lines  []Line  `json:"lines"`
	Areas  []Area  `json:"areas"`
	Shapes []Shape `json:"shapes"`
}

// LayoutSpan runs the full pipeline for a single span's fragments on one
// page. Fragments that fail normalization and areas that fit no pattern are
// skipped; their errors are returned alongside the partial result.
func LayoutSpan(spanID string, frags []Fragment, scale float64, margin MarginFunc, opts Options) (SpanLayout, []error) {
	var errs []error
	if opts.PreSort {
		sorted := make([]Fragment, len(frags))
		copy(sorted, frags)
		SortFragments(sorted)
		frags = sorted
	}

	chunks := make([]Chunk, 0, len(frags))
	for _, f := range frags {
		if f.SpanID == "" {
			f.SpanID = spanID
		}
		c, err := NormalizeFragment(f, scale, opts)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		chunks = append(chunks, c)
	}

	out := SpanLayout{SpanID: spanID}
	if len(chunks) == 0 {
		return out, errs
	}
	out.Page = chunks[0].Page
	out.Lines = ClusterLines(chunks)
	out.Areas = ClusterAreas(spanID, out.Lines, margin)

	for i, a := range out.Areas {
		shapes, err := BuildShapes(a, opts)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for j := range shapes {
			shapes[j].Area = i
		}
		out.Shapes = append(out.Shapes, shapes...)
	}
	return out, errs
}

// Extent returns the vertical bounds of area i in page pixels.
func (s SpanLayout) Extent(i int) (top, bottom, left, right float64) {
	b := s.Areas[i].Bounds
	return b.Y.Lo, b.Y.Hi, b.X.Lo, b.X.Hi
}
