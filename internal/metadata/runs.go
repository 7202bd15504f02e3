package metadata

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dgallion1/dochighlight/internal/pdfsource"
)

// FromRuns derives sentence metadata from a PDF text layer. A sentence ends
// at a run whose text ends in '.', '!' or '?'; sentences may cross pages.
// Each page's interline is the median gap between consecutive baselines.
func FromRuns(pages []pdfsource.PageText) *Document {
	d := &Document{
		Pages:     make(map[int]Page, len(pages)),
		Sentences: map[string]Sentence{},
	}
	interlines := map[int]float64{}
	for _, pt := range pages {
		d.Pages[pt.Number] = Page{Sentences: map[string]bool{}, Width: pt.Width, Height: pt.Height}
		if v, ok := medianGap(pt.Runs); ok {
			interlines[pt.Number] = v
		}
	}

	n := 0
	var cur Sentence
	var words []string
	flush := func() {
		if len(cur.Chunks) == 0 {
			return
		}
		id := fmt.Sprintf("s%05d", n)
		n++
		cur.Text = strings.Join(words, " ")
		seen := map[int]bool{}
		for _, b := range cur.Chunks {
			d.Pages[b.Page].Sentences[id] = true
			if v, ok := interlines[b.Page]; ok && !seen[b.Page] {
				cur.Areas = append(cur.Areas, AreaHint{Interlines: map[int]Coord{b.Page: Coord(v)}})
			}
			seen[b.Page] = true
		}
		d.Sentences[id] = cur
		cur = Sentence{}
		words = nil
	}

	for _, pt := range pages {
		for _, r := range pt.Runs {
			cur.Chunks = append(cur.Chunks, Box{
				X: Coord(r.X), Y: Coord(r.Y), W: Coord(r.W), H: Coord(r.H), Page: pt.Number,
			})
			words = append(words, r.Text)
			if t := strings.TrimSpace(r.Text); strings.HasSuffix(t, ".") || strings.HasSuffix(t, "!") || strings.HasSuffix(t, "?") {
				flush()
			}
		}
	}
	flush()
	d.finalize()
	return d
}

// medianGap returns the median positive distance between distinct run tops.
func medianGap(runs []pdfsource.Run) (float64, bool) {
	tops := make([]float64, 0, len(runs))
	for _, r := range runs {
		tops = append(tops, r.Y)
	}
	sort.Float64s(tops)
	var gaps []float64
	for i := 1; i < len(tops); i++ {
		if g := tops[i] - tops[i-1]; g > 0.5 {
			gaps = append(gaps, g)
		}
	}
	if len(gaps) == 0 {
		return 0, false
	}
	sort.Float64s(gaps)
	return math.Round(gaps[len(gaps)/2]*100) / 100, true
}
