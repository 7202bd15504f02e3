// Package viewer sequences the layout engine per rendered page, owns link
// and interaction state for a document view and publishes shapes, strokes
// and overview markers to the rendering collaborator.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/dgallion1/dochighlight/internal/layout"
	"github.com/dgallion1/dochighlight/internal/metadata"
	"github.com/dgallion1/dochighlight/internal/overview"
	"github.com/dgallion1/dochighlight/internal/raster"
)

// DefaultPageSize is used when neither metadata nor the size source knows a
// page's native size (US Letter, in points).
var DefaultPageSize = [2]float64{612, 792}

// Config holds the collaborators and settings of one view.
type Config struct {
	ID            string
	Title         string
	Doc           *metadata.Document
	Renderer      raster.Renderer
	Sizes         raster.SizeFunc
	Options       layout.Options
	RenderWidth   float64
	Overview      overview.Size
	SnapshotWidth int
	Sink          Sink
	Stats         *PassStats
	Log           *slog.Logger
}

// PageSnapshot is an applied layout pass for one page.
type PageSnapshot struct {
	Page        int           `json:"page"`
	Generation  uint64        `json:"generation"`
	Scale       float64       `json:"scale"`
	Width       int           `json:"width"`
	Height      int           `json:"height"`
	Shapes      []HandleShape `json:"shapes"`
	Diagnostics []string      `json:"diagnostics"`
	RenderedAt  time.Time     `json:"rendered_at"`
}

// pageResult is immutable once stored; a new pass swaps the pointer.
type pageResult struct {
	snap   PageSnapshot
	raster *raster.Page
	spans  map[string]layout.SpanLayout
}

type link struct {
	entityID string
	color    string
}

// View is the orchestrator for one open document.
type View struct {
	id       string
	title    string
	doc      *metadata.Document
	renderer raster.Renderer
	sizes    raster.SizeFunc
	opts     layout.Options
	width    float64
	snapW    int
	sink     Sink
	stats    *PassStats
	log      *slog.Logger

	// passMu serialises layout passes across all pages.
	passMu sync.Mutex

	mu        sync.Mutex
	gens      map[int]uint64
	pages     map[int]*pageResult
	links     map[string][]link   // span -> links, oldest first
	entities  map[string][]string // entity -> spans, oldest first
	handles   *HandleTable
	selected  map[string]bool
	hovered   string
	markers   *overview.MarkerSet
	createdAt time.Time
	updatedAt time.Time
	lastUsed  time.Time
}

// New validates cfg and returns an idle view. No page is rendered yet.
func New(cfg Config) (*View, error) {
	if cfg.Doc == nil {
		return nil, fmt.Errorf("view requires document metadata")
	}
	if cfg.Renderer == nil {
		return nil, fmt.Errorf("view requires a renderer")
	}
	if err := cfg.Options.Validate(); err != nil {
		return nil, fmt.Errorf("layout options: %w", err)
	}
	if !(cfg.RenderWidth > 0) || math.IsInf(cfg.RenderWidth, 0) {
		return nil, fmt.Errorf("render width must be positive, got %v", cfg.RenderWidth)
	}
	if cfg.ID == "" {
		cfg.ID = NewID()
	}
	if cfg.Sink == nil {
		cfg.Sink = NopSink{}
	}
	if cfg.Stats == nil {
		cfg.Stats = NewPassStats(time.Hour)
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	now := time.Now()
	return &View{
		id:        cfg.ID,
		title:     cfg.Title,
		doc:       cfg.Doc,
		renderer:  cfg.Renderer,
		sizes:     cfg.Sizes,
		opts:      cfg.Options,
		width:     cfg.RenderWidth,
		snapW:     cfg.SnapshotWidth,
		sink:      cfg.Sink,
		stats:     cfg.Stats,
		log:       cfg.Log.With("doc_id", cfg.ID),
		gens:      make(map[int]uint64),
		pages:     make(map[int]*pageResult),
		links:     make(map[string][]link),
		entities:  make(map[string][]string),
		handles:   NewHandleTable(),
		selected:  make(map[string]bool),
		markers:   overview.NewMarkerSet(cfg.Overview),
		createdAt: now,
		updatedAt: now,
		lastUsed:  now,
	}, nil
}

// ID returns the view's document id.
func (v *View) ID() string { return v.id }

// Doc returns the document metadata.
func (v *View) Doc() *metadata.Document { return v.doc }

// Options returns the layout options of the view.
func (v *View) Options() layout.Options { return v.opts }

// NumPages returns the page count known to the metadata.
func (v *View) NumPages() int { return v.doc.NumPages() }

func (v *View) touchLocked() {
	v.updatedAt = time.Now()
	v.lastUsed = v.updatedAt
}

// Touch marks the view as in use without changing its state.
func (v *View) Touch() {
	v.mu.Lock()
	v.lastUsed = time.Now()
	v.mu.Unlock()
}

// nativeSize resolves a page's unscaled size.
func (v *View) nativeSize(page int) (w, h float64) {
	if w, h, ok := v.doc.PageSize(page); ok {
		return w, h
	}
	if v.sizes != nil {
		if w, h, ok := v.sizes(page); ok && w > 0 && h > 0 {
			return w, h
		}
	}
	return DefaultPageSize[0], DefaultPageSize[1]
}

// RenderPage lays out one page. A cached result is returned unless force
// is set. A forced pass supersedes any pass already in flight for the page.
func (v *View) RenderPage(ctx context.Context, page int, force bool) (PageSnapshot, error) {
	if page < 1 || page > v.doc.NumPages() {
		return PageSnapshot{}, notFound("page", fmt.Sprint(page))
	}

	v.mu.Lock()
	if cached, ok := v.pages[page]; ok && !force {
		v.lastUsed = time.Now()
		v.mu.Unlock()
		return cached.snap, nil
	}
	v.gens[page]++
	gen := v.gens[page]
	v.mu.Unlock()

	start := time.Now()
	log := v.log.With("page", page, "generation", gen)

	nw, _ := v.nativeSize(page)
	scale := v.width / nw

	// Waiting on the raster handle is the only suspension point.
	rp, err := v.renderer.Render(ctx, page, scale)
	if err != nil {
		v.stats.Record(time.Since(start), OutcomeFailed)
		log.Warn("raster page failed", "error", err)
		return PageSnapshot{}, &RenderDependencyError{Page: page, Err: err}
	}

	v.passMu.Lock()
	if v.stale(page, gen) {
		v.passMu.Unlock()
		v.stats.Record(time.Since(start), OutcomeSuperseded)
		log.Debug("pass superseded before layout")
		return PageSnapshot{}, ErrSuperseded
	}
	res := v.layoutPage(page, gen, scale, rp, log)
	v.passMu.Unlock()

	v.mu.Lock()
	if v.gens[page] != gen {
		v.mu.Unlock()
		v.stats.Record(time.Since(start), OutcomeSuperseded)
		log.Debug("pass superseded, result discarded")
		return PageSnapshot{}, ErrSuperseded
	}
	for i := range res.snap.Shapes {
		res.snap.Shapes[i].Handle = v.handles.Assign(res.snap.Shapes[i].SpanID)
	}
	v.pages[page] = res
	v.refreshMarkersLocked()
	markers := v.markers.All()
	v.touchLocked()
	v.mu.Unlock()

	v.sink.ShapesRendered(v.id, page, res.snap.Shapes)
	v.sink.MarkersChanged(v.id, markers)
	v.stats.Record(time.Since(start), OutcomeApplied)
	log.Debug("page laid out", "shapes", len(res.snap.Shapes), "diagnostics", len(res.snap.Diagnostics))
	return res.snap, nil
}

func (v *View) stale(page int, gen uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.gens[page] != gen
}

// layoutPage runs normalize, lines, areas and shapes for every span on the
// page. Bad fragments and areas become diagnostics.
func (v *View) layoutPage(page int, gen uint64, scale float64, rp *raster.Page, log *slog.Logger) *pageResult {
	margin := func(p int) (float64, bool) {
		il, ok := v.doc.Interline(p)
		if !ok {
			return 0, false
		}
		return il * scale, true
	}

	res := &pageResult{
		raster: rp,
		spans:  make(map[string]layout.SpanLayout),
		snap: PageSnapshot{
			Page:        page,
			Generation:  gen,
			Scale:       scale,
			Width:       rp.Width,
			Height:      rp.Height,
			Shapes:      []HandleShape{},
			Diagnostics: []string{},
			RenderedAt:  time.Now(),
		},
	}
	for _, spanID := range v.doc.SpansOnPage(page) {
		sl, errs := layout.LayoutSpan(spanID, v.doc.Fragments(spanID, page), scale, margin, v.opts)
		for _, f := range v.doc.StrayFragments(spanID, page) {
			if err := layout.CheckPage(f, v.doc.NumPages()); err != nil {
				errs = append(errs, err)
			}
		}
		for _, err := range errs {
			log.Warn("layout input skipped", "span_id", spanID, "error", err)
			res.snap.Diagnostics = append(res.snap.Diagnostics, err.Error())
		}
		res.spans[spanID] = sl
		for _, s := range sl.Shapes {
			res.snap.Shapes = append(res.snap.Shapes, HandleShape{Shape: s})
		}
	}
	return res
}

// RenderUntil lays out pages 1..n in increasing order.
func (v *View) RenderUntil(ctx context.Context, n int) ([]PageSnapshot, error) {
	if n > v.doc.NumPages() {
		n = v.doc.NumPages()
	}
	pages := make([]int, 0, n)
	for p := 1; p <= n; p++ {
		pages = append(pages, p)
	}
	return v.renderSeries(ctx, pages, false)
}

// RenderPages lays out the given pages in increasing order.
func (v *View) RenderPages(ctx context.Context, pages []int) ([]PageSnapshot, error) {
	return v.renderSeries(ctx, sortedUnique(pages), false)
}

// Refresh forces a new pass over every page rendered so far.
func (v *View) Refresh(ctx context.Context) ([]PageSnapshot, error) {
	return v.renderSeries(ctx, v.RenderedPages(), true)
}

// renderSeries renders pages one after another. A page's failure does not
// stop the series; cancellation does.
func (v *View) renderSeries(ctx context.Context, pages []int, force bool) ([]PageSnapshot, error) {
	var out []PageSnapshot
	var errs []error
	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		snap, err := v.RenderPage(ctx, p, force)
		if err != nil {
			errs = append(errs, fmt.Errorf("page %d: %w", p, err))
			continue
		}
		out = append(out, snap)
	}
	return out, errors.Join(errs...)
}

// Page returns the cached result for page.
func (v *View) Page(page int) (PageSnapshot, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	r, ok := v.pages[page]
	if !ok {
		return PageSnapshot{}, false
	}
	return r.snap, true
}

// RenderedPages returns the cached page numbers in increasing order.
func (v *View) RenderedPages() []int {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]int, 0, len(v.pages))
	for p := range v.pages {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// Generation returns the current generation counter of page.
func (v *View) Generation(page int) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.gens[page]
}

// SpanAt hit-tests the rendered shapes of page at (x, y) in page pixels and
// resolves the hit through the handle table.
func (v *View) SpanAt(page int, x, y float64) (spanID, handle string, ok bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	r, found := v.pages[page]
	if !found {
		return "", "", false
	}
	shapes := r.snap.Shapes
	for i := len(shapes) - 1; i >= 0; i-- {
		s := shapes[i]
		if x >= s.X && x <= s.X+s.W && y >= s.Y && y <= s.Y+s.H {
			id, known := v.handles.Span(s.Handle)
			if !known {
				continue
			}
			return id, s.Handle, true
		}
	}
	return "", "", false
}

// Overlay returns page's raster with every shape stroked in its current
// stroke, encoded as PNG.
func (v *View) Overlay(page int) ([]byte, error) {
	v.mu.Lock()
	r, ok := v.pages[page]
	if !ok {
		v.mu.Unlock()
		return nil, notFound("rendered page", fmt.Sprint(page))
	}
	v.lastUsed = time.Now()
	strokes := make(map[string]raster.Stroke)
	shapes := make([]layout.Shape, len(r.snap.Shapes))
	for i, s := range r.snap.Shapes {
		shapes[i] = s.Shape
		if _, done := strokes[s.SpanID]; !done {
			strokes[s.SpanID] = v.strokeLocked(s.SpanID)
		}
	}
	v.mu.Unlock()

	img, err := raster.Overlay(r.raster, shapes, func(spanID string) raster.Stroke { return strokes[spanID] })
	if err != nil {
		return nil, fmt.Errorf("overlay page %d: %w", page, err)
	}
	return raster.EncodePNG(img)
}

// Snapshot returns a JPEG crop of spanID's first area on its first page,
// rendering that page if needed.
func (v *View) Snapshot(ctx context.Context, spanID string) ([]byte, error) {
	pages, ok := v.doc.PagesOfSpan(spanID)
	if !ok {
		return nil, notFound("span", spanID)
	}
	if len(pages) == 0 {
		return nil, notFound("span geometry", spanID)
	}
	page := pages[0]
	if _, err := v.RenderPage(ctx, page, false); err != nil {
		return nil, err
	}

	v.mu.Lock()
	r := v.pages[page]
	v.mu.Unlock()
	if r == nil {
		return nil, notFound("rendered page", fmt.Sprint(page))
	}
	sl, ok := r.spans[spanID]
	if !ok || len(sl.Areas) == 0 {
		return nil, notFound("span geometry", spanID)
	}
	b := sl.Areas[0].Bounds
	rect := image.Rect(int(math.Floor(b.X.Lo)), int(math.Floor(b.Y.Lo)), int(math.Ceil(b.X.Hi)), int(math.Ceil(b.Y.Hi)))
	return raster.Snapshot(r.raster.Target, rect, v.opts.MarginImage, v.snapW)
}

// Info is a JSON-safe summary of a view.
type Info struct {
	ID            string    `json:"doc_id"`
	Title         string    `json:"title"`
	NumPages      int       `json:"num_pages"`
	RenderedPages []int     `json:"rendered_pages"`
	Spans         int       `json:"spans"`
	LinkedSpans   int       `json:"linked_spans"`
	Entities      int       `json:"entities"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Info returns a summary of the view.
func (v *View) Info() Info {
	rendered := v.RenderedPages()
	v.mu.Lock()
	defer v.mu.Unlock()
	return Info{
		ID:            v.id,
		Title:         v.title,
		NumPages:      v.doc.NumPages(),
		RenderedPages: rendered,
		Spans:         len(v.doc.Sentences),
		LinkedSpans:   len(v.links),
		Entities:      len(v.entities),
		CreatedAt:     v.createdAt,
		UpdatedAt:     v.updatedAt,
	}
}

// LastUsed returns the time the view was last read or changed.
func (v *View) LastUsed() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastUsed
}

func sortedUnique(in []int) []int {
	seen := make(map[int]bool, len(in))
	out := make([]int, 0, len(in))
	for _, p := range in {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Ints(out)
	return out
}
