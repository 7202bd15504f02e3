package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/dochighlight/internal/config"
	"github.com/dgallion1/dochighlight/internal/layout"
	"github.com/dgallion1/dochighlight/internal/taxonomy"
	"github.com/dgallion1/dochighlight/internal/viewer"
	"github.com/gorilla/websocket"
)

const testKey = "secret"

const testDoc = `{
  "pages": {
    "1": {"sentences": {"a": true, "b": true}, "width": 612, "height": 792},
    "2": {"sentences": {"c": true}}
  },
  "sentences": {
    "a": {"text": "Alpha.", "chunks": [{"x": 100, "y": 100, "w": 200, "h": 12, "p": 1}]},
    "b": {"text": "Beta.", "chunks": [{"x": 100, "y": 300, "w": 100, "h": 12, "p": 1}]},
    "c": {"text": "Gamma.", "chunks": [{"x": 50, "y": 50, "w": 100, "h": 12, "p": 2}]}
  }
}`

type fakeTaxonomy struct {
	idx *taxonomy.Index
	err error
}

func (f fakeTaxonomy) DataTypes(context.Context) (*taxonomy.Index, error) {
	return f.idx, f.err
}

func newTestServer(t *testing.T, tax TaxonomySource) *Server {
	t.Helper()
	return newTestServerTTL(t, tax, time.Hour)
}

func newTestServerTTL(t *testing.T, tax TaxonomySource, ttl time.Duration) *Server {
	t.Helper()
	cfg := config.Config{
		APIKey:         testKey,
		MaxUploadBytes: 1 << 20,
		Layout:         layout.DefaultOptions(),
		RenderWidth:    612,
		SnapshotWidth:  200,
		OverviewWidth:  16,
		OverviewHeight: 800,
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := viewer.NewRegistry(ttl, log)
	return NewServer(reg, viewer.NewPassStats(time.Hour), tax, log, cfg)
}

func do(t *testing.T, s http.Handler, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Authorization", "Bearer "+testKey)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func createDoc(t *testing.T, s http.Handler, id string) {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/api/documents?title=Test&doc_id="+id, strings.NewReader(testDoc))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestAuth(t *testing.T) {
	s := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/documents", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing key: expected 401, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: expected 401, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/documents?access_token="+testKey, nil))
	if rec.Code != http.StatusOK {
		t.Errorf("query token: expected 200, got %d", rec.Code)
	}
}

func TestCreateDocument(t *testing.T) {
	s := newTestServer(t, nil)
	createDoc(t, s, "d1")

	rec := do(t, s, http.MethodGet, "/api/documents/d1", nil)
	var info viewer.Info
	decode(t, rec, &info)
	if info.ID != "d1" || info.Title != "Test" || info.NumPages != 2 || info.Spans != 3 {
		t.Errorf("unexpected info %+v", info)
	}

	if rec := do(t, s, http.MethodPost, "/api/documents?doc_id=d1", strings.NewReader(testDoc)); rec.Code != http.StatusConflict {
		t.Errorf("duplicate id: expected 409, got %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/documents", strings.NewReader(`{"pages":`)); rec.Code != http.StatusBadRequest {
		t.Errorf("bad json: expected 400, got %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/documents", strings.NewReader("")); rec.Code != http.StatusBadRequest {
		t.Errorf("empty body: expected 400, got %d", rec.Code)
	}

	rec = do(t, s, http.MethodGet, "/api/documents", nil)
	var list struct {
		Documents []viewer.Info `json:"documents"`
	}
	decode(t, rec, &list)
	if len(list.Documents) != 1 {
		t.Errorf("expected one document, got %d", len(list.Documents))
	}
}

func TestCreateDocument_Multipart(t *testing.T) {
	s := newTestServer(t, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("title", "Uploaded")
	part, _ := mw.CreateFormFile("metadata", "doc.json")
	part.Write([]byte(testDoc))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/documents", &body)
	req.Header.Set("Authorization", "Bearer "+testKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	var info viewer.Info
	decode(t, rec, &info)
	if info.Title != "Uploaded" || len(info.ID) != 26 {
		t.Errorf("unexpected info %+v", info)
	}
}

func TestRenderAndShapes(t *testing.T) {
	s := newTestServer(t, nil)
	createDoc(t, s, "d1")

	if rec := do(t, s, http.MethodGet, "/api/documents/d1/pages/1/shapes", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unrendered page: expected 404, got %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/documents/d1/pages/0/render", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("page 0: expected 400, got %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/documents/d1/pages/9/render", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown page: expected 404, got %d", rec.Code)
	}

	rec := do(t, s, http.MethodPost, "/api/documents/d1/render", nil)
	var res renderResult
	decode(t, rec, &res)
	if len(res.Pages) != 2 || len(res.Errors) != 0 {
		t.Fatalf("unexpected render result %+v", res)
	}

	rec = do(t, s, http.MethodGet, "/api/documents/d1/pages/1/shapes", nil)
	var snap viewer.PageSnapshot
	decode(t, rec, &snap)
	if len(snap.Shapes) != 2 || snap.Generation != 1 {
		t.Errorf("unexpected snapshot gen=%d shapes=%d", snap.Generation, len(snap.Shapes))
	}

	rec = do(t, s, http.MethodPost, "/api/documents/d1/pages/1/render?force=true", nil)
	decode(t, rec, &snap)
	if snap.Generation != 2 {
		t.Errorf("forced render should bump generation, got %d", snap.Generation)
	}

	rec = do(t, s, http.MethodGet, "/api/documents/d1/pages/1/hit?x=150&y=105", nil)
	var hit map[string]any
	decode(t, rec, &hit)
	if hit["span_id"] != "a" {
		t.Errorf("expected hit on a, got %v", hit)
	}
	if rec := do(t, s, http.MethodGet, "/api/documents/d1/pages/1/hit?x=5&y=5", nil); rec.Code != http.StatusNotFound {
		t.Errorf("empty hit: expected 404, got %d", rec.Code)
	}

	rec = do(t, s, http.MethodGet, "/api/documents/d1/pages/1/overlay.png", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Errorf("overlay: %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	rec = do(t, s, http.MethodGet, "/api/documents/d1/spans/a/snapshot.jpg", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/jpeg" {
		t.Errorf("snapshot: %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}

	rec = do(t, s, http.MethodGet, "/api/stats/layout", nil)
	var stats struct {
		Open  int                  `json:"open_documents"`
		Stats viewer.StatsSnapshot `json:"stats"`
	}
	decode(t, rec, &stats)
	if stats.Open != 1 || stats.Stats.Applied != 3 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestLinksAndEntities(t *testing.T) {
	s := newTestServer(t, nil)
	createDoc(t, s, "d1")
	do(t, s, http.MethodPost, "/api/documents/d1/render", nil)

	cases := []struct {
		body string
		want int
	}{
		{`{"span_id":"a","entity_id":"e1","color":"nope"}`, http.StatusBadRequest},
		{`{"span_id":"a","entity_id":"","color":"#f00"}`, http.StatusBadRequest},
		{`{"span_id":"zz","entity_id":"e1","color":"#f00"}`, http.StatusNotFound},
		{`not json`, http.StatusBadRequest},
		{`{"span_id":"a","entity_id":"e1","color":"#ff0000"}`, http.StatusOK},
		{`{"span_id":"c","entity_id":"e1","color":"#ff0000"}`, http.StatusOK},
	}
	for _, tc := range cases {
		if rec := do(t, s, http.MethodPut, "/api/documents/d1/links", strings.NewReader(tc.body)); rec.Code != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.body, tc.want, rec.Code)
		}
	}

	rec := do(t, s, http.MethodGet, "/api/documents/d1/entities/e1/pages", nil)
	var pages struct {
		Pages []int `json:"pages"`
	}
	decode(t, rec, &pages)
	if fmt.Sprint(pages.Pages) != "[1 2]" {
		t.Errorf("entity pages = %v", pages.Pages)
	}

	rec = do(t, s, http.MethodGet, "/api/documents/d1/markers", nil)
	var markers struct {
		Markers []map[string]any `json:"markers"`
	}
	decode(t, rec, &markers)
	if len(markers.Markers) != 2 {
		t.Errorf("expected two markers, got %d", len(markers.Markers))
	}

	rec = do(t, s, http.MethodGet, "/api/documents/d1/report?format=md", nil)
	if !strings.Contains(rec.Body.String(), "Alpha.") || !strings.Contains(rec.Body.String(), "`e1`") {
		t.Errorf("report missing content: %s", rec.Body.String())
	}
	rec = do(t, s, http.MethodGet, "/api/documents/d1/report?format=docx", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Header().Get("Content-Disposition"), "Test.docx") {
		t.Errorf("docx report: %d %v", rec.Code, rec.Header())
	}
	if rec := do(t, s, http.MethodGet, "/api/documents/d1/report?format=pdf", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown format: expected 400, got %d", rec.Code)
	}

	if rec := do(t, s, http.MethodDelete, "/api/documents/d1/links?span_id=a&entity_id=e9", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing link: expected 404, got %d", rec.Code)
	}
	if rec := do(t, s, http.MethodDelete, "/api/documents/d1/links?span_id=a&entity_id=e1", nil); rec.Code != http.StatusOK {
		t.Errorf("remove link: expected 200, got %d", rec.Code)
	}

	rec = do(t, s, http.MethodDelete, "/api/documents/d1/entities/e1", nil)
	var removed struct {
		SpanIDs []string `json:"span_ids"`
	}
	decode(t, rec, &removed)
	if fmt.Sprint(removed.SpanIDs) != "[c]" {
		t.Errorf("removed spans = %v", removed.SpanIDs)
	}
	if rec := do(t, s, http.MethodGet, "/api/documents/d1/entities/e1", nil); rec.Code != http.StatusNotFound {
		t.Errorf("removed entity: expected 404, got %d", rec.Code)
	}
}

func TestSelectionAndRange(t *testing.T) {
	s := newTestServer(t, nil)
	createDoc(t, s, "d1")

	if rec := do(t, s, http.MethodPost, "/api/documents/d1/spans/zz/select", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown span: expected 404, got %d", rec.Code)
	}
	do(t, s, http.MethodPost, "/api/documents/d1/spans/b/select", nil)

	rec := do(t, s, http.MethodGet, "/api/documents/d1/spans/b/stroke", nil)
	var stroke struct {
		Color string `json:"color"`
	}
	decode(t, rec, &stroke)
	if stroke.Color != layout.DefaultOptions().SelectedColor {
		t.Errorf("selected stroke color = %q", stroke.Color)
	}

	rec = do(t, s, http.MethodPost, "/api/documents/d1/range", strings.NewReader(`{"span_ids":["c","a"],"select":true}`))
	var rng struct {
		SpanIDs []string `json:"span_ids"`
	}
	decode(t, rec, &rng)
	if fmt.Sprint(rng.SpanIDs) != "[a b c]" {
		t.Errorf("range = %v", rng.SpanIDs)
	}

	rec = do(t, s, http.MethodGet, "/api/documents/d1/selection", nil)
	var sel struct {
		Selected []string `json:"selected"`
	}
	decode(t, rec, &sel)
	if fmt.Sprint(sel.Selected) != "[a b c]" {
		t.Errorf("selection = %v", sel.Selected)
	}

	do(t, s, http.MethodDelete, "/api/documents/d1/selection", nil)
	decode(t, do(t, s, http.MethodGet, "/api/documents/d1/selection", nil), &sel)
	if len(sel.Selected) != 0 {
		t.Errorf("expected empty selection, got %v", sel.Selected)
	}

	if rec := do(t, s, http.MethodPost, "/api/documents/d1/spans/a/hover", nil); rec.Code != http.StatusNoContent {
		t.Errorf("hover: expected 204, got %d", rec.Code)
	}

	rec = do(t, s, http.MethodGet, "/api/documents/d1/spans/c/order", nil)
	var order struct {
		Index int `json:"index"`
	}
	decode(t, rec, &order)
	if order.Index != 2 {
		t.Errorf("order of c = %d", order.Index)
	}
}

func TestDeleteDocument(t *testing.T) {
	s := newTestServer(t, nil)
	createDoc(t, s, "d1")
	if rec := do(t, s, http.MethodDelete, "/api/documents/d1", nil); rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/api/documents/d1", nil); rec.Code != http.StatusNotFound {
		t.Errorf("deleted doc: expected 404, got %d", rec.Code)
	}
	if rec := do(t, s, http.MethodDelete, "/api/documents/d1", nil); rec.Code != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", rec.Code)
	}
}

func TestDataTypes(t *testing.T) {
	if rec := do(t, newTestServer(t, nil), http.MethodGet, "/api/taxonomy/datatypes", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("no taxonomy: expected 503, got %d", rec.Code)
	}

	failing := newTestServer(t, fakeTaxonomy{err: errors.New("wiki down")})
	if rec := do(t, failing, http.MethodGet, "/api/taxonomy/datatypes", nil); rec.Code != http.StatusBadGateway {
		t.Errorf("failing taxonomy: expected 502, got %d", rec.Code)
	}

	idx := taxonomy.Build([]taxonomy.DataType{{Path: "dataset", ID: "dataset"}, {Path: "dataset:tabular", ID: "tabular"}})
	rec := do(t, newTestServer(t, fakeTaxonomy{idx: idx}), http.MethodGet, "/api/taxonomy/datatypes", nil)
	var got taxonomy.Index
	decode(t, rec, &got)
	if fmt.Sprint(got.DataTypes["dataset"]) != "[tabular]" || got.SubTypes["tabular"] != "dataset" {
		t.Errorf("unexpected index %+v", got)
	}
}

func TestWriteViewError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&viewer.NotFoundError{Kind: "span", ID: "x"}, http.StatusNotFound},
		{&layout.InputError{SpanID: "x"}, http.StatusBadRequest},
		{fmt.Errorf("add: %w", viewer.ErrInvalidColor), http.StatusBadRequest},
		{viewer.ErrSuperseded, http.StatusConflict},
		{&viewer.RenderDependencyError{Page: 1, Err: errors.New("boom")}, http.StatusBadGateway},
		{context.Canceled, http.StatusServiceUnavailable},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeViewError(rec, tc.err)
		if rec.Code != tc.want {
			t.Errorf("%v: expected %d, got %d", tc.err, tc.want, rec.Code)
		}
	}
}

func TestStream(t *testing.T) {
	s := newTestServer(t, nil)
	createDoc(t, s, "d1")
	ts := httptest.NewServer(s)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/documents/d1/stream?access_token=" + testKey
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read initial: %v", err)
	}
	if ev.Type != "markers" || ev.DocID != "d1" {
		t.Errorf("unexpected initial event %+v", ev)
	}
	if n := s.Hub().Subscribers("d1"); n != 1 {
		t.Errorf("expected one subscriber, got %d", n)
	}

	do(t, s, http.MethodPost, "/api/documents/d1/spans/b/hover", nil)
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read stroke: %v", err)
	}
	if ev.Type != "stroke" || ev.SpanID != "b" || ev.Stroke == nil || ev.Stroke.Color != layout.DefaultOptions().HoverColor {
		t.Errorf("unexpected stroke event %+v", ev)
	}

	do(t, s, http.MethodDelete, "/api/documents/d1", nil)
	if err := conn.ReadJSON(&ev); err == nil {
		t.Error("expected stream to close with the document")
	}
}

func TestStream_ClosedWhenViewEvicted(t *testing.T) {
	s := newTestServerTTL(t, nil, 50*time.Millisecond)
	createDoc(t, s, "d1")
	ts := httptest.NewServer(s)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/documents/d1/stream?access_token=" + testKey
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read initial: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if n := s.registry.Cleanup(); n != 1 {
		t.Fatalf("expected idle view evicted, got %d", n)
	}
	for {
		if err := conn.ReadJSON(&ev); err != nil {
			break
		}
	}
	deadline := time.Now().Add(2 * time.Second)
	for s.Hub().Subscribers("d1") != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := s.Hub().Subscribers("d1"); n != 0 {
		t.Errorf("expected no subscribers after eviction, got %d", n)
	}
}
