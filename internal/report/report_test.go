package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/dgallion1/dochighlight/internal/metadata"
	"github.com/dgallion1/dochighlight/internal/viewer"
	"github.com/fumiama/go-docx"
)

const sample = `{
  "pages": {"1": {"sentences": {"a": true, "b": true}}, "2": {"sentences": {"c": true}}},
  "sentences": {
    "a": {"text": "Cells were | stained.", "chunks": [{"x": 10, "y": 10, "w": 50, "h": 12, "p": 1}]},
    "b": {"text": "Images were taken.", "chunks": [{"x": 10, "y": 40, "w": 50, "h": 12, "p": 1}]},
    "c": {"text": "Data is on Zenodo.", "chunks": [{"x": 10, "y": 10, "w": 50, "h": 12, "p": 2}]}
  }
}`

func buildSample(t *testing.T) Report {
	t.Helper()
	doc, err := metadata.Decode(strings.NewReader(sample))
	if err != nil {
		t.Fatal(err)
	}
	return Build("Methods", doc, []viewer.Link{
		{SpanID: "c", EntityID: "dataset", Color: "#00ff00"},
		{SpanID: "b", EntityID: "microscopy", Color: "#ff0000"},
		{SpanID: "a", EntityID: "dataset", Color: "#0000ff"},
	})
}

func TestBuild_GroupsInReadingOrder(t *testing.T) {
	r := buildSample(t)
	if r.Links != 3 || len(r.Entities) != 2 {
		t.Fatalf("unexpected report %+v", r)
	}
	ds := r.Entities[0]
	if ds.EntityID != "dataset" || ds.Color != "#0000ff" {
		t.Errorf("expected dataset first with its latest color, got %+v", ds)
	}
	if ds.Spans[0].SpanID != "a" || ds.Spans[1].SpanID != "c" {
		t.Errorf("spans out of reading order: %+v", ds.Spans)
	}
	if len(ds.Spans[1].Pages) != 1 || ds.Spans[1].Pages[0] != 2 {
		t.Errorf("pages of c = %v", ds.Spans[1].Pages)
	}
}

func TestMarkdownAndHTML(t *testing.T) {
	r := buildSample(t)
	md := r.Markdown()
	for _, want := range []string{"# Methods", "## Entity `dataset`", `| a | 1 | Cells were \| stained. |`, "| c | 2 | Data is on Zenodo. |"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}

	out, err := r.HTML()
	if err != nil {
		t.Fatal(err)
	}
	html := string(out)
	for _, want := range []string{"<h1>Methods</h1>", "<table>", "<td>Images were taken.</td>", "Cells were | stained."} {
		if !strings.Contains(html, want) {
			t.Errorf("html missing %q:\n%s", want, html)
		}
	}
}

func TestDOCX_RoundTrip(t *testing.T) {
	r := buildSample(t)
	var buf bytes.Buffer
	if err := r.DOCX(&buf); err != nil {
		t.Fatalf("docx: %v", err)
	}
	doc, err := docx.Parse(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("parse generated docx: %v", err)
	}

	var texts []string
	for _, item := range doc.Document.Body.Items {
		switch it := item.(type) {
		case *docx.Paragraph:
			texts = append(texts, paragraphText(it))
		case *docx.Table:
			for _, row := range it.TableRows {
				for _, cell := range row.TableCells {
					for _, p := range cell.Paragraphs {
						texts = append(texts, paragraphText(p))
					}
				}
			}
		}
	}
	all := strings.Join(texts, "\n")
	for _, want := range []string{"Methods", "Entity dataset", "Entity microscopy", "Data is on Zenodo.", "Span"} {
		if !strings.Contains(all, want) {
			t.Errorf("docx missing %q:\n%s", want, all)
		}
	}
}

func TestDocxColor(t *testing.T) {
	if c, ok := docxColor("rgb(255, 0, 16)"); !ok || c != "FF0010" {
		t.Errorf("got %q %v", c, ok)
	}
	if _, ok := docxColor("blue-ish"); ok {
		t.Error("expected failure for unknown color")
	}
}

func paragraphText(p *docx.Paragraph) string {
	var sb strings.Builder
	for _, child := range p.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				sb.WriteString(t.Text)
			}
		}
	}
	return sb.String()
}
