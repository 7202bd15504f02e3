// Package report exports a view's entity links as Markdown, HTML or DOCX.
package report

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dgallion1/dochighlight/internal/metadata"
	"github.com/dgallion1/dochighlight/internal/raster"
	"github.com/dgallion1/dochighlight/internal/viewer"
	"github.com/fumiama/go-docx"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Span is one linked sentence.
type Span struct {
	SpanID string `json:"span_id"`
	Text   string `json:"text"`
	Pages  []int  `json:"pages"`
	Order  int    `json:"order"`
}

// Entity groups the spans linked to one entity.
type Entity struct {
	EntityID string `json:"entity_id"`
	Color    string `json:"color"`
	Spans    []Span `json:"spans"`
}

// Report lists every entity in the reading order of its first span.
type Report struct {
	Title       string    `json:"title"`
	GeneratedAt time.Time `json:"generated_at"`
	Links       int       `json:"links"`
	Entities    []Entity  `json:"entities"`
}

// Build groups links by entity. Each entity takes the color of its most
// recent link.
func Build(title string, doc *metadata.Document, links []viewer.Link) Report {
	r := Report{Title: title, GeneratedAt: time.Now().UTC(), Links: len(links)}
	byEntity := make(map[string]int)
	for _, l := range links {
		i, ok := byEntity[l.EntityID]
		if !ok {
			i = len(r.Entities)
			byEntity[l.EntityID] = i
			r.Entities = append(r.Entities, Entity{EntityID: l.EntityID})
		}
		order, _ := doc.ReadingOrderIndex(l.SpanID)
		pages, _ := doc.PagesOfSpan(l.SpanID)
		r.Entities[i].Color = l.Color
		r.Entities[i].Spans = append(r.Entities[i].Spans, Span{
			SpanID: l.SpanID,
			Text:   doc.SpanText(l.SpanID),
			Pages:  pages,
			Order:  order,
		})
	}
	for i := range r.Entities {
		spans := r.Entities[i].Spans
		sort.SliceStable(spans, func(a, b int) bool { return spans[a].Order < spans[b].Order })
	}
	sort.SliceStable(r.Entities, func(a, b int) bool {
		return r.Entities[a].Spans[0].Order < r.Entities[b].Spans[0].Order
	})
	return r
}

// Markdown renders the report with one table per entity.
func (r Report) Markdown() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", mdEscape(r.Title))
	fmt.Fprintf(&sb, "_%d links across %d entities_\n", r.Links, len(r.Entities))
	for _, e := range r.Entities {
		fmt.Fprintf(&sb, "\n## Entity `%s`\n\n", e.EntityID)
		sb.WriteString("| Span | Pages | Text |\n|---|---|---|\n")
		for _, s := range e.Spans {
			fmt.Fprintf(&sb, "| %s | %s | %s |\n", mdEscape(s.SpanID), joinInts(s.Pages), mdEscape(s.Text))
		}
	}
	return sb.String()
}

// HTML renders the Markdown form through goldmark.
func (r Report) HTML() ([]byte, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	var buf bytes.Buffer
	if err := md.Convert([]byte(r.Markdown()), &buf); err != nil {
		return nil, fmt.Errorf("render report html: %w", err)
	}
	return buf.Bytes(), nil
}

// DOCX writes the report as a Word document.
func (r Report) DOCX(w io.Writer) error {
	d := docx.New().WithDefaultTheme()
	d.AddParagraph().AddText(r.Title).Bold().Size("36")
	d.AddParagraph().AddText(fmt.Sprintf("%d links across %d entities", r.Links, len(r.Entities))).Italic()

	for _, e := range r.Entities {
		heading := d.AddParagraph().AddText("Entity " + e.EntityID).Bold().Size("28")
		if hex, ok := docxColor(e.Color); ok {
			heading.Color(hex)
		}
		t := d.AddTable(len(e.Spans)+1, 3, 0, nil)
		for j, h := range []string{"Span", "Pages", "Text"} {
			t.TableRows[0].TableCells[j].AddParagraph().AddText(h).Bold()
		}
		for i, s := range e.Spans {
			cells := t.TableRows[i+1].TableCells
			cells[0].AddParagraph().AddText(s.SpanID)
			cells[1].AddParagraph().AddText(joinInts(s.Pages))
			cells[2].AddParagraph().AddText(s.Text)
		}
	}
	if _, err := d.WriteTo(w); err != nil {
		return fmt.Errorf("write docx: %w", err)
	}
	return nil
}

// docxColor converts a link color into the RRGGBB form Word expects.
func docxColor(c string) (string, bool) {
	rgba, err := raster.ParseColor(c)
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%02X%02X%02X", rgba.R, rgba.G, rgba.B), true
}

func joinInts(vs []int) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}

var mdReplacer = strings.NewReplacer("|", `\|`, "\n", " ", "\r", " ")

func mdEscape(s string) string {
	return mdReplacer.Replace(s)
}
