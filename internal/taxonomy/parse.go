package taxonomy

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// DataType is one entity type described by a wiki page.
type DataType struct {
	Path                     string `json:"path"`
	ID                       string `json:"id"`
	MeshID                   string `json:"mesh_id"`
	Description              string `json:"description"`
	BestDataFormatForSharing string `json:"bestDataFormatForSharing"`
	MostSuitableRepositories string `json:"mostSuitableRepositories"`
	Label                    string `json:"label"`
	URL                      string `json:"url,omitempty"`
}

const dataTypeLink = "/doku.php?id=data_type:"

var (
	underscores = regexp.MustCompile(`_+`)
	spaces      = regexp.MustCompile(`\s+`)
)

// ExtractLinks returns the hrefs of the data type pages listed on the index
// page, in document order.
func ExtractLinks(r io.Reader) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse index: %w", err)
	}
	var links []string
	walk(doc, func(n *html.Node) bool {
		if n.Data == "a" && hasClass(n, "wikilink1") {
			if href := attr(n, "href"); strings.Contains(href, dataTypeLink) {
				links = append(links, href)
			}
		}
		return true
	})
	return links, nil
}

// ParseDataType reads a data type page: the heading carries the type path
// and label, the level2 section holds "Key: value" paragraphs. Untitled
// blocks are appended to the preceding key.
func ParseDataType(r io.Reader) (DataType, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return DataType{}, fmt.Errorf("parse data type: %w", err)
	}

	var heading, section *html.Node
	walk(doc, func(n *html.Node) bool {
		switch {
		case heading == nil && n.Data == "h2" && hasClass(n, "sectionedit1"):
			heading = n
		case section == nil && n.Data == "div" && hasClass(n, "level2"):
			section = n
		}
		return heading == nil || section == nil
	})
	if heading == nil || attr(heading, "id") == "" {
		return DataType{}, fmt.Errorf("data type page has no sectionedit1 heading")
	}

	id := attr(heading, "id")
	segments := strings.Split(id, "-_")
	label := textContent(heading)
	if i := strings.LastIndex(label, "- "); i >= 0 {
		label = label[i+2:]
	}
	dt := DataType{
		Path:  clean(strings.ReplaceAll(id, "-_", ":")),
		ID:    clean(segments[len(segments)-1]),
		Label: strings.TrimSpace(label),
	}

	values, plain := sectionValues(section)
	if m := plain["mesh_id"]; m != "n/a" {
		dt.MeshID = m
	}
	dt.Description = values["description"]
	dt.BestDataFormatForSharing = values["best_practice_for_sharing_this_type_of_data"]
	dt.MostSuitableRepositories = values["most_suitable_repositories"]
	return dt, nil
}

// sectionValues returns the HTML value and the plain text of the first
// paragraph for every key of the section.
func sectionValues(section *html.Node) (values, plain map[string]string) {
	values = make(map[string]string)
	plain = make(map[string]string)
	if section == nil {
		return values, plain
	}
	lastKey := ""
	for el := section.FirstChild; el != nil; el = el.NextSibling {
		if el.Type != html.ElementNode {
			continue
		}
		if el.Data != "p" {
			values[lastKey] += "<" + el.Data + ">" + innerHTML(el, nil) + "</" + el.Data + ">"
			continue
		}
		strong := find(el, "strong")
		if strong == nil {
			values[lastKey] += "<p>" + innerHTML(el, nil) + "</p>"
			continue
		}
		text := textContent(strong)
		if len(text) > 0 {
			text = text[:len(text)-1]
		}
		key := spaces.ReplaceAllString(strings.ToLower(text), "_")

		skip := map[*html.Node]bool{strong: true}
		if next := nextElement(strong); next != nil && next.Data == "br" && strong.Parent == el {
			skip[next] = true
		}
		values[key] = "<p>" + strings.TrimLeft(innerHTML(el, skip), " \t\r\n") + "</p>"
		plain[key] = strings.TrimSpace(strings.TrimPrefix(textContent(el), textContent(strong)))
		lastKey = key
	}
	return values, plain
}

func clean(s string) string {
	return spaces.ReplaceAllString(underscores.ReplaceAllString(s, " "), " ")
}

// walk visits element nodes depth-first until visit returns false.
func walk(n *html.Node, visit func(*html.Node) bool) bool {
	if n.Type == html.ElementNode && !visit(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, visit) {
			return false
		}
	}
	return true
}

func find(n *html.Node, tag string) *html.Node {
	var found *html.Node
	for c := n.FirstChild; c != nil && found == nil; c = c.NextSibling {
		walk(c, func(x *html.Node) bool {
			if x.Data == tag {
				found = x
				return false
			}
			return true
		})
	}
	return found
}

func nextElement(n *html.Node) *html.Node {
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode {
			return s
		}
		if s.Type == html.TextNode && strings.TrimSpace(s.Data) != "" {
			return nil
		}
	}
	return nil
}

func innerHTML(n *html.Node, skip map[*html.Node]bool) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if skip[c] {
			continue
		}
		html.Render(&buf, c)
	}
	return buf.String()
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var rec func(*html.Node)
	rec = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			rec(c)
		}
	}
	rec(n)
	return sb.String()
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
