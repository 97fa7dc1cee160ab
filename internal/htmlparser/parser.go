// Package htmlparser parses an HTML document once and exposes both the raw
// link records the crawl engine needs to canonicalize/classify, and a
// small set of DOM query helpers the extractor pipeline builds Page
// Records from.
//
// Extended from the teacher crawler's link-only ExtractLinks into a
// general single-parse document wrapper; the tree-walk idiom is unchanged.
package htmlparser

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Link is a raw, unresolved href plus the attributes the engine needs to
// classify and canonicalize it.
type Link struct {
	Href       string
	AnchorText string
	Rel        []string
	Target     string
}

// Document wraps a parsed *html.Node tree so the extractor pipeline can ask
// for titles, headings, images, and so on without re-parsing the body. No
// query result is cached: each query walks the tree again.
type Document struct {
	Root *html.Node
}

// Parse parses r as HTML and returns a Document. Parse errors from
// golang.org/x/net/html are rare (the parser is forgiving of malformed
// markup by design) but are still propagated so callers can record a
// ParseError on the Page Record per spec §7.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	return &Document{Root: root}, nil
}

// Links returns every <a href> in document order, including its anchor
// text, rel tokens, and target attribute.
func (d *Document) Links() []Link {
	var links []Link
	walk(d.Root, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "a" {
			return
		}
		var l Link
		for _, attr := range n.Attr {
			switch attr.Key {
			case "href":
				l.Href = attr.Val
			case "rel":
				l.Rel = strings.Fields(attr.Val)
			case "target":
				l.Target = attr.Val
			}
		}
		if l.Href == "" {
			return
		}
		l.AnchorText = strings.TrimSpace(textContent(n))
		links = append(links, l)
	})
	return links
}

// Title returns the trimmed text content of the first <title> element.
func (d *Document) Title() string {
	n := findFirst(d.Root, "title")
	if n == nil {
		return ""
	}
	return strings.TrimSpace(textContent(n))
}

// MetaContent returns the content attribute of the first <meta> element
// whose name or property attribute equals key (case-insensitive).
func (d *Document) MetaContent(key string) string {
	var content string
	var found bool
	walk(d.Root, func(n *html.Node) {
		if found || n.Type != html.ElementNode || n.Data != "meta" {
			return
		}
		var name, prop, c string
		for _, attr := range n.Attr {
			switch strings.ToLower(attr.Key) {
			case "name":
				name = attr.Val
			case "property":
				prop = attr.Val
			case "content":
				c = attr.Val
			}
		}
		if strings.EqualFold(name, key) || strings.EqualFold(prop, key) {
			content = c
			found = true
		}
	})
	return content
}

// Attr returns the value of attribute key on the first element with tag,
// or "" if absent.
func (d *Document) Attr(tag, key string) string {
	n := findFirst(d.Root, tag)
	if n == nil {
		return ""
	}
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// Headings returns the trimmed text of every h1..h6 in document order,
// keyed by tag name.
func (d *Document) Headings() map[string][]string {
	out := map[string][]string{"h1": nil, "h2": nil, "h3": nil, "h4": nil, "h5": nil, "h6": nil}
	walk(d.Root, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		if _, ok := out[n.Data]; !ok {
			return
		}
		out[n.Data] = append(out[n.Data], strings.TrimSpace(textContent(n)))
	})
	return out
}

// Images returns every <img> element's src and alt attribute.
type Image struct {
	Src string
	Alt string
	HasAlt bool
}

func (d *Document) Images() []Image {
	var imgs []Image
	walk(d.Root, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "img" {
			return
		}
		var img Image
		hasAlt := false
		for _, attr := range n.Attr {
			switch attr.Key {
			case "src":
				img.Src = attr.Val
			case "alt":
				img.Alt = attr.Val
				hasAlt = true
			}
		}
		img.HasAlt = hasAlt
		imgs = append(imgs, img)
	})
	return imgs
}

// FindAll returns every element node with the given tag name, in document
// order.
func (d *Document) FindAll(tag string) []*html.Node {
	var out []*html.Node
	walk(d.Root, func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag {
			out = append(out, n)
		}
	})
	return out
}

// AttrOf returns the value of attribute key on node n, or "" if absent.
func AttrOf(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func findFirst(root *html.Node, tag string) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == tag {
			found = n
		}
	})
	return found
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func walk(n *html.Node, visit func(*html.Node)) {
	visit(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}
