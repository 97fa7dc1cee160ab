package htmlparser

import (
	"strings"
	"testing"
)

func TestParse_Links(t *testing.T) {
	htmlDoc := `<html><body>
		<a href="/a">A</a>
		<a href="https://ext.test/x" rel="nofollow" target="_blank">X</a>
		<a href="mailto:u@example.test">m</a>
	</body></html>`

	doc, err := Parse(strings.NewReader(htmlDoc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	links := doc.Links()
	if len(links) != 3 {
		t.Fatalf("got %d links, want 3", len(links))
	}
	if links[0].Href != "/a" || links[0].AnchorText != "A" {
		t.Errorf("links[0] = %+v", links[0])
	}
	if links[1].Href != "https://ext.test/x" || links[1].Target != "_blank" || len(links[1].Rel) != 1 || links[1].Rel[0] != "nofollow" {
		t.Errorf("links[1] = %+v", links[1])
	}
}

func TestParse_LinksSkipsMissingHref(t *testing.T) {
	doc, err := Parse(strings.NewReader(`<a name="x">no href</a>`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if links := doc.Links(); len(links) != 0 {
		t.Errorf("got %d links, want 0", len(links))
	}
}

func TestDocument_Title(t *testing.T) {
	doc, err := Parse(strings.NewReader(`<html><head><title>  Hello World  </title></head></html>`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := doc.Title(); got != "Hello World" {
		t.Errorf("Title() = %q, want %q", got, "Hello World")
	}
}

func TestDocument_MetaContent(t *testing.T) {
	doc, err := Parse(strings.NewReader(`<html><head>
		<meta name="description" content="a page about things">
		<meta property="og:title" content="OG Title">
	</head></html>`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := doc.MetaContent("description"); got != "a page about things" {
		t.Errorf("MetaContent(description) = %q", got)
	}
	if got := doc.MetaContent("og:title"); got != "OG Title" {
		t.Errorf("MetaContent(og:title) = %q", got)
	}
	if got := doc.MetaContent("missing"); got != "" {
		t.Errorf("MetaContent(missing) = %q, want empty", got)
	}
}

func TestDocument_Headings(t *testing.T) {
	doc, err := Parse(strings.NewReader(`<html><body><h1>Main</h1><h2>Sub1</h2><h2>Sub2</h2></body></html>`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	headings := doc.Headings()
	if len(headings["h1"]) != 1 || headings["h1"][0] != "Main" {
		t.Errorf("h1 = %v", headings["h1"])
	}
	if len(headings["h2"]) != 2 {
		t.Errorf("h2 = %v", headings["h2"])
	}
}

func TestDocument_Images(t *testing.T) {
	doc, err := Parse(strings.NewReader(`<html><body><img src="/a.png" alt="a"><img src="/b.png"></body></html>`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	imgs := doc.Images()
	if len(imgs) != 2 {
		t.Fatalf("got %d images, want 2", len(imgs))
	}
	if !imgs[0].HasAlt || imgs[0].Alt != "a" {
		t.Errorf("imgs[0] = %+v", imgs[0])
	}
	if imgs[1].HasAlt {
		t.Errorf("imgs[1] should have no alt: %+v", imgs[1])
	}
}
