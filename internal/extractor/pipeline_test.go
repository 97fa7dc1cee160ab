package extractor

import (
	"errors"
	"strings"
	"testing"
)

func TestDefaultPipeline_Extract_Success(t *testing.T) {
	p := NewDefaultPipeline()
	body := `<html lang="en"><head>
		<title>Example</title>
		<meta name="description" content="desc">
		<meta name="viewport" content="width=device-width">
	</head><body>
		<h1>Hello</h1>
		<a href="/a">A</a>
		<a href="https://ext.test/x">X</a>
		<img src="/x.png">
	</body></html>`

	rec, links := p.Extract(strings.NewReader(body), "https://example.test/", ResponseMeta{
		Status:    200,
		Headers:   map[string]string{"Content-Type": "text/html"},
		BodySize:  int64(len(body)),
		ElapsedMs: 12,
	})

	if rec.ParseError != "" {
		t.Fatalf("unexpected parse error: %s", rec.ParseError)
	}
	if rec.SEO["title"] != "Example" {
		t.Errorf("title = %v", rec.SEO["title"])
	}
	if rec.SEO["metaDescription"] != "desc" {
		t.Errorf("metaDescription = %v", rec.SEO["metaDescription"])
	}
	if got := rec.Accessibility["imagesMissingAlt"]; got != 1 {
		t.Errorf("imagesMissingAlt = %v, want 1", got)
	}
	if got := rec.Mobile["hasViewportMeta"]; got != true {
		t.Errorf("hasViewportMeta = %v, want true", got)
	}
	if len(links) != 2 {
		t.Fatalf("got %d links, want 2", len(links))
	}
	if links[0].Href != "/a" || links[1].Href != "https://ext.test/x" {
		t.Errorf("links = %+v", links)
	}
}

func TestDefaultPipeline_Extract_ParseFailureIsMinimal(t *testing.T) {
	p := NewDefaultPipeline()
	rec, links := p.Extract(errReader{}, "https://example.test/", ResponseMeta{Status: 200})
	if rec.ParseError == "" {
		t.Fatalf("expected ParseError to be set")
	}
	if rec.SEO != nil {
		t.Errorf("expected SEO to be empty on parse failure, got %v", rec.SEO)
	}
	if links != nil {
		t.Errorf("expected no links on parse failure, got %v", links)
	}
}

func TestDefaultPipeline_Extract_OptionalBlocksOmittedWhenAbsent(t *testing.T) {
	p := NewDefaultPipeline()
	rec, _ := p.Extract(strings.NewReader(`<html><body><p>plain</p></body></html>`), "https://example.test/", ResponseMeta{Status: 200})
	if rec.Navigation != nil {
		t.Errorf("Navigation should be nil when no <nav>, got %v", rec.Navigation)
	}
	if rec.Media != nil {
		t.Errorf("Media should be nil when no media elements, got %v", rec.Media)
	}
	if rec.Ecommerce != nil {
		t.Errorf("Ecommerce should be nil when no JSON-LD, got %v", rec.Ecommerce)
	}
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) {
	return 0, errUnreadable
}

var errUnreadable = errors.New("unreadable")
