// Package extractor implements the feature-extraction contract the crawl
// engine depends on (spec §4.5). A Pipeline turns a parsed document plus
// response metadata into one model.PageRecord and a list of raw links for
// the engine to canonicalize and classify; it must be side-effect-free and
// safe to run concurrently with itself on distinct documents.
//
// DefaultPipeline's feature depth is deliberately modest — the contents of
// individual extractors beyond this interface are explicitly out of scope
// (spec §1 non-goals). The seven core sub-records (SEO through Mobile) are
// always populated; Navigation, Media, and Ecommerce only when the page has
// the matching elements; Enhanced is never set.
package extractor

import (
	"io"
	"strconv"
	"strings"

	"github.com/cametumbling/siteaudit/internal/canonical"
	"github.com/cametumbling/siteaudit/internal/htmlparser"
	"github.com/cametumbling/siteaudit/internal/model"
)

// ResponseMeta is the response-side input to a Pipeline, mirroring spec
// §4.5's {status, headers, bodySize, elapsedMs}.
type ResponseMeta struct {
	Status     int
	Headers    map[string]string
	BodySize   int64
	ElapsedMs  int64
}

// RawLink is the link shape a Pipeline hands back to the engine, matching
// spec §4.5's {href, anchorText, rel[], target}.
type RawLink struct {
	Href       string
	AnchorText string
	Rel        []string
	Target     string
}

// Pipeline is the extractor contract the crawl engine depends on.
type Pipeline interface {
	// Extract parses body as HTML and produces a Page Record plus the raw
	// links found in it. url is the canonical URL the body was fetched
	// from. A parse failure is not returned as an error: per spec §7 it
	// yields a minimal Page Record carrying ParseError instead, so the
	// engine never has to special-case it.
	Extract(body io.Reader, url string, meta ResponseMeta) (*model.PageRecord, []RawLink)
}

// DefaultPipeline is the Pipeline implementation wired into the crawl
// engine by default.
type DefaultPipeline struct{}

// NewDefaultPipeline returns a ready-to-use DefaultPipeline. It holds no
// state, so a single instance may be shared across workers.
func NewDefaultPipeline() *DefaultPipeline {
	return &DefaultPipeline{}
}

func (p *DefaultPipeline) Extract(body io.Reader, url string, meta ResponseMeta) (*model.PageRecord, []RawLink) {
	rec := &model.PageRecord{
		URL:          url,
		Status:       meta.Status,
		ResponseMs:   meta.ElapsedMs,
		PayloadBytes: meta.BodySize,
		Headers:      meta.Headers,
	}

	doc, err := htmlparser.Parse(body)
	if err != nil {
		rec.ParseError = err.Error()
		return rec, nil
	}

	links := doc.Links()
	rawLinks := make([]RawLink, 0, len(links))
	for _, l := range links {
		rawLinks = append(rawLinks, RawLink{Href: l.Href, AnchorText: l.AnchorText, Rel: l.Rel, Target: l.Target})
	}

	rec.SEO = extractSEO(doc)
	rec.Content = extractContent(doc)
	rec.Links = extractLinkSummary(links)
	rec.Technical = extractTechnical(doc, meta)
	rec.Security = extractSecurity(doc, url)
	rec.Accessibility = extractAccessibility(doc)
	rec.Mobile = extractMobile(doc)

	if nav := extractNavigation(doc); nav != nil {
		rec.Navigation = nav
	}
	if media := extractMedia(doc); media != nil {
		rec.Media = media
	}
	if ecom := extractEcommerce(doc); ecom != nil {
		rec.Ecommerce = ecom
	}

	return rec, rawLinks
}

func extractSEO(doc *htmlparser.Document) model.RawExtractorOutput {
	h := doc.Headings()
	canonicalHref := ""
	for _, n := range doc.FindAll("link") {
		if strings.EqualFold(htmlparser.AttrOf(n, "rel"), "canonical") {
			canonicalHref = htmlparser.AttrOf(n, "href")
			break
		}
	}
	return model.RawExtractorOutput{
		"title":           doc.Title(),
		"metaDescription": doc.MetaContent("description"),
		"metaRobots":      doc.MetaContent("robots"),
		"canonical":       canonicalHref,
		"h1Count":         len(h["h1"]),
		"h1":              h["h1"],
	}
}

func extractContent(doc *htmlparser.Document) model.RawExtractorOutput {
	h := doc.Headings()
	outline := make([]map[string]string, 0)
	for _, tag := range []string{"h1", "h2", "h3", "h4", "h5", "h6"} {
		for _, text := range h[tag] {
			outline = append(outline, map[string]string{"level": tag, "text": text})
		}
	}
	return model.RawExtractorOutput{
		"lang":    doc.Attr("html", "lang"),
		"outline": outline,
	}
}

// extractLinkSummary counts the page's links and, separately, how many of
// them are non-fetchable (scheme-based or by file extension — javascript:,
// images, archives, and the like; mailto: and tel: links are functional and
// not counted here). Non-fetchable links never
// become keys in the crawl-wide stats aggregate (spec §8's invariant that
// every stats key classifies as internal), so this page-local count is
// where that fact is recorded instead.
func extractLinkSummary(links []htmlparser.Link) model.RawExtractorOutput {
	var nonFetchable int
	for _, l := range links {
		if canonical.Classify(l.Href, "") == canonical.NonFetchable {
			nonFetchable++
		}
	}
	return model.RawExtractorOutput{
		"count":        len(links),
		"nonFetchable": nonFetchable,
	}
}

func extractTechnical(doc *htmlparser.Document, meta ResponseMeta) model.RawExtractorOutput {
	charset := ""
	for _, n := range doc.FindAll("meta") {
		if c := htmlparser.AttrOf(n, "charset"); c != "" {
			charset = c
			break
		}
	}
	return model.RawExtractorOutput{
		"charset":     charset,
		"viewport":    doc.MetaContent("viewport"),
		"contentType": headerValue(meta.Headers, "content-type"),
		"server":      headerValue(meta.Headers, "server"),
	}
}

func extractSecurity(doc *htmlparser.Document, pageURL string) model.RawExtractorOutput {
	isHTTPS := strings.HasPrefix(pageURL, "https://")
	var mixedContent []string
	if isHTTPS {
		for _, l := range doc.Links() {
			if strings.HasPrefix(l.Href, "http://") {
				mixedContent = append(mixedContent, l.Href)
			}
		}
	}
	var externalScripts []string
	for _, n := range doc.FindAll("script") {
		src := htmlparser.AttrOf(n, "src")
		if src != "" && (strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")) {
			externalScripts = append(externalScripts, src)
		}
	}
	return model.RawExtractorOutput{
		"https":           isHTTPS,
		"mixedContent":    mixedContent,
		"externalScripts": externalScripts,
	}
}

func extractAccessibility(doc *htmlparser.Document) model.RawExtractorOutput {
	imgs := doc.Images()
	missingAlt := 0
	for _, img := range imgs {
		if !img.HasAlt {
			missingAlt++
		}
	}
	inputsMissingLabel := 0
	for _, n := range doc.FindAll("input") {
		if htmlparser.AttrOf(n, "aria-label") == "" && htmlparser.AttrOf(n, "id") == "" {
			inputsMissingLabel++
		}
	}
	return model.RawExtractorOutput{
		"imagesMissingAlt":    missingAlt,
		"imageCount":          len(imgs),
		"inputsMissingLabel":  inputsMissingLabel,
	}
}

func extractMobile(doc *htmlparser.Document) model.RawExtractorOutput {
	hasViewport := doc.MetaContent("viewport") != ""
	hasTouchIcon := false
	for _, n := range doc.FindAll("link") {
		rel := htmlparser.AttrOf(n, "rel")
		if strings.Contains(strings.ToLower(rel), "apple-touch-icon") {
			hasTouchIcon = true
			break
		}
	}
	return model.RawExtractorOutput{
		"hasViewportMeta": hasViewport,
		"hasTouchIcon":    hasTouchIcon,
	}
}

// extractNavigation returns a raw navigation block when the page has a
// <nav> element, or nil otherwise (spec §3: optional blocks are opaque and
// omitted when absent).
func extractNavigation(doc *htmlparser.Document) model.RawExtractorOutput {
	navs := doc.FindAll("nav")
	if len(navs) == 0 {
		return nil
	}
	return model.RawExtractorOutput{"navCount": len(navs)}
}

// extractMedia returns a raw media block when the page has a <picture> or
// <video> element, or nil otherwise.
func extractMedia(doc *htmlparser.Document) model.RawExtractorOutput {
	pictures := doc.FindAll("picture")
	videos := doc.FindAll("video")
	if len(pictures) == 0 && len(videos) == 0 {
		return nil
	}
	return model.RawExtractorOutput{
		"pictureCount": len(pictures),
		"videoCount":   len(videos),
	}
}

// extractEcommerce looks for schema.org Product JSON-LD blocks and returns
// a summary when found, or nil otherwise.
func extractEcommerce(doc *htmlparser.Document) model.RawExtractorOutput {
	scripts := doc.FindAll("script")
	found := false
	for _, n := range scripts {
		if htmlparser.AttrOf(n, "type") == "application/ld+json" {
			found = true
			break
		}
	}
	if !found {
		return nil
	}
	return model.RawExtractorOutput{"hasProductSchema": true}
}

func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// ParseContentLength turns a Content-Length header into an int64, returning
// 0 when the header is absent or not a number.
func ParseContentLength(headers map[string]string) int64 {
	v := headerValue(headers, "content-length")
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
