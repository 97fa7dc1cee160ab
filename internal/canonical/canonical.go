// Package canonical normalizes URLs to a comparable form and classifies
// discovered links as internal, external, functional, or non-fetchable.
//
// The normalization rules mirror the teacher crawler's Sanitize/Key
// helpers (lowercase host, strip default port, strip fragment, resolve
// relative references against a base) extended per spec with a www.
// host-equivalence rule used only for same-host comparisons, never for the
// canonical string itself, and with `.`/`..` path segment resolution.
package canonical

import (
	"net/url"
	"path"
	"strings"
)

// twoLabelPublicSuffixes is the small allow-list spec §4.1 calls for: a
// fixed set of two-label public suffixes under which the registrable
// domain is three labels, not two.
var twoLabelPublicSuffixes = map[string]bool{
	"co.uk":  true,
	"com.au": true,
	"co.za":  true,
	"com.br": true,
	"co.jp":  true,
}

// nonFetchableExtensions maps a lowercased path extension (without the dot)
// to true when it can never be an HTML document worth fetching.
var nonFetchableExtensions = map[string]bool{
	// images
	"png": true, "jpg": true, "jpeg": true, "gif": true, "webp": true, "svg": true, "ico": true, "bmp": true, "tiff": true, "avif": true,
	// video / audio
	"mp4": true, "webm": true, "mov": true, "avi": true, "mp3": true, "wav": true, "ogg": true, "flac": true, "m4a": true,
	// office docs
	"pdf": true, "doc": true, "docx": true, "xls": true, "xlsx": true, "ppt": true, "pptx": true,
	// archives
	"zip": true, "tar": true, "gz": true, "rar": true, "7z": true,
	// fonts
	"woff": true, "woff2": true, "ttf": true, "otf": true, "eot": true,
	// static asset / data formats
	"css": true, "js": true, "json": true, "xml": true, "txt": true,
	// binaries
	"exe": true, "dmg": true, "bin": true, "apk": true, "iso": true,
}

// Canonicalize normalizes raw (possibly relative) against base and returns
// the canonical string form, or ok=false if raw cannot be parsed.
//
// canonicalize(canonicalize(s, b), b) == canonicalize(s, b): re-running the
// function on its own output is a no-op because every step below is
// idempotent on an already-normalized URL.
func Canonicalize(raw string, base *url.URL) (string, bool) {
	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	var abs *url.URL
	if base != nil {
		abs = base.ResolveReference(ref)
	} else {
		abs = ref
	}

	// Protocol-relative URLs (//host/path) inherit https unless the base
	// itself is http.
	if strings.HasPrefix(raw, "//") {
		abs.Scheme = "https"
		if base != nil && base.Scheme == "http" {
			abs.Scheme = "http"
		}
	}

	abs.Host = strings.ToLower(abs.Host)
	abs.Host = stripDefaultPort(abs.Scheme, abs.Host)
	abs.Fragment = ""
	abs.Path = resolveDotSegments(abs.Path)

	if abs.Path == "" {
		abs.Path = "/"
	} else if abs.Path != "/" && strings.HasSuffix(abs.Path, "/") {
		abs.Path = strings.TrimSuffix(abs.Path, "/")
	}

	return abs.String(), true
}

func stripDefaultPort(scheme, host string) string {
	if scheme == "http" && strings.HasSuffix(host, ":80") {
		return strings.TrimSuffix(host, ":80")
	}
	if scheme == "https" && strings.HasSuffix(host, ":443") {
		return strings.TrimSuffix(host, ":443")
	}
	return host
}

func resolveDotSegments(p string) string {
	if p == "" {
		return p
	}
	cleaned := path.Clean(p)
	if cleaned == "." {
		return "/"
	}
	// path.Clean drops a trailing slash; restore it so callers can decide
	// whether to trim it (they do, except for the root path).
	if strings.HasSuffix(p, "/") && !strings.HasSuffix(cleaned, "/") {
		cleaned += "/"
	}
	if !strings.HasPrefix(cleaned, "/") {
		cleaned = "/" + cleaned
	}
	return cleaned
}

// stripWWW removes a leading "www." label, used only for host-equivalence
// tests, never for the canonical URL string returned by Canonicalize.
func stripWWW(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

// SameHost reports whether a and b refer to the same logical host, ignoring
// a leading www. label and any port.
func SameHost(a, b string) bool {
	return hostOnly(stripWWW(a)) == hostOnly(stripWWW(b))
}

func hostOnly(host string) string {
	if i := strings.LastIndex(host, ":"); i >= 0 {
		return host[:i]
	}
	return host
}

// registrableDomain returns the registrable domain of host: the last two
// labels, or the last three when the last two match the public-suffix
// allow-list.
func registrableDomain(host string) string {
	host = hostOnly(stripWWW(host))
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return host
	}
	lastTwo := strings.Join(labels[len(labels)-2:], ".")
	if twoLabelPublicSuffixes[lastTwo] && len(labels) >= 3 {
		return strings.Join(labels[len(labels)-3:], ".")
	}
	return lastTwo
}

// Classification is the result of Classify.
type Classification int

const (
	Internal Classification = iota
	External
	Mailto
	Tel
	NonFetchable
	InvalidURL
)

func (c Classification) String() string {
	switch c {
	case Internal:
		return "internal"
	case External:
		return "external"
	case Mailto:
		return "mailto"
	case Tel:
		return "tel"
	case NonFetchable:
		return "nonfetchable"
	default:
		return "invalid"
	}
}

// Classify decides the link class of u (a raw href, possibly relative)
// relative to seedHost, the registrable-domain comparison host for the
// crawl. Scheme and file-extension checks come first, so "/style.css" is
// NonFetchable; any other relative reference (no scheme, or a path starting
// with /, #, or ?) is Internal regardless of seedHost.
func Classify(raw string, seedHost string) Classification {
	if raw == "" {
		return InvalidURL
	}

	u, err := url.Parse(raw)
	if err != nil {
		return InvalidURL
	}

	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case "mailto":
		return Mailto
	case "tel":
		return Tel
	case "javascript", "ftp", "file", "data":
		return NonFetchable
	}

	if nonFetchableByExtension(u.Path) {
		return NonFetchable
	}

	isRelative := scheme == "" && !strings.HasPrefix(raw, "//")
	if isRelative {
		return Internal
	}

	return classifyHost(u.Host, seedHost)
}

func classifyHost(host, seedHost string) Classification {
	if registrableDomain(host) == registrableDomain(seedHost) {
		return Internal
	}
	return External
}

func nonFetchableByExtension(p string) bool {
	ext := path.Ext(p)
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	return ext != "" && nonFetchableExtensions[ext]
}
