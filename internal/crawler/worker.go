package crawler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/cametumbling/siteaudit/internal/httpclient"
)

// bytesReader adapts a fetched body to the io.Reader the extractor pipeline
// expects.
func bytesReader(body []byte) io.Reader {
	return bytes.NewReader(body)
}

// asHTTPError reports whether err is (or wraps) an *httpclient.HTTPError.
func asHTTPError(err error) (*httpclient.HTTPError, bool) {
	var httpErr *httpclient.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}

// isTimeout reports whether err represents a request timeout or context
// deadline, the other symbolic status spec §3 calls out (StatusTimeout).
func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// classifyFetchError builds the fetchOutcome for a failed fetch. A non-2xx
// response still carries a partial FetchResult (final URL, status, headers,
// and body) from httpclient, which the engine uses to record the bad
// request; the caller attaches record/rawLinks on top when that body is
// worth extracting.
func classifyFetchError(u string, err error, res *httpclient.FetchResult) fetchOutcome {
	finalURL := u
	if res != nil && res.FinalURL != "" {
		finalURL = res.FinalURL
	}
	return fetchOutcome{url: u, finalURL: finalURL, err: err}
}

// looksLikeHTML reports whether a Content-Type value indicates an HTML
// document, treating an absent/empty header as HTML too (many error pages
// omit it). Grounded on the teacher crawler's isHTMLContentType.
func looksLikeHTML(contentType string) bool {
	t, _, _ := strings.Cut(contentType, ";")
	return contentType == "" || t == "text/html"
}
