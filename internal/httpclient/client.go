// Package httpclient is the crawl engine's HTTP fetcher: a timeout-bounded,
// rate-limited, body-size-capped GET with redirect following and response
// metadata capture.
//
// Adapted from the teacher crawler's internal/platform/httpclient: the
// shape (Config, New, Fetch(ctx, url)) is unchanged, but the hand-rolled
// time.Tick rate limiter is replaced with golang.org/x/time/rate's token
// bucket, and Fetch now returns headers and elapsed time alongside the
// body, because the crawl engine's Page Record needs both.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 10 * time.Second
	// DefaultMaxBodySize is the default maximum response body size (2MB).
	DefaultMaxBodySize = 2 * 1024 * 1024
	// DefaultUserAgent is the default User-Agent header.
	DefaultUserAgent = "SiteAuditBot/1.0"
)

// FetchResult is what Fetch and Head return; for a non-2xx status it is
// returned together with an *HTTPError.
type FetchResult struct {
	Body        []byte
	FinalURL    string
	ContentType string
	StatusCode  int
	Headers     map[string]string
	ElapsedMs   int64
	// RedirectChain lists, in order, each redirect target that was followed
	// (the requested URL is not included; the last entry is FinalURL).
	// Populated only by Head, for the external-link prober.
	RedirectChain []string
	// RedirectLoop is true when the chain above revisited a URL it had
	// already followed.
	RedirectLoop bool
}

// HTTPError records a non-2xx response for an internal URL (spec §7:
// HTTPError — recorded, never fatal).
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.StatusCode, e.URL)
}

// Category buckets the status code into the "kind" label the crawl engine
// uses for its failed-page metric.
func (e *HTTPError) Category() string {
	switch {
	case e.StatusCode >= 500:
		return "server error"
	case e.StatusCode >= 400:
		return "client error"
	case e.StatusCode >= 300:
		return "redirect"
	default:
		return "unexpected status"
	}
}

// Client is an HTTP client with timeout, rate limiting, and body-size
// limits. Safe for concurrent use by multiple goroutines.
type Client struct {
	httpClient  *http.Client
	userAgent   string
	maxBodySize int64
	limiter     *rate.Limiter
}

// Config contains configuration options for the HTTP client.
type Config struct {
	// Timeout is the total request timeout (default: 10s).
	Timeout time.Duration
	// UserAgent is the User-Agent header to send (default: SiteAuditBot/1.0).
	UserAgent string
	// MaxBodySize is the maximum response body size in bytes (default: 2MB).
	MaxBodySize int64
	// RateLimit is the minimum duration between requests (0 = no limit).
	RateLimit time.Duration
}

// New creates a new HTTP client with the given configuration.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		userAgent:   cfg.UserAgent,
		maxBodySize: cfg.MaxBodySize,
	}

	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Every(cfg.RateLimit), 1)
	}

	return c
}

// Fetch retrieves the content from the given URL. Applies rate limiting,
// sets User-Agent, and enforces body size limits. Respects context
// cancellation and deadlines.
func (c *Client) Fetch(ctx context.Context, url string) (*FetchResult, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	elapsed := time.Since(start).Milliseconds()

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	limitedReader := io.LimitReader(resp.Body, c.maxBodySize)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	result := &FetchResult{
		Body:        body,
		FinalURL:    resp.Request.URL.String(),
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
		Headers:     headers,
		ElapsedMs:   elapsed,
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Body is still returned: a non-2xx error page can carry real HTML
		// worth parsing (spec: "still parse body if content was returned and
		// it looks like HTML").
		return result, &HTTPError{StatusCode: resp.StatusCode, URL: url}
	}

	return result, nil
}

// Head issues a HEAD request and falls back to a ranged GET when the
// server rejects HEAD (some origins do); used only by the optional
// external-link prober, never by the main crawl path.
func (c *Client) Head(ctx context.Context, url string) (*FetchResult, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	start := time.Now()

	var chain []string
	var loop bool
	probeClient := &http.Client{
		Timeout: c.httpClient.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			for _, prior := range via {
				if prior.URL.String() == req.URL.String() {
					loop = true
					return http.ErrUseLastResponse
				}
			}
			chain = append(chain, req.URL.String())
			if len(via) >= 10 {
				return fmt.Errorf("stopped after 10 redirects")
			}
			return nil
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := probeClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	elapsed := time.Since(start).Milliseconds()
	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	result := &FetchResult{
		FinalURL:      resp.Request.URL.String(),
		ContentType:   resp.Header.Get("Content-Type"),
		StatusCode:    resp.StatusCode,
		Headers:       headers,
		ElapsedMs:     elapsed,
		RedirectChain: chain,
		RedirectLoop:  loop,
	}

	if resp.StatusCode == http.StatusMethodNotAllowed {
		return c.rangedGET(ctx, url, start)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return result, &HTTPError{StatusCode: resp.StatusCode, URL: url}
	}
	return result, nil
}

func (c *Client) rangedGET(ctx context.Context, url string, start time.Time) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Range", "bytes=0-0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	elapsed := time.Since(start).Milliseconds()
	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	result := &FetchResult{
		FinalURL:    resp.Request.URL.String(),
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
		Headers:     headers,
		ElapsedMs:   elapsed,
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return result, &HTTPError{StatusCode: resp.StatusCode, URL: url}
	}
	return result, nil
}
