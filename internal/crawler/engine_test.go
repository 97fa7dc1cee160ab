package crawler

import (
	"context"
	"testing"
	"time"

	"github.com/cametumbling/siteaudit/internal/extractor"
	"github.com/cametumbling/siteaudit/internal/httpclient"
	"github.com/cametumbling/siteaudit/internal/model"
	"github.com/cametumbling/siteaudit/internal/pagedata"
)

// fakePage is one canned response in a fakeFetcher's site map.
type fakePage struct {
	status int
	body   string
}

// fakeFetcher serves a fixed map of URL -> response, mimicking the
// teacher's test doubles for its Fetcher interface.
type fakeFetcher struct {
	pages map[string]fakePage
}

func (f *fakeFetcher) Fetch(ctx context.Context, u string) (*httpclient.FetchResult, error) {
	page, ok := f.pages[u]
	if !ok {
		return nil, &httpclient.HTTPError{StatusCode: 404, URL: u}
	}
	res := &httpclient.FetchResult{
		Body:       []byte(page.body),
		FinalURL:   u,
		StatusCode: page.status,
		Headers:    map[string]string{},
	}
	if page.status < 200 || page.status >= 300 {
		return res, &httpclient.HTTPError{StatusCode: page.status, URL: u}
	}
	return res, nil
}

func newTestEngine(t *testing.T, fetcher Fetcher, seed string) (*Engine, *model.CrawlState) {
	t.Helper()
	store, err := pagedata.New(t.TempDir())
	if err != nil {
		t.Fatalf("pagedata.New() error = %v", err)
	}
	state := model.NewCrawlState()
	state.Queue[seed] = true

	e, err := New(Options{
		SeedURL:          seed,
		Workers:          2,
		MaxInternalLinks: Unbounded,
		Fetcher:          fetcher,
		Pipeline:         extractor.NewDefaultPipeline(),
		PageStore:        store,
	}, state)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e, state
}

func TestEngine_Run_Drained(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]fakePage{
		"https://example.test/": {status: 200, body: `<html><body>
			<a href="/a">A</a>
			<a href="https://ext.test/x">X</a>
			<a href="mailto:u@example.test">m</a>
		</body></html>`},
		"https://example.test/a": {status: 200, body: `<html>ok</html>`},
	}}

	e, _ := newTestEngine(t, fetcher, "https://example.test/")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reason, err := e.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if reason != Drained {
		t.Fatalf("Run() reason = %v, want Drained", reason)
	}

	state := e.State()
	if !state.Visited["https://example.test/"] || !state.Visited["https://example.test/a"] {
		t.Errorf("Visited = %v, want seed and /a", state.Visited)
	}
	if len(state.Queue) != 0 {
		t.Errorf("Queue should be drained, got %v", state.Queue)
	}
	if stats, ok := state.Stats["https://example.test/a"]; !ok || stats.Count != 1 {
		t.Errorf("Stats[/a] = %+v, want count 1", stats)
	}
	link, ok := state.ExternalLinks["https://ext.test/x"]
	if !ok {
		t.Fatalf("ExternalLinks missing https://ext.test/x")
	}
	if !link.Sources["https://example.test/"] {
		t.Errorf("ExternalLinks[ext.test/x].Sources = %v, want seed present", link.Sources)
	}
	sink, ok := state.MailtoLinks["mailto:u@example.test"]
	if !ok || !sink.Sources["https://example.test/"] {
		t.Errorf("MailtoLinks missing expected source")
	}
	if len(state.BadRequests) != 0 {
		t.Errorf("BadRequests = %v, want empty", state.BadRequests)
	}
}

func TestEngine_Run_SeedErrorRecordsBadRequest(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]fakePage{
		"https://example.test/": {status: 500, body: ""},
	}}

	e, _ := newTestEngine(t, fetcher, "https://example.test/")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reason, err := e.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if reason != Drained {
		t.Fatalf("Run() reason = %v, want Drained", reason)
	}

	state := e.State()
	if !state.Visited["https://example.test/"] {
		t.Errorf("seed should be visited even on error")
	}
	bad, ok := state.BadRequests["https://example.test/"]
	if !ok {
		t.Fatalf("BadRequests missing seed entry")
	}
	if bad.Status != 500 {
		t.Errorf("BadRequests[seed].Status = %v, want 500", bad.Status)
	}
	if len(state.Queue) != 0 {
		t.Errorf("Queue should be drained, got %v", state.Queue)
	}
}

func TestEngine_Run_ExtractsLinksFromHTMLErrorPage(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]fakePage{
		"https://example.test/": {status: 200, body: `<a href="/missing">missing</a>`},
		"https://example.test/missing": {
			status: 404,
			body:   `<html><body>not found, try <a href="/recovered">here</a></body></html>`,
		},
		"https://example.test/recovered": {status: 200, body: `<html>ok</html>`},
	}}

	e, _ := newTestEngine(t, fetcher, "https://example.test/")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reason, err := e.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if reason != Drained {
		t.Fatalf("Run() reason = %v, want Drained", reason)
	}

	state := e.State()
	if _, ok := state.BadRequests["https://example.test/missing"]; !ok {
		t.Errorf("BadRequests missing the 404 page")
	}
	if !state.Visited["https://example.test/recovered"] {
		t.Errorf("link found on the 404 page's body should still have been queued and visited, got visited=%v", state.Visited)
	}
}

func TestEngine_Run_RespectsMaxInternalLinks(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]fakePage{
		"https://example.test/":  {status: 200, body: `<a href="/a">a</a><a href="/b">b</a><a href="/c">c</a>`},
		"https://example.test/a": {status: 200, body: `<html>a</html>`},
		"https://example.test/b": {status: 200, body: `<html>b</html>`},
		"https://example.test/c": {status: 200, body: `<html>c</html>`},
	}}

	store, err := pagedata.New(t.TempDir())
	if err != nil {
		t.Fatalf("pagedata.New() error = %v", err)
	}
	state := model.NewCrawlState()
	state.Queue["https://example.test/"] = true

	e, err := New(Options{
		SeedURL:          "https://example.test/",
		Workers:          1,
		MaxInternalLinks: 2,
		Fetcher:          fetcher,
		Pipeline:         extractor.NewDefaultPipeline(),
		PageStore:        store,
	}, state)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reason, err := e.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if reason != BudgetReached {
		t.Fatalf("Run() reason = %v, want BudgetReached", reason)
	}
	if len(e.State().Visited) > 2 {
		t.Errorf("Visited = %v, want at most 2 entries", e.State().Visited)
	}
}

func TestEngine_Run_ZeroBudgetDisablesFetchingEntirely(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]fakePage{
		"https://example.test/": {status: 200, body: `<a href="/a">a</a>`},
	}}
	store, err := pagedata.New(t.TempDir())
	if err != nil {
		t.Fatalf("pagedata.New() error = %v", err)
	}
	state := model.NewCrawlState()
	state.Queue["https://example.test/"] = true

	e, err := New(Options{
		SeedURL:          "https://example.test/",
		MaxInternalLinks: 0,
		Fetcher:          fetcher,
		Pipeline:         extractor.NewDefaultPipeline(),
		PageStore:        store,
	}, state)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	reason, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if reason != BudgetReached {
		t.Fatalf("Run() reason = %v, want BudgetReached", reason)
	}
	if !e.State().Visited["https://example.test/"] {
		t.Errorf("seed should be recorded as visited even with a zero budget")
	}
	if len(e.State().Stats) != 0 {
		t.Errorf("Stats should be empty, nothing was ever fetched")
	}
}

func TestEngine_Run_CancelledContextStopsCleanly(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]fakePage{
		"https://example.test/": {status: 200, body: `<a href="/a">a</a>`},
	}}
	e, _ := newTestEngine(t, fetcher, "https://example.test/")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reason, err := e.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if reason != Cancelled && reason != Drained {
		t.Fatalf("Run() reason = %v, want Cancelled or Drained", reason)
	}
}
