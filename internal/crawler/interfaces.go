package crawler

import (
	"context"

	"github.com/cametumbling/siteaudit/internal/extractor"
	"github.com/cametumbling/siteaudit/internal/httpclient"
	"github.com/cametumbling/siteaudit/internal/model"
)

// Fetcher is the interface for fetching HTTP content. Abstracted from
// internal/httpclient.Client so the engine can be driven by a mock in
// tests, the same way the teacher crawler abstracts its Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*httpclient.FetchResult, error)
}

// Prober is the interface the optional external-link prober uses to check
// an external URL's liveness without downloading its body.
type Prober interface {
	Head(ctx context.Context, url string) (*httpclient.FetchResult, error)
}

// Pipeline is the extractor contract the engine depends on (spec §4.5).
type Pipeline = extractor.Pipeline

// workItem is a single URL claimed for fetching by a worker.
type workItem struct {
	url string
}

// fetchOutcome is what a worker sends back for a single workItem. Workers
// send exactly one fetchOutcome per workItem, even on error, mirroring the
// teacher crawler's "exactly one Result per WorkItem" contract.
type fetchOutcome struct {
	url      string
	finalURL string
	record   *model.PageRecord
	rawLinks []extractor.RawLink
	err      error
}

// probeOutcome is what a prober worker sends back for a single external
// URL.
type probeOutcome struct {
	url           string
	status        any
	headers       map[string]string
	redirectChain []string
	redirectLoop  bool
	err           error
}
