// Package crawler implements the Crawl Engine (spec §4.4): a bounded
// worker pool that fetches, extracts, classifies, and persists one domain's
// worth of pages, checkpointing its state as it goes.
//
// The control-flow shape is the teacher crawler's Coordinator: a buffered
// work channel feeding a fixed worker pool, an unbuffered results channel
// feeding a single state-owning goroutine, a WaitGroup counting in-flight
// work, and a closer goroutine that closes the work channel once the
// WaitGroup drains. The teacher dispatched newly-discovered links straight
// onto the work channel with no queue in between; this engine inserts an
// explicit, checkpointable Queue stage, because spec §6 requires the
// pending backlog to survive a crash and be resumable, something the
// teacher never needed to persist.
package crawler

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cametumbling/siteaudit/internal/canonical"
	"github.com/cametumbling/siteaudit/internal/extractor"
	"github.com/cametumbling/siteaudit/internal/metrics"
	"github.com/cametumbling/siteaudit/internal/model"
	"github.com/cametumbling/siteaudit/internal/pagedata"
	"github.com/cametumbling/siteaudit/internal/statestore"
)

// Unbounded is the Options.MaxInternalLinks value meaning "no cap". New
// applies no default to that field, so its zero value (0) disables fetching.
const Unbounded = -1

// TerminationReason explains why Run returned.
type TerminationReason int

const (
	// Drained means the queue emptied naturally: every reachable internal
	// URL has been visited.
	Drained TerminationReason = iota
	// BudgetReached means Options.MaxInternalLinks was hit.
	BudgetReached
	// Cancelled means ctx was cancelled or timed out before the crawl
	// finished.
	Cancelled
)

func (r TerminationReason) String() string {
	switch r {
	case Drained:
		return "drained"
	case BudgetReached:
		return "budget_reached"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Options configures an Engine.
type Options struct {
	// SeedURL is the audit's starting point; its registrable domain is the
	// crawl's scope boundary.
	SeedURL string

	// Workers is the size of the main fetch worker pool (default 8).
	Workers int
	// MaxInternalLinks caps how many internal URLs the engine will ever
	// visit in one run. crawler.Unbounded (-1) means no cap; New does not
	// substitute it for 0, and 0 disables fetching entirely — the seed is recorded in Visited as
	// attempted but never fetched — and any positive N caps the run at N
	// visited URLs.
	MaxInternalLinks int
	// CheckpointEvery triggers a state-store Save after this many pages are
	// processed (0 means the default, 25); a negative value disables periodic
	// checkpointing (Run still checkpoints once at the end).
	CheckpointEvery int

	// ProbeExternalLinks turns on the optional external-link prober pool
	// (spec §3 NEW, Open Question 2).
	ProbeExternalLinks bool
	// ProbeWorkers sizes the prober pool (default 2).
	ProbeWorkers int

	Fetcher  Fetcher
	Prober   Prober
	Pipeline Pipeline

	PageStore *pagedata.Store
	StatePath string

	Logger  *zap.Logger
	Metrics *metrics.Collector
}

// Engine drives one audit's crawl to completion. It is the sole owner of
// its CrawlState for the duration of Run; no other goroutine may touch the
// state concurrently with a running Engine.
type Engine struct {
	opts     Options
	seedHost string
	logger   *zap.Logger
	metrics  *metrics.Collector

	state *model.CrawlState

	mu sync.Mutex // guards state during Run

	workCh    chan workItem
	resultsCh chan fetchOutcome
	wg        sync.WaitGroup

	probeCh       chan string
	probeResultCh chan probeOutcome

	wake chan struct{}

	processed int
}

// New constructs an Engine. state is the CrawlState to resume (pass
// model.NewCrawlState() for a fresh audit, with SeedURL already placed in
// its Queue by the caller — typically cmd/siteaudit's runAudit).
func New(opts Options, state *model.CrawlState) (*Engine, error) {
	seed, err := url.Parse(opts.SeedURL)
	if err != nil {
		return nil, fmt.Errorf("parsing seed url: %w", err)
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.CheckpointEvery == 0 {
		opts.CheckpointEvery = 25
	}
	if opts.ProbeWorkers <= 0 {
		opts.ProbeWorkers = 2
	}
	if opts.Pipeline == nil {
		opts.Pipeline = extractor.NewDefaultPipeline()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNop()
	}
	if opts.ProbeExternalLinks && opts.Prober == nil {
		opts.ProbeExternalLinks = false
	}

	return &Engine{
		opts:     opts,
		seedHost: seed.Host,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		state:    state,
		wake:     make(chan struct{}, 1),
	}, nil
}

// State returns the engine's current CrawlState. Only safe to call after
// Run has returned.
func (e *Engine) State() *model.CrawlState {
	return e.state
}

// Run drives the crawl to completion, returning why it stopped. It blocks
// until the queue drains, the budget is reached, or ctx is cancelled.
func (e *Engine) Run(ctx context.Context) (TerminationReason, error) {
	// maxInternalLinks == 0 disables fetching entirely: the seed is marked
	// visited as attempted but no worker ever fetches anything (spec §8
	// boundary behavior). No goroutines are worth starting for this case.
	if e.opts.MaxInternalLinks == 0 {
		e.mu.Lock()
		for u := range e.state.Queue {
			e.state.Visited[u] = true
		}
		e.state.Queue = make(map[string]bool)
		e.mu.Unlock()
		if err := e.checkpoint(); err != nil {
			e.logger.Warn("final checkpoint failed", zap.Error(err))
		}
		return BudgetReached, nil
	}

	// runCtx is cancelled the moment collectResults decides to stop, for any
	// reason (drained, budget reached, or the caller's ctx itself being
	// cancelled), so the dispatcher, workers, and prober pool all wind down
	// the same way regardless of which stop condition fired.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.workCh = make(chan workItem, e.opts.Workers*100)
	e.resultsCh = make(chan fetchOutcome)

	if e.opts.ProbeExternalLinks {
		e.probeCh = make(chan string, e.opts.ProbeWorkers*50)
		e.probeResultCh = make(chan probeOutcome)
	}

	// Seed the WaitGroup for whatever is already sitting in Queue (the
	// initial seed URL, or a resumed backlog) before any goroutine starts,
	// mirroring the teacher's wg.Add(1) for the seed URL before launching
	// workers.
	e.mu.Lock()
	seedCount := len(e.state.Queue)
	e.mu.Unlock()
	e.wg.Add(seedCount)

	var workerWG sync.WaitGroup
	for i := 0; i < e.opts.Workers; i++ {
		workerWG.Add(1)
		go func() {
			defer workerWG.Done()
			e.runWorker(runCtx)
		}()
	}
	go func() {
		workerWG.Wait()
		close(e.resultsCh)
	}()

	if e.opts.ProbeExternalLinks {
		var probeWorkerWG sync.WaitGroup
		for i := 0; i < e.opts.ProbeWorkers; i++ {
			probeWorkerWG.Add(1)
			go func() {
				defer probeWorkerWG.Done()
				e.runProber(runCtx)
			}()
		}
		go func() {
			probeWorkerWG.Wait()
			close(e.probeResultCh)
		}()
	}

	closed := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(closed)
	}()

	dispatcherDone := make(chan struct{})
	go e.runDispatcher(runCtx, closed, dispatcherDone)

	reason := e.collectResults(runCtx, closed)
	cancel()

	<-dispatcherDone
	close(e.workCh)
	workerWG.Wait()
	// resultsCh is closed by the goroutine above once workers exit; drain
	// any stragglers sent between our collectResults exit and the close so
	// the channel doesn't leak a blocked sender.
	for range e.resultsCh {
	}

	if e.probeCh != nil {
		close(e.probeCh)
		for range e.probeResultCh {
		}
	}

	if err := e.checkpoint(); err != nil {
		e.logger.Warn("final checkpoint failed", zap.Error(err))
	}

	return reason, nil
}

// runDispatcher is the sole goroutine that pops items off Queue and claims
// them (moves them to Visited) before handing them to a worker. Claiming
// and dispatching are done together so two workers can never claim the same
// URL, matching spec §5's "visited the moment claimed" invariant.
func (e *Engine) runDispatcher(ctx context.Context, allDone <-chan struct{}, dispatcherDone chan<- struct{}) {
	defer close(dispatcherDone)
	for {
		e.mu.Lock()
		var next string
		for k := range e.state.Queue {
			next = k
			break
		}
		if next != "" {
			delete(e.state.Queue, next)
			e.state.Visited[next] = true
		}
		e.mu.Unlock()

		if next != "" {
			select {
			case e.workCh <- workItem{url: next}:
			case <-ctx.Done():
				e.wg.Done()
				return
			}
			continue
		}

		select {
		case <-e.wake:
			continue
		case <-allDone:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) signalDispatcher() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// runWorker fetches and extracts a single URL per workItem received, and
// sends exactly one fetchOutcome, recovering from a panic so one bad page
// can never take down the pool (mirrors the teacher worker's recover()).
func (e *Engine) runWorker(ctx context.Context) {
	for item := range e.workCh {
		e.metrics.WorkersBusy.Inc()
		outcome := e.fetchAndExtract(ctx, item.url)
		e.metrics.WorkersBusy.Dec()
		select {
		case e.resultsCh <- outcome:
		case <-ctx.Done():
			// collectResults has already stopped reading; account for this
			// item's wg.Add from handleRawLink/the seed so the "all work
			// drained" waiter still completes.
			e.wg.Done()
			return
		}
	}
}

func (e *Engine) fetchAndExtract(ctx context.Context, u string) fetchOutcome {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("worker panic recovered", zap.String("url", u), zap.Any("panic", r))
		}
	}()

	res, err := e.opts.Fetcher.Fetch(ctx, u)
	if err != nil {
		outcome := classifyFetchError(u, err, res)
		if res != nil && len(res.Body) > 0 && looksLikeHTML(res.ContentType) {
			// A non-2xx response (a custom 404/500 page, say) can still carry
			// a real document with navigation links; extract it in addition
			// to recording the bad request, rather than discarding it.
			rec, rawLinks := e.opts.Pipeline.Extract(
				bytesReader(res.Body),
				u,
				extractor.ResponseMeta{
					Status:    res.StatusCode,
					Headers:   res.Headers,
					BodySize:  int64(len(res.Body)),
					ElapsedMs: res.ElapsedMs,
				},
			)
			outcome.record = rec
			outcome.rawLinks = rawLinks
		}
		return outcome
	}

	rec, rawLinks := e.opts.Pipeline.Extract(
		bytesReader(res.Body),
		u,
		extractor.ResponseMeta{
			Status:    res.StatusCode,
			Headers:   res.Headers,
			BodySize:  int64(len(res.Body)),
			ElapsedMs: res.ElapsedMs,
		},
	)
	return fetchOutcome{url: u, finalURL: res.FinalURL, record: rec, rawLinks: rawLinks}
}

// collectResults is the single goroutine that owns the aggregate maps: it
// consumes fetchOutcome and probeOutcome values and is the only place the
// engine mutates Stats/BadRequests/ExternalLinks/MailtoLinks/TelLinks.
func (e *Engine) collectResults(ctx context.Context, allDone <-chan struct{}) TerminationReason {
	probeResultCh := e.probeResultCh
	for {
		select {
		case outcome, ok := <-e.resultsCh:
			if !ok {
				return Drained
			}
			e.handleFetchOutcome(outcome)
			if e.budgetReached() {
				return BudgetReached
			}
		case outcome, ok := <-probeResultCh:
			if !ok {
				probeResultCh = nil
				continue
			}
			e.handleProbeOutcome(outcome)
		case <-allDone:
			// Nothing is left to drain: the wg reaches zero only after every
			// outcome has been handled, so no more sends are coming.
			return Drained
		case <-ctx.Done():
			return Cancelled
		}
	}
}

func (e *Engine) budgetReached() bool {
	if e.opts.MaxInternalLinks < 0 {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.state.Visited) >= e.opts.MaxInternalLinks
}

func (e *Engine) handleFetchOutcome(o fetchOutcome) {
	defer e.wg.Done()
	e.processed++

	if o.err != nil {
		kind := "network"
		if httpErr, ok := asHTTPError(o.err); ok {
			kind = httpErr.Category()
		} else if isTimeout(o.err) {
			kind = "timeout"
		}
		e.metrics.PagesFailed.WithLabelValues(kind).Inc()
		e.recordBadRequest(o.url, o.err)
		e.logger.Warn("fetch failed", zap.String("url", o.url), zap.Error(o.err))
		if o.record != nil {
			// The error page still carried a parseable body; file it and
			// follow its links the same as a successful fetch would.
			e.storeRecordAndLinks(o)
		}
		e.maybeCheckpoint()
		return
	}
	e.metrics.PagesFetched.Inc()
	e.storeRecordAndLinks(o)
	e.maybeCheckpoint()
}

// storeRecordAndLinks persists o.record and follows o.rawLinks. Called for
// every successful fetch, and for a failed fetch whose non-2xx response
// still carried an extractable body.
func (e *Engine) storeRecordAndLinks(o fetchOutcome) {
	if o.record != nil && e.opts.PageStore != nil {
		if err := e.opts.PageStore.Put(o.finalURL, o.record); err != nil {
			e.logger.Warn("page store write failed", zap.String("url", o.finalURL), zap.Error(err))
		}
	}

	if o.finalURL != "" && o.finalURL != o.url {
		// A redirect landed somewhere else; retarget visited/queue to the
		// final URL so it is never re-enqueued under either name (spec §3
		// NEW, Open Question 3).
		e.mu.Lock()
		e.state.Visited[o.finalURL] = true
		delete(e.state.Queue, o.finalURL)
		e.mu.Unlock()
	}

	base, _ := url.Parse(o.finalURL)
	for _, raw := range o.rawLinks {
		e.handleRawLink(raw, o.finalURL, base)
	}

	e.mu.Lock()
	e.state.PageDataSize++
	e.mu.Unlock()
}

func (e *Engine) handleRawLink(raw extractor.RawLink, sourceURL string, base *url.URL) {
	canon, ok := canonical.Canonicalize(raw.Href, base)
	if !ok {
		return
	}
	class := canonical.Classify(raw.Href, e.seedHost)

	e.mu.Lock()
	defer e.mu.Unlock()

	switch class {
	case canonical.Internal:
		e.touchStats(canon, raw.AnchorText, sourceURL)
		if e.state.Visited[canon] || e.state.Queue[canon] {
			return
		}
		if e.opts.MaxInternalLinks >= 0 && len(e.state.Visited)+len(e.state.Queue) >= e.opts.MaxInternalLinks {
			return
		}
		e.state.Queue[canon] = true
		e.wg.Add(1)
		e.signalDispatcher()
		e.metrics.QueueDepth.Set(float64(len(e.state.Queue)))

	case canonical.External:
		link, exists := e.state.ExternalLinks[canon]
		if !exists {
			link = &model.ExternalLink{Sources: make(map[string]bool), FirstSeen: time.Now()}
			e.state.ExternalLinks[canon] = link
		}
		link.Sources[sourceURL] = true
		if e.opts.ProbeExternalLinks && link.Status == nil {
			select {
			case e.probeCh <- canon:
			default:
			}
		}

	case canonical.Mailto:
		e.touchSink(e.state.MailtoLinks, canon, sourceURL)

	case canonical.Tel:
		e.touchSink(e.state.TelLinks, canon, sourceURL)

	case canonical.NonFetchable, canonical.InvalidURL:
		// Recorded at the page level only (spec §3 NEW); no crawl-wide
		// aggregate entry, never enqueued.
	}
}

func (e *Engine) touchStats(canon, anchor, source string) {
	stats, ok := e.state.Stats[canon]
	if !ok {
		stats = &model.LinkStats{Anchors: make(map[string]bool), Sources: make(map[string]bool)}
		e.state.Stats[canon] = stats
	}
	stats.Count++
	if anchor != "" {
		stats.Anchors[anchor] = true
	}
	stats.Sources[source] = true
}

func (e *Engine) touchSink(m map[string]*model.FunctionalSink, canon, source string) {
	sink, ok := m[canon]
	if !ok {
		sink = &model.FunctionalSink{Sources: make(map[string]bool)}
		m[canon] = sink
	}
	sink.Sources[source] = true
}

func (e *Engine) recordBadRequest(u string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var status any = model.StatusTimeout
	if httpErr, ok := asHTTPError(err); ok {
		status = httpErr.StatusCode
	}

	bad, ok := e.state.BadRequests[u]
	if !ok {
		bad = &model.BadRequest{Sources: make(map[string]bool)}
		e.state.BadRequests[u] = bad
	}
	bad.Status = status
}

func (e *Engine) handleProbeOutcome(o probeOutcome) {
	e.mu.Lock()
	defer e.mu.Unlock()

	link, ok := e.state.ExternalLinks[o.url]
	if !ok {
		return
	}
	if o.err != nil {
		link.Status = model.StatusTimeout
		return
	}
	link.Status = o.status
	link.Headers = o.headers
	if len(o.redirectChain) > 0 {
		link.RedirectChain = o.redirectChain
	}
	link.RedirectLoop = o.redirectLoop
}

func (e *Engine) maybeCheckpoint() {
	if e.opts.CheckpointEvery <= 0 {
		return
	}
	if e.processed%e.opts.CheckpointEvery != 0 {
		return
	}
	if err := e.checkpoint(); err != nil {
		e.logger.Warn("periodic checkpoint failed", zap.Error(err))
	}
}

func (e *Engine) checkpoint() error {
	if e.opts.StatePath == "" {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return statestore.Save(e.state, e.opts.StatePath)
}
