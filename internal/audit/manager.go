// Package audit implements the Audit Manager (spec §4.6): it owns the
// per-domain directory layout and the in-progress/completed/failed
// lifecycle of individual crawl runs, and never mutates an audit's state
// during an active run other than to set its terminal status.
package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cametumbling/siteaudit/internal/model"
	"github.com/cametumbling/siteaudit/internal/pagedata"
	"github.com/cametumbling/siteaudit/internal/statestore"
)

const timeLayout = "2006-01-02-15-04-05"

// Status is an audit's lifecycle stage. Transitions are monotonic:
// in-progress -> completed, or in-progress -> failed.
type Status string

const (
	InProgress Status = "in-progress"
	Completed  Status = "completed"
	Failed     Status = "failed"
)

var nonSlugChar = regexp.MustCompile(`[^A-Za-z0-9.-]`)

// DomainSlug turns a host into the directory-safe slug spec §6 describes.
func DomainSlug(host string) string {
	return nonSlugChar.ReplaceAllString(host, "_")
}

// Handle is a live audit: its directory, id, stores, and status marker.
type Handle struct {
	Root      string // audits/<domainSlug>
	Dir       string // audits/<domainSlug>/audit-YYYY-MM-DD-HH-MM-SS
	AuditID   string
	Domain    string
	StatePath string

	PageStore *pagedata.Store
}

// Manager owns every audit directory under root for every domain.
type Manager struct {
	root string
}

// New returns a Manager rooted at root (typically "audits").
func New(root string) *Manager {
	return &Manager{root: root}
}

func (m *Manager) domainDir(domain string) string {
	return filepath.Join(m.root, DomainSlug(domain))
}

func (m *Manager) statusPath(dir string, s Status) string {
	return filepath.Join(dir, "."+string(s))
}

func (m *Manager) failureLogPath(dir string) string {
	return filepath.Join(dir, "failed-urls.log")
}

// CreateOrResume picks the most recent in-progress audit for domain to
// resume unless forceNew is true, in which case (or when none exists) it
// creates a fresh, timestamped audit directory.
func (m *Manager) CreateOrResume(domain string, forceNew bool) (*Handle, *model.CrawlState, error) {
	domainDir := m.domainDir(domain)
	if err := os.MkdirAll(domainDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating domain dir: %w", err)
	}

	if !forceNew {
		if h, state, ok, err := m.resumeLatestInProgress(domain); err != nil {
			return nil, nil, err
		} else if ok {
			return h, state, nil
		}
	}

	return m.createNew(domain)
}

func (m *Manager) resumeLatestInProgress(domain string) (*Handle, *model.CrawlState, bool, error) {
	summaries, err := m.List(domain)
	if err != nil {
		return nil, nil, false, err
	}
	for _, s := range summaries {
		if s.Status != InProgress {
			continue
		}
		h, err := m.open(domain, s.AuditDir)
		if err != nil {
			return nil, nil, false, err
		}
		state, ok := statestore.Load(h.StatePath)
		if !ok {
			// CorruptState (spec §7): start a new audit rather than resume.
			continue
		}
		return h, state, true, nil
	}
	return nil, nil, false, nil
}

func (m *Manager) createNew(domain string) (*Handle, *model.CrawlState, error) {
	id := uuid.New().String()
	created := time.Now()
	dirName := "audit-" + created.Format(timeLayout)
	// Names have one-second resolution; step past any audit already created
	// in the same second so every new audit gets its own directory.
	for {
		if _, err := os.Stat(filepath.Join(m.domainDir(domain), dirName)); err != nil {
			break
		}
		created = created.Add(time.Second)
		dirName = "audit-" + created.Format(timeLayout)
	}
	dir := filepath.Join(m.domainDir(domain), dirName)
	if err := os.MkdirAll(filepath.Join(dir, "comparisons"), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating audit dir: %w", err)
	}

	h, err := m.open(domain, dirName)
	if err != nil {
		return nil, nil, err
	}
	if err := os.WriteFile(m.statusPath(dir, InProgress), []byte{}, 0o644); err != nil {
		return nil, nil, fmt.Errorf("marking audit in-progress: %w", err)
	}

	state := model.NewCrawlState()
	state.AuditID = id
	return h, state, nil
}

func (m *Manager) open(domain, dirName string) (*Handle, error) {
	dir := filepath.Join(m.domainDir(domain), dirName)
	pageDir := filepath.Join(dir, "page-data")
	store, err := pagedata.New(pageDir)
	if err != nil {
		return nil, err
	}
	auditID := strings.TrimPrefix(dirName, "audit-")
	return &Handle{
		Root:      m.domainDir(domain),
		Dir:       dir,
		AuditID:   auditID,
		Domain:    domain,
		StatePath: statestore.PathFor(dir, auditID),
		PageStore: store,
	}, nil
}

// Complete marks an audit completed. Monotonic: does nothing if already
// terminal.
func (m *Manager) Complete(h *Handle) error {
	return m.setTerminal(h, Completed)
}

// Fail marks an audit failed, preserving its state for inspection (spec
// §7's FatalInternal handling). reason is always appended to the failure
// log; the status itself is left alone if the audit is already terminal.
func (m *Manager) Fail(h *Handle, reason string) error {
	if reason != "" {
		f, err := os.OpenFile(m.failureLogPath(h.Dir), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%s\t%s\n", time.Now().Format(time.RFC3339), reason)
			f.Close()
		}
	}
	return m.setTerminal(h, Failed)
}

func (m *Manager) setTerminal(h *Handle, s Status) error {
	if statusOf(h.Dir) != InProgress {
		return nil
	}
	os.Remove(m.statusPath(h.Dir, InProgress))
	os.Remove(m.statusPath(h.Dir, Completed))
	os.Remove(m.statusPath(h.Dir, Failed))
	return os.WriteFile(m.statusPath(h.Dir, s), []byte{}, 0o644)
}

// LogFailedURL appends one line to the audit's append-only failure log
// (spec §6's failed-urls.log).
func (m *Manager) LogFailedURL(h *Handle, url string, reason string) error {
	f, err := os.OpenFile(m.failureLogPath(h.Dir), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%s\t%s\t%s\n", time.Now().Format(time.RFC3339), url, reason)
	return err
}

// Summary is one entry in List's output.
type Summary struct {
	AuditDir     string
	AuditID      string
	Status       Status
	CreatedAt    time.Time
	PageCount    int
	InternalLink int
	ExternalLink int
}

// List returns every audit for domain, sorted newest-first.
func (m *Manager) List(domain string) ([]Summary, error) {
	entries, err := os.ReadDir(m.domainDir(domain))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing audits: %w", err)
	}

	var summaries []Summary
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "audit-") {
			continue
		}
		dir := filepath.Join(m.domainDir(domain), e.Name())
		s := Summary{
			AuditDir: e.Name(),
			AuditID:  strings.TrimPrefix(e.Name(), "audit-"),
			Status:   statusOf(dir),
		}
		if t, err := time.Parse(timeLayout, s.AuditID); err == nil {
			s.CreatedAt = t
		}
		if state, ok := statestore.Load(statestore.PathFor(dir, s.AuditID)); ok {
			s.PageCount = state.PageDataSize
			s.InternalLink = len(state.Stats)
			s.ExternalLink = len(state.ExternalLinks)
		}
		summaries = append(summaries, s)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].AuditDir > summaries[j].AuditDir
	})
	return summaries, nil
}

func statusOf(dir string) Status {
	for _, s := range []Status{InProgress, Completed, Failed} {
		if _, err := os.Stat(filepath.Join(dir, "."+string(s))); err == nil {
			return s
		}
	}
	return InProgress
}

// Stats counts a domain's audits by status and averages their page counts.
// AverageDuration is never filled in and stays zero, and no per-audit
// page-count trend is kept beyond that single average.
type Stats struct {
	AuditCount      int
	CompletedCount  int
	FailedCount     int
	AveragePages    float64
	AverageDuration time.Duration
}

func (m *Manager) Stats(domain string) (Stats, error) {
	summaries, err := m.List(domain)
	if err != nil {
		return Stats{}, err
	}
	var st Stats
	var totalPages int
	for _, s := range summaries {
		st.AuditCount++
		switch s.Status {
		case Completed:
			st.CompletedCount++
		case Failed:
			st.FailedCount++
		}
		totalPages += s.PageCount
	}
	if st.AuditCount > 0 {
		st.AveragePages = float64(totalPages) / float64(st.AuditCount)
	}
	return st, nil
}

// CleanupResult is the outcome of a Cleanup pass.
type CleanupResult struct {
	Kept    int
	Deleted int
}

// Cleanup preserves the keep newest audits for domain and deletes the
// remainder. in-progress audits are never deleted regardless of age.
func (m *Manager) Cleanup(domain string, keep int) (CleanupResult, error) {
	summaries, err := m.List(domain)
	if err != nil {
		return CleanupResult{}, err
	}

	var result CleanupResult
	kept := 0
	for _, s := range summaries {
		if s.Status == InProgress {
			result.Kept++
			continue
		}
		if kept < keep {
			kept++
			result.Kept++
			continue
		}
		dir := filepath.Join(m.domainDir(domain), s.AuditDir)
		if err := os.RemoveAll(dir); err != nil {
			return result, fmt.Errorf("removing %s: %w", dir, err)
		}
		result.Deleted++
	}
	return result, nil
}

// ComparisonReport is the fixed metric-vector diff between two audits'
// snapshots (spec §4.6's compare).
type ComparisonReport struct {
	AuditA, AuditB               string
	PagesA, PagesB               int
	InternalLinksA, InternalLinksB int
	ExternalLinksA, ExternalLinksB int
	BrokenLinksA, BrokenLinksB     int
}

// Compare diffs two audits' state snapshots along a fixed metric vector.
// It only reads; it never mutates either audit.
func (m *Manager) Compare(domain, auditA, auditB string) (ComparisonReport, error) {
	stateA, err := m.loadState(domain, auditA)
	if err != nil {
		return ComparisonReport{}, err
	}
	stateB, err := m.loadState(domain, auditB)
	if err != nil {
		return ComparisonReport{}, err
	}

	return ComparisonReport{
		AuditA:         auditA,
		AuditB:         auditB,
		PagesA:         stateA.PageDataSize,
		PagesB:         stateB.PageDataSize,
		InternalLinksA: len(stateA.Stats),
		InternalLinksB: len(stateB.Stats),
		ExternalLinksA: len(stateA.ExternalLinks),
		ExternalLinksB: len(stateB.ExternalLinks),
		BrokenLinksA:   len(stateA.BadRequests),
		BrokenLinksB:   len(stateB.BadRequests),
	}, nil
}

func (m *Manager) loadState(domain, auditDirName string) (*model.CrawlState, error) {
	dir := filepath.Join(m.domainDir(domain), auditDirName)
	auditID := strings.TrimPrefix(auditDirName, "audit-")
	state, ok := statestore.Load(statestore.PathFor(dir, auditID))
	if !ok {
		return nil, fmt.Errorf("loading state for %s: not found or corrupt", auditDirName)
	}
	return state, nil
}
