// Package model holds the data shapes shared by the crawl engine, the two
// on-disk stores, and the extractor pipeline. Everything here is a plain
// tree of scalars, slices, and maps so it serializes to and from JSON
// without custom marshalers. Sub-records produced by extractors are kept as
// RawExtractorOutput so the core never couples to an analyzer's schema.
package model

import "time"

// RawExtractorOutput is an opaque JSON-shaped tree produced by a feature
// extractor. The core never inspects its contents; it only persists and
// round-trips it.
type RawExtractorOutput = map[string]any

// PageRecord is the per-URL analysis output, one per visited canonical URL.
// A later visit to the same URL overwrites the previous record.
type PageRecord struct {
	URL          string            `json:"url"`
	FetchedAt    time.Time         `json:"fetchedAt"`
	Status       int               `json:"status"`
	ResponseMs   int64             `json:"responseMs"`
	PayloadBytes int64             `json:"payloadBytes"`
	Headers      map[string]string `json:"headers"`

	SEO           RawExtractorOutput `json:"seo,omitempty"`
	Content       RawExtractorOutput `json:"content,omitempty"`
	Links         RawExtractorOutput `json:"links,omitempty"`
	Technical     RawExtractorOutput `json:"technical,omitempty"`
	Security      RawExtractorOutput `json:"security,omitempty"`
	Accessibility RawExtractorOutput `json:"accessibility,omitempty"`
	Mobile        RawExtractorOutput `json:"mobile,omitempty"`

	Enhanced   RawExtractorOutput `json:"enhanced,omitempty"`
	Ecommerce  RawExtractorOutput `json:"ecommerce,omitempty"`
	Media      RawExtractorOutput `json:"media,omitempty"`
	Navigation RawExtractorOutput `json:"navigation,omitempty"`

	// ParseError is set when the HTML body could not be parsed; the rest
	// of the sub-records are then left empty rather than the run failing.
	ParseError string `json:"parseError,omitempty"`
}

// LinkClass is the result of classifying a discovered link.
type LinkClass int

const (
	ClassInternal LinkClass = iota
	ClassExternal
	ClassMailto
	ClassTel
	ClassNonFetchable
	ClassInvalid
)

func (c LinkClass) String() string {
	switch c {
	case ClassInternal:
		return "internal"
	case ClassExternal:
		return "external"
	case ClassMailto:
		return "mailto"
	case ClassTel:
		return "tel"
	case ClassNonFetchable:
		return "nonfetchable"
	default:
		return "invalid"
	}
}

// StatusTimeout is the symbolic status recorded when a request times out
// instead of receiving an HTTP response.
const StatusTimeout = "TIMEOUT"

// LinkStats is the aggregate entry for an internal URL: how many times it
// was linked to, which anchor texts were used, and which pages linked it.
type LinkStats struct {
	Count   int             `json:"count"`
	Anchors map[string]bool `json:"-"`
	Sources map[string]bool `json:"-"`
}

// linkStatsWire is the JSON representation of LinkStats (sets as arrays).
type linkStatsWire struct {
	Count   int      `json:"count"`
	Anchors []string `json:"anchors"`
	Sources []string `json:"sources"`
}

// BadRequest is the overlay entry recording the last non-2xx (or timeout)
// outcome for an internal URL already present in Stats.
type BadRequest struct {
	Status  any             `json:"-"` // int or StatusTimeout
	Sources map[string]bool `json:"-"`
}

type badRequestWire struct {
	Status  any      `json:"status"`
	Sources []string `json:"sources"`
}

// ExternalLink is the aggregate entry for an external URL.
type ExternalLink struct {
	Status        any             `json:"-"`
	Sources       map[string]bool `json:"-"`
	Headers       map[string]string `json:"headers,omitempty"`
	RedirectChain []string        `json:"-"`
	RedirectLoop  bool            `json:"-"`
	FirstSeen     time.Time       `json:"-"`
}

type externalLinkWire struct {
	Status        any               `json:"status"`
	Sources       []string          `json:"sources"`
	Headers       map[string]string `json:"headers,omitempty"`
	RedirectChain []string          `json:"redirectChain,omitempty"`
	RedirectLoop  bool              `json:"loop,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

// FunctionalSink is the aggregate entry for a mailto:/tel: URI.
type FunctionalSink struct {
	Sources map[string]bool `json:"-"`
}

type functionalSinkWire struct {
	Sources []string `json:"sources"`
}

// CrawlState is the full, checkpointable state of one audit.
type CrawlState struct {
	Visited map[string]bool `json:"-"`
	Queue   map[string]bool `json:"-"`

	Stats         map[string]*LinkStats     `json:"-"`
	BadRequests   map[string]*BadRequest    `json:"-"`
	ExternalLinks map[string]*ExternalLink  `json:"-"`
	MailtoLinks   map[string]*FunctionalSink `json:"-"`
	TelLinks      map[string]*FunctionalSink `json:"-"`

	PageDataSize int `json:"pageDataSize"`

	AuditID   string    `json:"-"`
	Version   string    `json:"-"`
	Timestamp time.Time `json:"-"`
}

// NewCrawlState returns an empty, ready-to-use CrawlState.
func NewCrawlState() *CrawlState {
	return &CrawlState{
		Visited:       make(map[string]bool),
		Queue:         make(map[string]bool),
		Stats:         make(map[string]*LinkStats),
		BadRequests:   make(map[string]*BadRequest),
		ExternalLinks: make(map[string]*ExternalLink),
		MailtoLinks:   make(map[string]*FunctionalSink),
		TelLinks:      make(map[string]*FunctionalSink),
	}
}

// StateSerializerVersion tags the snapshot format written to disk.
const StateSerializerVersion = "1.0.0"

// snapshotWire is the exact on-disk JSON shape described by spec §6.
type snapshotWire struct {
	Visited       []string                      `json:"visited"`
	Queue         []string                      `json:"queue"`
	Stats         map[string]linkStatsWire      `json:"stats"`
	BadRequests   map[string]badRequestWire     `json:"badRequests"`
	ExternalLinks map[string]externalLinkWire   `json:"externalLinks"`
	MailtoLinks   map[string]functionalSinkWire `json:"mailtoLinks"`
	TelLinks      map[string]functionalSinkWire `json:"telLinks"`
	PageDataSize  int                           `json:"pageDataSize"`
	Compression   compressionMeta               `json:"_compression"`
}

type compressionMeta struct {
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	AuditID   string    `json:"auditId,omitempty"`
}

func setToSlice(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func sliceToSet(s []string) map[string]bool {
	m := make(map[string]bool, len(s))
	for _, v := range s {
		m[v] = true
	}
	return m
}

// ToWire converts the CrawlState into its JSON-serializable form, turning
// every set-valued member into a sorted-free array. Order across runs is
// not guaranteed, matching spec §3's "queue is a set" invariant.
func (s *CrawlState) ToWire() any {
	w := snapshotWire{
		Visited:       setToSlice(s.Visited),
		Queue:         setToSlice(s.Queue),
		Stats:         make(map[string]linkStatsWire, len(s.Stats)),
		BadRequests:   make(map[string]badRequestWire, len(s.BadRequests)),
		ExternalLinks: make(map[string]externalLinkWire, len(s.ExternalLinks)),
		MailtoLinks:   make(map[string]functionalSinkWire, len(s.MailtoLinks)),
		TelLinks:      make(map[string]functionalSinkWire, len(s.TelLinks)),
		PageDataSize:  s.PageDataSize,
		Compression: compressionMeta{
			Version:   StateSerializerVersion,
			Timestamp: s.Timestamp,
			AuditID:   s.AuditID,
		},
	}
	for k, v := range s.Stats {
		w.Stats[k] = linkStatsWire{Count: v.Count, Anchors: setToSlice(v.Anchors), Sources: setToSlice(v.Sources)}
	}
	for k, v := range s.BadRequests {
		w.BadRequests[k] = badRequestWire{Status: v.Status, Sources: setToSlice(v.Sources)}
	}
	for k, v := range s.ExternalLinks {
		w.ExternalLinks[k] = externalLinkWire{
			Status:        v.Status,
			Sources:       setToSlice(v.Sources),
			Headers:       v.Headers,
			RedirectChain: v.RedirectChain,
			RedirectLoop:  v.RedirectLoop,
			Timestamp:     v.FirstSeen,
		}
	}
	for k, v := range s.MailtoLinks {
		w.MailtoLinks[k] = functionalSinkWire{Sources: setToSlice(v.Sources)}
	}
	for k, v := range s.TelLinks {
		w.TelLinks[k] = functionalSinkWire{Sources: setToSlice(v.Sources)}
	}
	return &w
}

// FromWire rehydrates a CrawlState from its decoded wire representation.
func FromWire(w *snapshotWire) *CrawlState {
	s := NewCrawlState()
	s.Visited = sliceToSet(w.Visited)
	s.Queue = sliceToSet(w.Queue)
	s.PageDataSize = w.PageDataSize
	s.Version = w.Compression.Version
	s.Timestamp = w.Compression.Timestamp
	s.AuditID = w.Compression.AuditID
	for k, v := range w.Stats {
		s.Stats[k] = &LinkStats{Count: v.Count, Anchors: sliceToSet(v.Anchors), Sources: sliceToSet(v.Sources)}
	}
	for k, v := range w.BadRequests {
		s.BadRequests[k] = &BadRequest{Status: v.Status, Sources: sliceToSet(v.Sources)}
	}
	for k, v := range w.ExternalLinks {
		s.ExternalLinks[k] = &ExternalLink{
			Status:        v.Status,
			Sources:       sliceToSet(v.Sources),
			Headers:       v.Headers,
			RedirectChain: v.RedirectChain,
			RedirectLoop:  v.RedirectLoop,
			FirstSeen:     v.Timestamp,
		}
	}
	for k, v := range w.MailtoLinks {
		s.MailtoLinks[k] = &FunctionalSink{Sources: sliceToSet(v.Sources)}
	}
	for k, v := range w.TelLinks {
		s.TelLinks[k] = &FunctionalSink{Sources: sliceToSet(v.Sources)}
	}
	return s
}

// WireSnapshot exposes the unexported wire type to statestore for decoding.
type WireSnapshot = snapshotWire
