// Package statestore implements the State Store (spec §4.3): atomic,
// transparently-compressed snapshots of the full Crawl State.
//
// The write-temp-then-rename atomicity pattern is standard Go; the
// single-writer, atomic-publish discipline mirrors how the teacher
// crawler's Coordinator is the sole owner of its visited/queue state,
// applied here to the on-disk file instead of an in-memory map.
package statestore

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cametumbling/siteaudit/internal/model"
)

// CompressionThreshold is the serialized-size cutoff above which a
// snapshot is gzip-compressed (spec §4.3: 10 KiB).
const CompressionThreshold = 10 * 1024

const stateSuffix = "-crawl-state.json"

// PathFor returns the uncompressed snapshot path for an audit directory
// and audit id, matching spec §6's "<auditId>-crawl-state.json" naming.
func PathFor(auditDir, auditID string) string {
	return filepath.Join(auditDir, auditID+stateSuffix)
}

// Save serializes state and writes it to path (the uncompressed ".json"
// name, as PathFor returns it) or, when the serialized size exceeds
// CompressionThreshold, gzip-compressed to path + ".gz". The write lands via a temp-file rename so
// readers never observe a partial snapshot, and the sibling variant (the
// opposite compression) is removed on success so exactly one of
// path/path.gz exists at rest.
func Save(state *model.CrawlState, path string) error {
	state.Timestamp = time.Now()
	data, err := json.Marshal(state.ToWire())
	if err != nil {
		return fmt.Errorf("marshaling crawl state: %w", err)
	}

	jsonPath := path
	gzPath := path + ".gz"

	if len(data) > CompressionThreshold {
		if err := writeGzAtomic(gzPath, data); err != nil {
			fmt.Fprintf(os.Stderr, "statestore: compressed save failed, falling back to uncompressed: %v\n", err)
			if werr := writeAtomic(jsonPath, data); werr != nil {
				return fmt.Errorf("fallback uncompressed save: %w", werr)
			}
			os.Remove(gzPath)
			return nil
		}
		os.Remove(jsonPath)
		return nil
	}

	if err := writeAtomic(jsonPath, data); err != nil {
		return fmt.Errorf("saving crawl state: %w", err)
	}
	os.Remove(gzPath)
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func writeGzAtomic(path string, data []byte) error {
	var buf bytes.Buffer
	gw, err := gzip.NewWriterLevel(&buf, gzip.DefaultCompression)
	if err != nil {
		return err
	}
	if _, err := gw.Write(data); err != nil {
		gw.Close()
		return err
	}
	if err := gw.Close(); err != nil {
		return err
	}
	return writeAtomic(path, buf.Bytes())
}

// Load reads the snapshot at path (the uncompressed ".json" name), trying
// the compressed variant path + ".gz" first, then path itself; if one
// variant is corrupt it falls back to the other before giving up and
// returning nil, false.
func Load(path string) (*model.CrawlState, bool) {
	gzPath := path + ".gz"

	if state, err := loadGz(gzPath); err == nil {
		return state, true
	} else if !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "statestore: compressed snapshot corrupt, trying uncompressed: %v\n", err)
	}

	if state, err := loadJSON(path); err == nil {
		return state, true
	} else if !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "statestore: uncompressed snapshot corrupt: %v\n", err)
	}

	return nil, false
}

func loadGz(path string) (*model.CrawlState, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer gr.Close()

	return decodeState(gr)
}

func loadJSON(path string) (*model.CrawlState, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decodeState(f)
}

func decodeState(r io.Reader) (*model.CrawlState, error) {
	var wire model.WireSnapshot
	if err := json.NewDecoder(r).Decode(&wire); err != nil {
		return nil, err
	}
	return model.FromWire(&wire), nil
}

// MigrateResult is the outcome of a Migrate pass.
type MigrateResult struct {
	Migrated int
	Errors   int
}

// Migrate walks dir for "*-crawl-state.json" files and rewrites any above
// CompressionThreshold as ".json.gz", deleting the original on success.
// Running Migrate twice in a row is a no-op the second time.
func Migrate(dir string) MigrateResult {
	var result MigrateResult
	var matches []string

	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, stateSuffix) {
			matches = append(matches, path)
		}
		return nil
	})
	sort.Strings(matches)

	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			result.Errors++
			continue
		}
		if info.Size() <= CompressionThreshold {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			result.Errors++
			continue
		}
		if err := writeGzAtomic(path+".gz", data); err != nil {
			result.Errors++
			continue
		}
		os.Remove(path)
		result.Migrated++
	}
	return result
}

// Report counts the snapshot files under dir by variant and totals their
// size on disk. It does not estimate potential savings.
type Report struct {
	SnapshotCount     int
	CompressedCount   int
	UncompressedCount int
	TotalBytes        int64
}

// Stats and ReportFor both walk dir and return the same Report; ReportFor
// adds nothing beyond Stats here (no rendering layer exists at this layer
// per spec §1's non-goals) so the two share an implementation.
func Stats(dir string) Report {
	return buildReport(dir)
}

func ReportFor(dir string) Report {
	return buildReport(dir)
}

func buildReport(dir string) Report {
	var r Report
	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		switch {
		case strings.HasSuffix(path, stateSuffix+".gz"):
			r.SnapshotCount++
			r.CompressedCount++
			r.TotalBytes += info.Size()
		case strings.HasSuffix(path, stateSuffix):
			r.SnapshotCount++
			r.UncompressedCount++
			r.TotalBytes += info.Size()
		}
		return nil
	})
	return r
}
