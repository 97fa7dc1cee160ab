package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	d := Defaults()
	if d.Workers != 8 {
		t.Errorf("Workers = %d, want 8", d.Workers)
	}
	if d.MaxInternalLinks != -1 {
		t.Errorf("MaxInternalLinks = %d, want -1 (unbounded)", d.MaxInternalLinks)
	}
	if d.AuditsRoot != "audits" {
		t.Errorf("AuditsRoot = %q, want %q", d.AuditsRoot, "audits")
	}
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	opts, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if opts != Defaults() {
		t.Errorf("Load(\"\") = %+v, want Defaults()", opts)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	opts, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if opts != Defaults() {
		t.Errorf("Load() of a missing file = %+v, want Defaults()", opts)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "siteaudit.yaml")
	yaml := "workers: 4\ntimeout: 30s\nmaxInternalLinks: 500\nprobeExternalLinks: true\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("writing config fixture: %v", err)
	}

	opts, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if opts.Workers != 4 {
		t.Errorf("Workers = %d, want 4", opts.Workers)
	}
	if opts.Timeout != Duration(30*time.Second) {
		t.Errorf("Timeout = %v, want 30s", opts.Timeout)
	}
	if opts.MaxInternalLinks != 500 {
		t.Errorf("MaxInternalLinks = %d, want 500", opts.MaxInternalLinks)
	}
	if !opts.ProbeExternalLinks {
		t.Errorf("ProbeExternalLinks = false, want true")
	}
	// Fields absent from the file keep their defaults.
	if opts.UserAgent != Defaults().UserAgent {
		t.Errorf("UserAgent = %q, want default %q", opts.UserAgent, Defaults().UserAgent)
	}
}

func TestLoad_MalformedFileIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "siteaudit.yaml")
	if err := os.WriteFile(path, []byte("workers: [this is not valid"), 0o644); err != nil {
		t.Fatalf("writing config fixture: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("Load() of a malformed file should return an error")
	}
}
