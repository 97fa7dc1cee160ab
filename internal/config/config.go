// Package config loads the crawler's layered options: built-in defaults,
// overridden by an optional YAML file, overridden by CLI flags. Grounded on
// the teacher crawler's flag-only Config, extended with a YAML layer
// (gopkg.in/yaml.v3, not a teacher dependency) since spec §4.7 adds a
// persistent on-disk configuration the teacher never needed.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so it can be written in a config file the
// way a person would write it ("10s", "2m30s") rather than as raw
// nanoseconds, which is all yaml.v3 gives a bare time.Duration field.
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Options is the fully resolved configuration for one siteaudit run.
type Options struct {
	AuditsRoot         string   `yaml:"auditsRoot"`
	Workers            int      `yaml:"workers"`
	Timeout            Duration `yaml:"timeout"`
	RateLimit          Duration `yaml:"rateLimit"`
	UserAgent          string   `yaml:"userAgent"`
	MaxBodySize        int64    `yaml:"maxBodySize"`
	CheckpointInterval int      `yaml:"checkpointInterval"`
	MaxInternalLinks   int      `yaml:"maxInternalLinks"`
	ProbeExternalLinks bool     `yaml:"probeExternalLinks"`
	ProbeWorkers       int      `yaml:"probeWorkers"`
	KeepAudits         int      `yaml:"keepAudits"`
	MetricsAddr        string   `yaml:"metricsAddr"`
}

// Defaults returns the built-in baseline, the bottom layer of the stack.
func Defaults() Options {
	return Options{
		AuditsRoot:         "audits",
		Workers:            8,
		Timeout:            Duration(10 * time.Second),
		RateLimit:          0,
		UserAgent:          "SiteAuditBot/1.0",
		MaxBodySize:        2 * 1024 * 1024,
		CheckpointInterval: 25,
		MaxInternalLinks:   -1,
		ProbeExternalLinks: false,
		ProbeWorkers:       2,
		KeepAudits:         10,
		MetricsAddr:        "",
	}
}

// Load builds an Options by layering a YAML file (if path is non-empty and
// exists) over Defaults. A missing file is not an error; a malformed one
// is.
func Load(path string) (Options, error) {
	opts := Defaults()
	if path == "" {
		return opts, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return opts, nil
	}
	if err != nil {
		return opts, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return opts, nil
}
