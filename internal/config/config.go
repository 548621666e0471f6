// Package config loads and validates the tool configuration.
//
// Configuration comes from an optional YAML file layered over
// DefaultConfig; command-line flags override individual fields after
// loading. Validation joins every violation into one error so an operator
// sees the whole list at once instead of fixing fields one run at a time.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	defaults "github.com/perfhist/rrdmig/config"
	"github.com/perfhist/rrdmig/internal/logging"
	"github.com/perfhist/rrdmig/internal/rrd"
	"github.com/perfhist/rrdmig/internal/scan"
)

// Config is the complete tool configuration.
type Config struct {
	// SourceRoot is the directory the legacy producer keeps archives in.
	SourceRoot string `yaml:"source_root"`

	// TargetRoot is the directory ring archives are written under.
	TargetRoot string `yaml:"target_root"`

	// Workers is the conversion worker count; 0 derives it from the CPU
	// count.
	Workers int `yaml:"workers"`

	// Force re-converts entities whose target already exists.
	Force bool `yaml:"force"`

	// RetireSource renames each migrated source so the legacy producer
	// stops updating it.
	RetireSource bool `yaml:"retire_source"`

	// Mappings lists the archive classes to scan. An explicit list
	// replaces the defaults entirely.
	Mappings []MappingConfig `yaml:"mappings"`

	// Tiers overrides the target ring layout; empty keeps the built-in
	// layout.
	Tiers []TierConfig `yaml:"tiers"`

	Logging LoggingConfig `yaml:"logging"`
}

// MappingConfig is the YAML form of one archive class.
type MappingConfig struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
	Depth  int    `yaml:"depth"`
	Roster string `yaml:"roster"`
}

// TierConfig is the YAML form of one target ring.
type TierConfig struct {
	CF   string `yaml:"cf"`
	Step uint32 `yaml:"step"`
	Rows uint32 `yaml:"rows"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns the configuration used when no file is given: the
// standard roots, automatic worker count and the default class mappings.
func DefaultConfig() *Config {
	mappings := scan.DefaultMappings()
	mcs := make([]MappingConfig, len(mappings))
	for i, m := range mappings {
		mcs[i] = MappingConfig{Source: m.Source, Target: m.Target, Depth: m.Depth}
	}
	return &Config{
		SourceRoot: defaults.DefaultSourceRoot,
		TargetRoot: defaults.DefaultTargetRoot,
		Mappings:   mcs,
		Logging:    LoggingConfig{Level: "info"},
	}
}

// Load reads a YAML file over the defaults and validates the result.
// Unknown keys are errors: a typoed field that silently falls back to its
// default is worse than a failed start.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the whole configuration and returns every violation,
// joined.
func (c *Config) Validate() error {
	var errs []error

	if c.SourceRoot == "" {
		errs = append(errs, errors.New("source_root must not be empty"))
	}
	if c.TargetRoot == "" {
		errs = append(errs, errors.New("target_root must not be empty"))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}

	if len(c.Mappings) == 0 {
		errs = append(errs, errors.New("at least one mapping is required"))
	}
	seen := make(map[string]bool, len(c.Mappings))
	for i, m := range c.Mappings {
		if err := m.scanMapping().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("mappings[%d]: %w", i, err))
		}
		if m.Source != "" && seen[m.Source] {
			errs = append(errs, fmt.Errorf("mappings[%d]: duplicate source %q", i, m.Source))
		}
		seen[m.Source] = true
	}

	if _, err := c.TierLayout(); err != nil {
		errs = append(errs, fmt.Errorf("tiers: %w", err))
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// TierLayout converts the tier overrides to the resampler's layout type.
// An empty override returns nil, which selects the built-in layout.
func (c *Config) TierLayout() ([]rrd.TierSpec, error) {
	if len(c.Tiers) == 0 {
		return nil, nil
	}
	specs := make([]rrd.TierSpec, len(c.Tiers))
	for i, t := range c.Tiers {
		cf, err := rrd.ParseCF(t.CF)
		if err != nil {
			return nil, fmt.Errorf("tier %d: %w", i, err)
		}
		specs[i] = rrd.TierSpec{CF: cf, Step: t.Step, Rows: t.Rows}
	}
	if err := rrd.ValidateLayout(specs); err != nil {
		return nil, err
	}
	return specs, nil
}

// ScanMappings converts the configured mappings to the scanner's type.
func (c *Config) ScanMappings() []scan.Mapping {
	out := make([]scan.Mapping, len(c.Mappings))
	for i, m := range c.Mappings {
		out[i] = m.scanMapping()
	}
	return out
}

func (m MappingConfig) scanMapping() scan.Mapping {
	return scan.Mapping{Source: m.Source, Target: m.Target, Depth: m.Depth, Roster: m.Roster}
}

// ApplyResourceRoot attaches the conventional roster files under dir to the
// classes that have one: <dir>/.vmlist for guests, <dir>/.members for
// nodes. Mappings with an explicit roster keep it.
func (c *Config) ApplyResourceRoot(dir string) {
	for i := range c.Mappings {
		m := &c.Mappings[i]
		if m.Roster != "" {
			continue
		}
		switch m.Source {
		case "vm":
			m.Roster = filepath.Join(dir, defaults.VMRosterFile)
		case "node":
			m.Roster = filepath.Join(dir, defaults.NodeRosterFile)
		}
	}
}
