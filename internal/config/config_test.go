package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	defaults "github.com/perfhist/rrdmig/config"
	"github.com/perfhist/rrdmig/internal/rrd"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rrdmig.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate, got %v", err)
	}
	if cfg.SourceRoot != defaults.DefaultSourceRoot {
		t.Errorf("expected source root %q, got %q", defaults.DefaultSourceRoot, cfg.SourceRoot)
	}
	if cfg.TargetRoot != defaults.DefaultTargetRoot {
		t.Errorf("expected target root %q, got %q", defaults.DefaultTargetRoot, cfg.TargetRoot)
	}
	if len(cfg.Mappings) != 3 {
		t.Errorf("expected 3 default mappings, got %d", len(cfg.Mappings))
	}
	if cfg.Workers != 0 {
		t.Errorf("expected automatic workers (0), got %d", cfg.Workers)
	}

	tiers, err := cfg.TierLayout()
	if err != nil {
		t.Fatalf("TierLayout() error: %v", err)
	}
	if tiers != nil {
		t.Errorf("expected nil layout for empty override, got %d tiers", len(tiers))
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
source_root: /srv/legacy
target_root: /srv/ring
workers: 3
force: true
retire_source: true
mappings:
  - source: vm
    target: guests
    depth: 1
    roster: /etc/cluster/.vmlist
  - source: storage
    target: storage
    depth: 2
tiers:
  - {cf: AVERAGE, step: 60, rows: 1440}
  - {cf: AVERAGE, step: 1800, rows: 1440}
  - {cf: MAX, step: 60, rows: 1440}
logging:
  level: debug
  json: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.SourceRoot != "/srv/legacy" {
		t.Errorf("expected source root /srv/legacy, got %q", cfg.SourceRoot)
	}
	if cfg.Workers != 3 {
		t.Errorf("expected 3 workers, got %d", cfg.Workers)
	}
	if !cfg.Force || !cfg.RetireSource {
		t.Errorf("expected force and retire_source set, got %v %v", cfg.Force, cfg.RetireSource)
	}

	// An explicit mapping list replaces the defaults.
	if len(cfg.Mappings) != 2 {
		t.Fatalf("expected 2 mappings, got %d", len(cfg.Mappings))
	}
	if cfg.Mappings[0].Target != "guests" || cfg.Mappings[0].Roster != "/etc/cluster/.vmlist" {
		t.Errorf("unexpected first mapping: %+v", cfg.Mappings[0])
	}

	tiers, err := cfg.TierLayout()
	if err != nil {
		t.Fatalf("TierLayout() error: %v", err)
	}
	if len(tiers) != 3 {
		t.Fatalf("expected 3 tiers, got %d", len(tiers))
	}
	want := rrd.TierSpec{CF: rrd.CFAverage, Step: 1800, Rows: 1440}
	if tiers[1] != want {
		t.Errorf("expected tier %+v, got %+v", want, tiers[1])
	}

	if cfg.Logging.Level != "debug" || !cfg.Logging.JSON {
		t.Errorf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestLoadEmptyFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.SourceRoot != defaults.DefaultSourceRoot {
		t.Errorf("expected default source root, got %q", cfg.SourceRoot)
	}
}

func TestLoadUnknownField(t *testing.T) {
	path := writeConfig(t, "source_roots: /typo\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config { return DefaultConfig() }

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty source root", func(c *Config) { c.SourceRoot = "" }, "source_root"},
		{"empty target root", func(c *Config) { c.TargetRoot = "" }, "target_root"},
		{"negative workers", func(c *Config) { c.Workers = -1 }, "workers"},
		{"no mappings", func(c *Config) { c.Mappings = nil }, "mapping"},
		{"bad depth", func(c *Config) { c.Mappings[0].Depth = 3 }, "depth"},
		{"duplicate source", func(c *Config) { c.Mappings[1].Source = c.Mappings[0].Source }, "duplicate"},
		{"bad tier cf", func(c *Config) { c.Tiers = []TierConfig{{CF: "MEDIAN", Step: 60, Rows: 10}} }, "tiers"},
		{"disordered tiers", func(c *Config) {
			c.Tiers = []TierConfig{
				{CF: "AVERAGE", Step: 1800, Rows: 10},
				{CF: "AVERAGE", Step: 60, Rows: 10},
			}
		}, "tiers"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateJoinsAllViolations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SourceRoot = ""
	cfg.TargetRoot = ""
	cfg.Workers = -2

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	for _, want := range []string{"source_root", "target_root", "workers"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected joined error to mention %q, got %v", want, err)
		}
	}
}

func TestScanMappings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mappings[0].Roster = "/etc/cluster/.vmlist"

	ms := cfg.ScanMappings()
	if len(ms) != len(cfg.Mappings) {
		t.Fatalf("expected %d mappings, got %d", len(cfg.Mappings), len(ms))
	}
	if ms[0].Roster != "/etc/cluster/.vmlist" {
		t.Errorf("expected roster carried over, got %q", ms[0].Roster)
	}
	if ms[2].Depth != 2 {
		t.Errorf("expected storage depth 2, got %d", ms[2].Depth)
	}
}

func TestApplyResourceRoot(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mappings[1].Roster = "/custom/.members"

	cfg.ApplyResourceRoot("/etc/cluster")

	if want := filepath.Join("/etc/cluster", defaults.VMRosterFile); cfg.Mappings[0].Roster != want {
		t.Errorf("expected vm roster %q, got %q", want, cfg.Mappings[0].Roster)
	}
	// Explicit roster wins over the convention.
	if cfg.Mappings[1].Roster != "/custom/.members" {
		t.Errorf("expected explicit roster kept, got %q", cfg.Mappings[1].Roster)
	}
	// Storage has no roster convention.
	if cfg.Mappings[2].Roster != "" {
		t.Errorf("expected no storage roster, got %q", cfg.Mappings[2].Roster)
	}
}
