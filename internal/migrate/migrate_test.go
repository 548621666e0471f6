package migrate

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/perfhist/rrdmig/config"
	"github.com/perfhist/rrdmig/internal/archive"
	"github.com/perfhist/rrdmig/internal/errors"
	"github.com/perfhist/rrdmig/internal/legacy"
	"github.com/perfhist/rrdmig/internal/rrd"
	"github.com/perfhist/rrdmig/internal/rrdtest"
)

// testTiers keeps conversion fast: one fine and one coarse AVERAGE ring
// plus a coarse MAX ring.
func testTiers() []rrd.TierSpec {
	return []rrd.TierSpec{
		{CF: rrd.CFAverage, Step: 60, Rows: 8},
		{CF: rrd.CFAverage, Step: 240, Rows: 4},
		{CF: rrd.CFMax, Step: 240, Rows: 4},
	}
}

func runBatch(t *testing.T, opts Options, entities []Entity) *Report {
	t.Helper()
	m, err := New(opts)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	report, err := m.Run(context.Background(), entities)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	return report
}

func TestRunIsolatesFailures(t *testing.T) {
	source := t.TempDir()
	target := t.TempDir()

	var entities []Entity
	for i, id := range []string{"vm/101", "vm/102", "node/pve1", "storage/pve1/local"} {
		path := rrdtest.Write(t, source, id, rrdtest.Archive(i+1))
		entities = append(entities, Entity{ID: id, SourcePath: path})
	}
	entities = append(entities, Entity{ID: "vm/666", SourcePath: rrdtest.WriteTruncated(t, source, "vm/666")})

	report := runBatch(t, Options{TargetRoot: target, Workers: 2, Tiers: testTiers()}, entities)

	if report.Migrated != 4 || report.Skipped != 0 || report.Failed != 1 {
		t.Fatalf("expected 4 migrated, 0 skipped, 1 failed, got %d/%d/%d",
			report.Migrated, report.Skipped, report.Failed)
	}
	if len(report.Failures) != 1 {
		t.Fatalf("expected 1 failure record, got %d", len(report.Failures))
	}
	f := report.Failures[0]
	if f.EntityID != "vm/666" {
		t.Errorf("expected failure for vm/666, got %q", f.EntityID)
	}
	if f.Kind != errors.KindTruncated {
		t.Errorf("expected failure kind %q, got %q", errors.KindTruncated, f.Kind)
	}

	// The corrupt entity left no output, the good ones all decode.
	if _, err := os.Lstat(filepath.Join(target, "vm", "666")); !os.IsNotExist(err) {
		t.Errorf("expected no output for failed entity, stat err = %v", err)
	}
	for _, e := range entities[:4] {
		if _, err := archive.ReadFile(filepath.Join(target, filepath.FromSlash(e.ID))); err != nil {
			t.Errorf("output for %s does not decode: %v", e.ID, err)
		}
	}
}

func TestRunOutputMatchesSoloRun(t *testing.T) {
	source := t.TempDir()

	var entities []Entity
	for i, id := range []string{"vm/101", "vm/102", "vm/103"} {
		path := rrdtest.Write(t, source, id, rrdtest.Archive(i+1))
		entities = append(entities, Entity{ID: id, SourcePath: path})
	}

	batchTarget := t.TempDir()
	runBatch(t, Options{TargetRoot: batchTarget, Workers: 3, Tiers: testTiers()}, entities)

	soloTarget := t.TempDir()
	runBatch(t, Options{TargetRoot: soloTarget, Workers: 1, Tiers: testTiers()}, entities[1:2])

	batchBytes, err := os.ReadFile(filepath.Join(batchTarget, "vm", "102"))
	if err != nil {
		t.Fatal(err)
	}
	soloBytes, err := os.ReadFile(filepath.Join(soloTarget, "vm", "102"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(batchBytes, soloBytes) {
		t.Error("batch output differs from solo conversion of the same entity")
	}
}

func TestRunIsIdempotent(t *testing.T) {
	source := t.TempDir()
	target := t.TempDir()

	path := rrdtest.Write(t, source, "vm/101", rrdtest.Archive(1))
	entities := []Entity{{ID: "vm/101", SourcePath: path}}
	opts := Options{TargetRoot: target, Workers: 1, Tiers: testTiers()}

	first := runBatch(t, opts, entities)
	if first.Migrated != 1 {
		t.Fatalf("expected 1 migrated on first run, got %d", first.Migrated)
	}
	before, err := os.ReadFile(filepath.Join(target, "vm", "101"))
	if err != nil {
		t.Fatal(err)
	}

	second := runBatch(t, opts, entities)
	if second.Migrated != 0 || second.Skipped != 1 {
		t.Fatalf("expected second run skipped, got migrated=%d skipped=%d", second.Migrated, second.Skipped)
	}

	after, err := os.ReadFile(filepath.Join(target, "vm", "101"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Error("second run modified an existing target")
	}
}

func TestRunDryRunWritesNothing(t *testing.T) {
	source := t.TempDir()
	target := filepath.Join(t.TempDir(), "ring")

	path := rrdtest.Write(t, source, "vm/101", rrdtest.Archive(1))
	entities := []Entity{{ID: "vm/101", SourcePath: path}}

	report := runBatch(t, Options{TargetRoot: target, Workers: 1, DryRun: true, Tiers: testTiers()}, entities)

	if !report.DryRun {
		t.Error("expected report flagged as dry run")
	}
	if report.Migrated != 1 {
		t.Errorf("expected 1 convertible entity, got %d", report.Migrated)
	}
	// A dry run does not even create the target root.
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Errorf("expected target root absent after dry run, stat err = %v", err)
	}
}

func TestRunForceRewrites(t *testing.T) {
	source := t.TempDir()
	target := t.TempDir()

	rrdtest.Write(t, source, "vm/101", rrdtest.Archive(1))
	entities := []Entity{{ID: "vm/101", SourcePath: filepath.Join(source, "vm", "101")}}
	runBatch(t, Options{TargetRoot: target, Workers: 1, Tiers: testTiers()}, entities)

	// The producer kept updating the source; only force picks that up.
	newer := rrdtest.Archive(1)
	newer.Header.LastUpdate += 3600
	rrdtest.Write(t, source, "vm/101", newer)

	plain := runBatch(t, Options{TargetRoot: target, Workers: 1, Tiers: testTiers()}, entities)
	if plain.Skipped != 1 {
		t.Fatalf("expected skip without force, got %+v", plain)
	}

	forced := runBatch(t, Options{TargetRoot: target, Workers: 1, Force: true, Tiers: testTiers()}, entities)
	if forced.Migrated != 1 {
		t.Fatalf("expected rewrite with force, got %+v", forced)
	}

	out, err := archive.ReadFile(filepath.Join(target, "vm", "101"))
	if err != nil {
		t.Fatal(err)
	}
	if out.LastUpdate != rrdtest.LastUpdate+3600 {
		t.Errorf("expected rewritten last update %d, got %d", rrdtest.LastUpdate+3600, out.LastUpdate)
	}
}

func TestRunRetiresSource(t *testing.T) {
	source := t.TempDir()
	target := t.TempDir()

	path := rrdtest.Write(t, source, "vm/101", rrdtest.Archive(1))
	entities := []Entity{{ID: "vm/101", SourcePath: path}}

	report := runBatch(t, Options{TargetRoot: target, Workers: 1, RetireSource: true, Tiers: testTiers()}, entities)
	if report.Migrated != 1 {
		t.Fatalf("expected 1 migrated, got %+v", report)
	}

	if _, err := os.Lstat(path); !os.IsNotExist(err) {
		t.Errorf("expected source renamed away, stat err = %v", err)
	}
	if _, err := os.Lstat(path + config.RetiredSuffix); err != nil {
		t.Errorf("expected retired source at %s%s: %v", path, config.RetiredSuffix, err)
	}

	// Skipped entities keep their source: rerun against the retired tree.
	rrdtest.Write(t, source, "vm/101", rrdtest.Archive(1))
	second := runBatch(t, Options{TargetRoot: target, Workers: 1, RetireSource: true, Tiers: testTiers()}, entities)
	if second.Skipped != 1 {
		t.Fatalf("expected skip on second run, got %+v", second)
	}
	if _, err := os.Lstat(path); err != nil {
		t.Errorf("expected skipped source left in place: %v", err)
	}
}

// recordingHook collects entity ids handed to the decode hooks.
type recordingHook struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (h *recordingHook) record(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.ids = append(h.ids, id)
	return nil
}

func (h *recordingHook) Observe(id string, _ *legacy.Archive) error      { return h.record(id) }
func (h *recordingHook) WriteArchive(id string, _ *legacy.Archive) error { return h.record(id) }

func TestRunInvokesHooks(t *testing.T) {
	source := t.TempDir()

	var entities []Entity
	for i, id := range []string{"vm/101", "vm/102"} {
		path := rrdtest.Write(t, source, id, rrdtest.Archive(i+1))
		entities = append(entities, Entity{ID: id, SourcePath: path})
	}

	vrf := &recordingHook{}
	sink := &recordingHook{}
	opts := Options{
		TargetRoot: t.TempDir(),
		Workers:    2,
		DryRun:     true,
		Tiers:      testTiers(),
		Verifier:   vrf,
		SampleSink: sink,
	}
	runBatch(t, opts, entities)

	if len(vrf.ids) != 2 || len(sink.ids) != 2 {
		t.Errorf("expected both hooks to see 2 entities, got %d and %d", len(vrf.ids), len(sink.ids))
	}
}

func TestRunHookFailureFailsEntity(t *testing.T) {
	source := t.TempDir()
	path := rrdtest.Write(t, source, "vm/101", rrdtest.Archive(1))
	entities := []Entity{{ID: "vm/101", SourcePath: path}}

	vrf := &recordingHook{err: os.ErrClosed}
	report := runBatch(t, Options{TargetRoot: t.TempDir(), Workers: 1, DryRun: true, Tiers: testTiers(), Verifier: vrf}, entities)

	if report.Failed != 1 {
		t.Fatalf("expected 1 failed entity, got %+v", report)
	}
	if report.Failures[0].Kind != errors.KindInternal {
		t.Errorf("expected kind %q, got %q", errors.KindInternal, report.Failures[0].Kind)
	}
}

func TestRunPreflightFailure(t *testing.T) {
	// The target root path is occupied by a plain file.
	target := filepath.Join(t.TempDir(), "ring")
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := New(Options{TargetRoot: target, Workers: 1, Tiers: testTiers()})
	if err != nil {
		t.Fatal(err)
	}
	_, err = m.Run(context.Background(), nil)
	if err == nil {
		t.Fatal("expected preflight error, got nil")
	}
	if !errors.Is(err, errors.ErrWriteFailed) {
		t.Errorf("expected ErrWriteFailed, got %v", err)
	}
}

func TestRunCancelledContext(t *testing.T) {
	source := t.TempDir()
	target := t.TempDir()

	var entities []Entity
	for i, id := range []string{"vm/101", "vm/102", "vm/103"} {
		path := rrdtest.Write(t, source, id, rrdtest.Archive(i+1))
		entities = append(entities, Entity{ID: id, SourcePath: path})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m, err := New(Options{TargetRoot: target, Workers: 2, Tiers: testTiers()})
	if err != nil {
		t.Fatal(err)
	}
	report, err := m.Run(ctx, entities)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if !report.Interrupted {
		t.Error("expected report flagged as interrupted")
	}
	if report.Total() != 0 {
		t.Errorf("expected no entities processed under a cancelled context, got %d", report.Total())
	}
	// Whatever exists in the target must be complete; partial files never
	// survive.
	for _, e := range entities {
		path := filepath.Join(target, filepath.FromSlash(e.ID))
		if _, statErr := os.Lstat(path); statErr == nil {
			if _, decErr := archive.ReadFile(path); decErr != nil {
				t.Errorf("output %s exists but does not decode: %v", e.ID, decErr)
			}
		}
	}
}

func TestRunReportsProgress(t *testing.T) {
	source := t.TempDir()

	var entities []Entity
	for i, id := range []string{"vm/101", "vm/102", "vm/103"} {
		path := rrdtest.Write(t, source, id, rrdtest.Archive(i+1))
		entities = append(entities, Entity{ID: id, SourcePath: path})
	}

	var mu sync.Mutex
	var calls []int
	opts := Options{
		TargetRoot: t.TempDir(),
		Workers:    2,
		DryRun:     true,
		Tiers:      testTiers(),
		Progress: func(done, total int) {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, done)
			if total != 3 {
				t.Errorf("expected total 3, got %d", total)
			}
		},
	}
	runBatch(t, opts, entities)

	if len(calls) != 3 {
		t.Fatalf("expected 3 progress calls, got %d", len(calls))
	}
	for i, done := range calls {
		if done != i+1 {
			t.Errorf("expected progress call %d to report %d done, got %d", i, i+1, done)
		}
	}
}

func TestConvertDownsamples(t *testing.T) {
	src := &legacy.Archive{
		Header:      legacy.Header{Version: legacy.Version, Step: 60, LastUpdate: rrdtest.LastUpdate},
		DataSources: []rrd.DataSource{{Name: "cpu", Kind: rrd.KindGauge}},
	}
	rra := legacy.NewRRA(rrd.RRADefinition{CF: rrd.CFAverage, PdpPerRow: 1, Rows: 4, Cursor: 3}, 1)
	for k := uint32(0); k < 4; k++ {
		rra.SetValueAt(k, 0, float64(k+1))
	}
	src.RRAs = []legacy.RRA{rra}

	out := Convert(src, []rrd.TierSpec{{CF: rrd.CFAverage, Step: 120, Rows: 2}})

	if out.Step != 60 || out.LastUpdate != rrdtest.LastUpdate {
		t.Errorf("header not carried over: step=%d last=%d", out.Step, out.LastUpdate)
	}
	if len(out.DataSources) != 1 || out.DataSources[0] != "cpu" {
		t.Errorf("unexpected data sources: %v", out.DataSources)
	}
	if len(out.Tiers) != 1 {
		t.Fatalf("expected 1 tier, got %d", len(out.Tiers))
	}
	if out.Tiers[0].Cursor != 1 {
		t.Errorf("expected cursor rows-1 = 1, got %d", out.Tiers[0].Cursor)
	}

	if got := out.ValueAt(0, 0, 0); got != 1.5 {
		t.Errorf("expected first row 1.5, got %v", got)
	}
	if got := out.ValueAt(0, 1, 0); got != 3.5 {
		t.Errorf("expected second row 3.5, got %v", got)
	}
}

func TestConvertPrefersMatchingConsolidation(t *testing.T) {
	src := &legacy.Archive{
		Header:      legacy.Header{Version: legacy.Version, Step: 60, LastUpdate: rrdtest.LastUpdate},
		DataSources: []rrd.DataSource{{Name: "cpu", Kind: rrd.KindGauge}},
	}
	fine := legacy.NewRRA(rrd.RRADefinition{CF: rrd.CFAverage, PdpPerRow: 1, Rows: 8, Cursor: 7}, 1)
	for k := uint32(0); k < 8; k++ {
		fine.SetValueAt(k, 0, float64(k+1))
	}
	peaks := legacy.NewRRA(rrd.RRADefinition{CF: rrd.CFMax, PdpPerRow: 4, Rows: 2, Cursor: 1}, 1)
	peaks.SetValueAt(0, 0, 100)
	peaks.SetValueAt(1, 0, 200)
	src.RRAs = []legacy.RRA{fine, peaks}

	out := Convert(src, []rrd.TierSpec{{CF: rrd.CFMax, Step: 240, Rows: 2}})

	// The MAX tier must draw from the MAX ring, not re-consolidate the
	// finer AVERAGE ring.
	if got := out.ValueAt(0, 0, 0); got != 100 {
		t.Errorf("expected 100 from the MAX ring, got %v", got)
	}
	if got := out.ValueAt(0, 1, 0); got != 200 {
		t.Errorf("expected 200 from the MAX ring, got %v", got)
	}
}

func TestConvertWithoutSources(t *testing.T) {
	src := &legacy.Archive{
		Header:      legacy.Header{Version: legacy.Version, Step: 60, LastUpdate: rrdtest.LastUpdate},
		DataSources: []rrd.DataSource{{Name: "cpu", Kind: rrd.KindGauge}},
	}

	out := Convert(src, []rrd.TierSpec{{CF: rrd.CFAverage, Step: 60, Rows: 4}})

	for k := uint32(0); k < 4; k++ {
		if v := out.ValueAt(0, k, 0); !math.IsNaN(v) {
			t.Errorf("expected unknown cell at row %d, got %v", k, v)
		}
	}
}

func TestAutoWorkersBounds(t *testing.T) {
	n := AutoWorkers()
	if n < config.MinWorkers {
		t.Errorf("expected at least %d worker, got %d", config.MinWorkers, n)
	}
	if n > config.MaxAutoWorkers {
		t.Errorf("expected at most %d workers, got %d", config.MaxAutoWorkers, n)
	}
}

func TestReportSummary(t *testing.T) {
	r := &Report{Migrated: 4, Skipped: 2, Failed: 1, DryRun: true}
	r.Failures = append(r.Failures, Failure{EntityID: "vm/666", Kind: errors.KindTruncated, Err: errors.ErrTruncated})

	s := r.Summary()
	for _, want := range []string{"4 convertible (dry run)", "2 skipped", "1 failed", "vm/666", "truncated"} {
		if !strings.Contains(s, want) {
			t.Errorf("expected summary to contain %q, got:\n%s", want, s)
		}
	}

	r.DryRun = false
	r.Interrupted = true
	s = r.Summary()
	if !strings.Contains(s, "4 migrated") {
		t.Errorf("expected migrate verb in summary, got:\n%s", s)
	}
	if !strings.Contains(s, "interrupted") {
		t.Errorf("expected interruption notice in summary, got:\n%s", s)
	}
}

func TestStatusString(t *testing.T) {
	if StatusDone.String() != "done" || StatusFailed.String() != "failed" {
		t.Error("unexpected status strings")
	}
	if Status(42).String() != "status(42)" {
		t.Errorf("unexpected fallback status string: %s", Status(42).String())
	}
}
