// Package migrate orchestrates the conversion of legacy archives into ring
// archives: a bounded worker pool runs the read, resample, write pipeline
// per entity, failures stay isolated to their entity, and the outcome is
// folded into a Report by message passing.
package migrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/perfhist/rrdmig/config"
	"github.com/perfhist/rrdmig/internal/archive"
	"github.com/perfhist/rrdmig/internal/errors"
	"github.com/perfhist/rrdmig/internal/legacy"
	"github.com/perfhist/rrdmig/internal/logging"
	"github.com/perfhist/rrdmig/internal/rrd"
)

var log = logging.Component("migrate")

// Entity is one archive to convert: its identifier, which doubles as the
// relative path under both roots, and the legacy source file.
type Entity struct {
	ID         string
	SourcePath string
}

// Status tracks an entity through the conversion pipeline.
type Status uint8

const (
	StatusPending Status = iota
	StatusReading
	StatusResampling
	StatusWriting
	StatusDone
	StatusFailed
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusReading:
		return "reading"
	case StatusResampling:
		return "resampling"
	case StatusWriting:
		return "writing"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Verifier folds decoded archives into running distribution summaries.
// Implementations must be safe for concurrent use by workers.
type Verifier interface {
	Observe(entityID string, a *legacy.Archive) error
}

// SampleSink receives every decoded archive for offline inspection.
// Implementations must be safe for concurrent use by workers.
type SampleSink interface {
	WriteArchive(entityID string, a *legacy.Archive) error
}

// Options configures a migration run.
type Options struct {
	// TargetRoot is the directory ring archives are written under.
	TargetRoot string

	// Workers is the worker pool size; 0 picks AutoWorkers().
	Workers int

	// DryRun reads and resamples but never writes.
	DryRun bool

	// Force re-converts entities whose target already exists.
	Force bool

	// RetireSource renames each migrated source to <path>.old so the
	// legacy producer stops updating it.
	RetireSource bool

	// Tiers overrides the target layout; nil uses rrd.DefaultTierLayout.
	Tiers []rrd.TierSpec

	// Verifier, when set, observes every decoded archive.
	Verifier Verifier

	// SampleSink, when set, receives every decoded archive.
	SampleSink SampleSink

	// Progress, when set, is called after every completed entity with the
	// running and total counts. Called from a single goroutine.
	Progress func(done, total int)
}

// AutoWorkers returns the default worker count for this host: a quarter of
// the cores, clamped to [1, 6]. Conversion is disk bound, not CPU bound.
func AutoWorkers() int {
	n := runtime.NumCPU() / config.WorkerDivisor
	if n < config.MinWorkers {
		n = config.MinWorkers
	}
	if n > config.MaxAutoWorkers {
		n = config.MaxAutoWorkers
	}
	return n
}

// Migrator converts batches of entities. Entities share no state, so one
// Migrator may be reused across runs.
type Migrator struct {
	opts    Options
	tiers   []rrd.TierSpec
	workers int
}

// New validates the options and returns a Migrator.
func New(opts Options) (*Migrator, error) {
	if opts.TargetRoot == "" {
		return nil, fmt.Errorf("target root is empty")
	}
	tiers := opts.Tiers
	if len(tiers) == 0 {
		tiers = rrd.DefaultTierLayout()
	}
	if err := rrd.ValidateLayout(tiers); err != nil {
		return nil, fmt.Errorf("tier layout: %w", err)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = AutoWorkers()
	}
	return &Migrator{opts: opts, tiers: tiers, workers: workers}, nil
}

// Run converts every entity and returns the aggregated report.
//
// Per-entity failures are recorded in the report and never abort the run;
// only pre-flight failures (target root not creatable or writable) return
// an error. Cancellation is honored between entities: an entity that has
// started converting always finishes its write or never starts it, so the
// report is exact even on an interrupted run.
func (m *Migrator) Run(ctx context.Context, entities []Entity) (*Report, error) {
	start := time.Now()

	if err := m.preflight(); err != nil {
		return nil, err
	}

	log.Info("starting run",
		"entities", len(entities),
		"workers", m.workers,
		"dry_run", m.opts.DryRun,
		"force", m.opts.Force,
		"target", m.opts.TargetRoot)

	jobs := make(chan Entity)
	results := make(chan Result)

	go func() {
		defer close(jobs)
		for _, e := range entities {
			select {
			case <-ctx.Done():
				return
			case jobs <- e:
			}
		}
	}()

	var g errgroup.Group
	for i := 0; i < m.workers; i++ {
		g.Go(func() error {
			for e := range jobs {
				// Cancellation is only observed here, between entities.
				select {
				case <-ctx.Done():
					return nil
				default:
				}
				results <- m.convertEntity(e)
			}
			return nil
		})
	}

	go func() {
		g.Wait()
		close(results)
	}()

	report := &Report{DryRun: m.opts.DryRun}
	done := 0
	for res := range results {
		report.add(res)
		done++
		if res.Status == StatusFailed {
			log.Warn("entity failed",
				"entity", res.Entity.ID,
				"kind", errors.Kind(res.Err),
				"error", res.Err)
		} else {
			log.Debug("entity done",
				"entity", res.Entity.ID,
				"written", res.Written,
				"skipped", res.Skipped,
				"elapsed", res.Duration)
		}
		if m.opts.Progress != nil {
			m.opts.Progress(done, len(entities))
		}
	}

	report.Interrupted = ctx.Err() != nil
	report.Elapsed = time.Since(start)
	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].EntityID < report.Failures[j].EntityID
	})

	log.Info("run complete",
		"migrated", report.Migrated,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"interrupted", report.Interrupted,
		"elapsed", report.Elapsed)

	return report, nil
}

// preflight verifies the target root before any entity is touched. These
// are the only fatal failures: retrying per entity cannot fix a read-only
// or missing destination filesystem.
func (m *Migrator) preflight() error {
	if m.opts.DryRun {
		return nil
	}
	if err := os.MkdirAll(m.opts.TargetRoot, 0755); err != nil {
		return errors.Tagf(errors.ErrWriteFailed, err, "create target root %s", m.opts.TargetRoot)
	}
	probe, err := os.CreateTemp(m.opts.TargetRoot, config.TempPattern)
	if err != nil {
		return errors.Tagf(errors.ErrWriteFailed, err, "target root %s not writable", m.opts.TargetRoot)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return nil
}

// convertEntity runs one entity through the pipeline. All failures are
// returned in the Result, never propagated.
func (m *Migrator) convertEntity(e Entity) Result {
	start := time.Now()
	res := Result{Entity: e, Status: StatusPending}

	finish := func() Result {
		res.Duration = time.Since(start)
		return res
	}
	fail := func(err error) Result {
		res.Status = StatusFailed
		res.Err = err
		return finish()
	}

	targetPath := filepath.Join(m.opts.TargetRoot, filepath.FromSlash(e.ID))

	// Idempotence probe: an already-present target skips without decoding
	// the source at all.
	if !m.opts.Force {
		if _, err := os.Lstat(targetPath); err == nil {
			res.Status = StatusDone
			res.Skipped = true
			return finish()
		}
	}

	res.Status = StatusReading
	src, err := legacy.ReadFile(e.SourcePath)
	if err != nil {
		return fail(err)
	}

	if m.opts.Verifier != nil {
		if err := m.opts.Verifier.Observe(e.ID, src); err != nil {
			return fail(fmt.Errorf("verify %s: %w", e.ID, err))
		}
	}
	if m.opts.SampleSink != nil {
		if err := m.opts.SampleSink.WriteArchive(e.ID, src); err != nil {
			return fail(fmt.Errorf("export %s: %w", e.ID, err))
		}
	}

	res.Status = StatusResampling
	out := Convert(src, m.tiers)

	if m.opts.DryRun {
		res.Status = StatusDone
		return finish()
	}

	res.Status = StatusWriting
	written, err := archive.Write(targetPath, out, m.opts.Force)
	if err != nil {
		return fail(err)
	}
	res.Written = written
	if !written {
		// The target appeared between the probe and the write.
		res.Skipped = true
	}

	if m.opts.RetireSource && written {
		if err := os.Rename(e.SourcePath, e.SourcePath+config.RetiredSuffix); err != nil {
			return fail(errors.Tagf(errors.ErrRenameFailed, err, "retire %s", e.SourcePath))
		}
	}

	res.Status = StatusDone
	return finish()
}
