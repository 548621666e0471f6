// rrdmig converts legacy round-robin archives to the ring format.
//
// By default it only reports what a migration would do; nothing is written
// without -migrate. Exit code 0 means success (a dry run always succeeds if
// the scan does), 1 a fatal or interrupted run, 2 a completed migration
// with per-entity failures left behind.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	defaults "github.com/perfhist/rrdmig/config"
	"github.com/perfhist/rrdmig/internal/config"
	"github.com/perfhist/rrdmig/internal/export"
	"github.com/perfhist/rrdmig/internal/logging"
	"github.com/perfhist/rrdmig/internal/migrate"
	"github.com/perfhist/rrdmig/internal/scan"
	"github.com/perfhist/rrdmig/internal/verify"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// CLI flags
	cfgPath := flag.String("config", "rrdmig.yaml", "config file path")
	source := flag.String("source", "", "source root (overrides config)")
	target := flag.String("target", "", "target root (overrides config)")
	resources := flag.String("resources", "", "directory holding the cluster rosters (.vmlist, .members)")
	doMigrate := flag.Bool("migrate", false, "write ring archives; without this flag nothing is modified")
	force := flag.Bool("force", false, "re-convert entities whose target already exists")
	retire := flag.Bool("retire", false, "rename migrated sources to *"+defaults.RetiredSuffix)
	workers := flag.Int("workers", 0, "worker count (0 = derive from CPU count)")
	verifyFlag := flag.Bool("verify", false, "print per-series distribution summaries")
	dump := flag.String("dump", "", "export decoded samples to a Parquet file")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	logJSON := flag.Bool("log-json", false, "log as JSON")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("rrdmig", Version)
		return 0
	}

	// Load config
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = config.DefaultConfig()
		} else {
			fmt.Fprintf(os.Stderr, "rrdmig: %v\n", err)
			return 1
		}
	}

	// CLI overrides
	if *source != "" {
		cfg.SourceRoot = *source
	}
	if *target != "" {
		cfg.TargetRoot = *target
	}
	if *workers != 0 {
		cfg.Workers = *workers
	}
	if *force {
		cfg.Force = true
	}
	if *retire {
		cfg.RetireSource = true
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logJSON {
		cfg.Logging.JSON = true
	}
	if *resources != "" {
		cfg.ApplyResourceRoot(*resources)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "rrdmig: invalid configuration: %v\n", err)
		return 1
	}

	level, _ := logging.ParseLevel(cfg.Logging.Level)
	logging.Init(level, cfg.Logging.JSON)
	log := logging.Component("main")

	log.Info("rrdmig starting",
		"version", Version,
		"source", cfg.SourceRoot,
		"target", cfg.TargetRoot,
		"dry_run", !*doMigrate)

	// =========================================================================
	// Discover entities
	// =========================================================================

	if err := scan.CheckRoot(cfg.SourceRoot); err != nil {
		log.Error("source root check failed", "error", err)
		return 1
	}
	entities, err := scan.Scan(cfg.SourceRoot, cfg.ScanMappings())
	if err != nil {
		log.Error("scan failed", "error", err)
		return 1
	}
	if len(entities) == 0 {
		fmt.Printf("no legacy archives found under %s\n", cfg.SourceRoot)
		return 0
	}
	log.Info("scan complete", "entities", len(entities))

	// =========================================================================
	// Assemble the run
	// =========================================================================

	tiers, err := cfg.TierLayout()
	if err != nil {
		// Validate caught this already; belt and braces for overrides.
		log.Error("tier layout invalid", "error", err)
		return 1
	}

	opts := migrate.Options{
		TargetRoot:   cfg.TargetRoot,
		Workers:      cfg.Workers,
		DryRun:       !*doMigrate,
		Force:        cfg.Force,
		RetireSource: cfg.RetireSource,
		Tiers:        tiers,
	}

	var vrf *verify.Verifier
	if *verifyFlag {
		vrf, err = verify.New(verify.DefaultAccuracy)
		if err != nil {
			log.Error("verifier setup failed", "error", err)
			return 1
		}
		opts.Verifier = vrf
	}

	var sink *export.Writer
	if *dump != "" {
		sink, err = export.NewWriter(*dump)
		if err != nil {
			log.Error("dump setup failed", "error", err)
			return 1
		}
		opts.SampleSink = sink
	}

	progress, finishProgress := progressFunc()
	opts.Progress = progress

	m, err := migrate.New(opts)
	if err != nil {
		log.Error("invalid migration options", "error", err)
		return 1
	}

	// =========================================================================
	// Run
	// =========================================================================

	// A signal stops the run between entities; in-flight conversions finish
	// their atomic writes first.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !*doMigrate {
		fmt.Println("dry run: no files will be written; use -migrate to convert")
	}

	report, runErr := m.Run(ctx, entities)

	var dumpErr error
	if sink != nil {
		dumpErr = sink.Close()
	}

	finishProgress()

	if runErr != nil {
		log.Error("run aborted", "error", runErr)
		return 1
	}

	// =========================================================================
	// Report
	// =========================================================================

	fmt.Print(report.Summary())
	if vrf != nil {
		fmt.Print(vrf.Report())
	}
	if sink != nil {
		if dumpErr != nil {
			log.Error("dump finalize failed", "error", dumpErr)
			return 1
		}
		fmt.Printf("dumped %d samples to %s\n", sink.RowCount(), sink.Path())
	}

	switch {
	case report.Interrupted:
		return 1
	case report.Failed > 0 && !report.DryRun:
		return 2
	default:
		return 0
	}
}

// progressFunc returns the per-entity progress callback and a finisher to
// run once the run ends. On a terminal the counter updates in place on
// stderr; otherwise a log line appears every ProgressInterval entities so
// batch logs stay readable.
func progressFunc() (func(done, total int), func()) {
	if term.IsTerminal(int(os.Stderr.Fd())) {
		updated := false
		return func(done, total int) {
				updated = true
				fmt.Fprintf(os.Stderr, "\rprocessed %d/%d entities", done, total)
			}, func() {
				if updated {
					fmt.Fprintln(os.Stderr)
				}
			}
	}

	log := logging.Component("progress")
	return func(done, total int) {
		if done%defaults.ProgressInterval == 0 || done == total {
			log.Info("processed", "done", done, "total", total)
		}
	}, func() {}
}
