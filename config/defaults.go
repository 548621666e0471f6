// Package config provides configuration defaults and utilities
// for the rrdmig tool.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via the YAML config file or command-line
// flags.
package config

// =============================================================================
// Worker Pool Defaults
// =============================================================================

const (
	// WorkerDivisor derives the automatic worker count from the CPU count.
	// Conversion is I/O bound on the source directory, so a quarter of the
	// cores keeps the disk busy without saturating it.
	// Override via config: workers / flag: -workers
	WorkerDivisor = 4

	// MaxAutoWorkers caps the automatic worker count. Beyond this the source
	// filesystem becomes the bottleneck on every fleet size measured.
	MaxAutoWorkers = 6

	// MinWorkers is the lower bound for any worker count.
	MinWorkers = 1
)

// =============================================================================
// Archive Defaults
// =============================================================================

const (
	// BaseStep is the primary data point step of the legacy producer,
	// in seconds. Carried into new archive headers.
	BaseStep = 60

	// RetiredSuffix is appended to a source file after successful
	// migration when retirement is enabled. Retired files are excluded
	// from rescans.
	RetiredSuffix = ".old"

	// TempPattern is the temp-file pattern used for atomic writes.
	// Temp files live in the destination directory so the final rename
	// never crosses filesystems.
	TempPattern = ".rrdmig-*.tmp"
)

// =============================================================================
// Reporting Defaults
// =============================================================================

const (
	// ProgressInterval is how many completed entities pass between
	// progress log lines when stderr is not a terminal.
	ProgressInterval = 100
)

// =============================================================================
// Source Tree Defaults
// =============================================================================

const (
	// DefaultSourceRoot is where the legacy producer keeps its archives.
	// Override via config: source_root / flag: -source
	DefaultSourceRoot = "/var/lib/perfhist/db"

	// DefaultTargetRoot is where migrated ring archives are written.
	// Override via config: target_root / flag: -target
	DefaultTargetRoot = "/var/lib/perfhist/ring"
)

// =============================================================================
// Roster Defaults
// =============================================================================

const (
	// VMRosterFile lists the guests the cluster still tracks. Guest
	// archives absent from it are stale and skipped by the scanner.
	VMRosterFile = ".vmlist"

	// NodeRosterFile lists the cluster members, same role as VMRosterFile
	// for node archives.
	NodeRosterFile = ".members"
)
