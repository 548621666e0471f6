package migrate

import (
	"fmt"
	"strings"
	"time"

	"github.com/perfhist/rrdmig/internal/errors"
)

// Result is the outcome of a single entity's conversion.
type Result struct {
	Entity   Entity
	Status   Status
	Written  bool
	Skipped  bool
	Err      error
	Duration time.Duration
}

// Failure records one failed entity together with its error kind, a stable
// string suitable for grouping and exit-code decisions.
type Failure struct {
	EntityID string
	Kind     string
	Err      error
}

// Report aggregates the outcome of a run. Every entity handed to Run is
// counted exactly once as migrated, skipped or failed.
type Report struct {
	Migrated    int
	Skipped     int
	Failed      int
	DryRun      bool
	Interrupted bool
	Failures    []Failure
	Elapsed     time.Duration
}

func (r *Report) add(res Result) {
	switch {
	case res.Status == StatusFailed:
		r.Failed++
		r.Failures = append(r.Failures, Failure{
			EntityID: res.Entity.ID,
			Kind:     errors.Kind(res.Err),
			Err:      res.Err,
		})
	case res.Skipped:
		r.Skipped++
	default:
		r.Migrated++
	}
}

// Total returns the number of entities the run processed in any state.
func (r *Report) Total() int {
	return r.Migrated + r.Skipped + r.Failed
}

// Summary renders the report for humans: one headline, one line per
// failure, sorted by entity.
func (r *Report) Summary() string {
	var b strings.Builder

	verb := "migrated"
	if r.DryRun {
		verb = "convertible (dry run)"
	}
	fmt.Fprintf(&b, "%d %s, %d skipped (already present), %d failed in %s\n",
		r.Migrated, verb, r.Skipped, r.Failed, r.Elapsed.Round(time.Millisecond))

	if r.Interrupted {
		b.WriteString("run interrupted; unprocessed entities were left untouched\n")
	}

	for _, f := range r.Failures {
		fmt.Fprintf(&b, "  %-40s %s: %v\n", f.EntityID, f.Kind, f.Err)
	}

	return b.String()
}
