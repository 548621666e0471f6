package rrd

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ConsolidationFunc identifies the aggregation rule applied when finer
// samples collapse into a coarser row. The set is closed and fixed by the
// legacy format.
type ConsolidationFunc uint8

const (
	// CFAverage is the mean of the known contributing values.
	CFAverage ConsolidationFunc = iota
	// CFMin is the minimum of the known contributing values.
	CFMin
	// CFMax is the maximum of the known contributing values.
	CFMax
	// CFLast is the most recent known contributing value.
	CFLast
)

// String returns the canonical name of the consolidation function.
func (cf ConsolidationFunc) String() string {
	switch cf {
	case CFAverage:
		return "AVERAGE"
	case CFMin:
		return "MIN"
	case CFMax:
		return "MAX"
	case CFLast:
		return "LAST"
	default:
		return fmt.Sprintf("CF(%d)", uint8(cf))
	}
}

// Valid reports whether cf is one of the recognized functions.
func (cf ConsolidationFunc) Valid() bool {
	return cf <= CFLast
}

// ParseCF parses a consolidation function name (case-insensitive).
func ParseCF(s string) (ConsolidationFunc, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "AVERAGE", "AVG":
		return CFAverage, nil
	case "MIN":
		return CFMin, nil
	case "MAX":
		return CFMax, nil
	case "LAST":
		return CFLast, nil
	default:
		return 0, fmt.Errorf("unknown consolidation function %q", s)
	}
}

// AllConsolidationFuncs returns the recognized functions in tag order.
func AllConsolidationFuncs() []ConsolidationFunc {
	return []ConsolidationFunc{CFAverage, CFMin, CFMax, CFLast}
}

// DataSourceKind identifies how the legacy producer derived a data source's
// values. Counters and derives are pre-normalized to rates by the producer,
// so the kind is advisory during migration.
type DataSourceKind uint8

const (
	KindGauge DataSourceKind = iota
	KindCounter
	KindDerive
)

// String returns the canonical name of the kind.
func (k DataSourceKind) String() string {
	switch k {
	case KindGauge:
		return "GAUGE"
	case KindCounter:
		return "COUNTER"
	case KindDerive:
		return "DERIVE"
	default:
		return fmt.Sprintf("KIND(%d)", uint8(k))
	}
}

// Valid reports whether k is a recognized kind.
func (k DataSourceKind) Valid() bool {
	return k <= KindDerive
}

// MaxNameLen is the on-disk size of a data source name field. Longer names
// cannot be represented in either format.
const MaxNameLen = 32

// DataSource describes one tracked metric within an archive.
// Min and Max are advisory bounds; NaN means unbounded. They are never
// enforced during migration.
type DataSource struct {
	Name string
	Kind DataSourceKind
	Min  float64
	Max  float64
}

// Validate checks the constraints the binary formats can represent.
func (ds DataSource) Validate() error {
	if ds.Name == "" {
		return fmt.Errorf("data source name is empty")
	}
	if len(ds.Name) > MaxNameLen {
		return fmt.Errorf("data source name %q exceeds %d bytes", ds.Name, MaxNameLen)
	}
	if !ds.Kind.Valid() {
		return fmt.Errorf("data source %q has unknown kind %d", ds.Name, uint8(ds.Kind))
	}
	return nil
}

// RRADefinition describes one round-robin archive within a legacy file:
// its consolidation function, how many primary data points each row
// consolidates, the fixed row count, and the cursor position.
type RRADefinition struct {
	CF        ConsolidationFunc
	PdpPerRow uint32
	Rows      uint32
	Cursor    uint32
}

// RowStep returns the effective seconds covered by one row.
func (d RRADefinition) RowStep(baseStep uint32) int64 {
	return int64(baseStep) * int64(d.PdpPerRow)
}

// Span returns the retention span of the archive in seconds.
func (d RRADefinition) Span(baseStep uint32) int64 {
	return d.RowStep(baseStep) * int64(d.Rows)
}

// Ring returns the index mapping for the archive's circular buffer.
func (d RRADefinition) Ring() Ring {
	return Ring{Rows: d.Rows, Cursor: d.Cursor}
}

// Validate checks the descriptor invariants.
func (d RRADefinition) Validate() error {
	if !d.CF.Valid() {
		return fmt.Errorf("unknown consolidation function tag %d", uint8(d.CF))
	}
	if d.PdpPerRow == 0 {
		return fmt.Errorf("pdp_per_row is zero")
	}
	if d.Rows == 0 {
		return fmt.Errorf("row count is zero")
	}
	if d.Cursor >= d.Rows {
		return fmt.Errorf("cursor %d out of range for %d rows", d.Cursor, d.Rows)
	}
	return nil
}

// Sample is one consolidated measurement: the absolute end of its row
// interval in Unix seconds, and the value. An unknown value is NaN.
type Sample struct {
	Time  int64
	Value float64
}

// Known reports whether the sample carries a value.
func (s Sample) Known() bool {
	return !math.IsNaN(s.Value)
}

// Unknown returns the unknown-value marker.
func Unknown() float64 {
	return math.NaN()
}

// IsUnknown reports whether v is the unknown-value marker.
func IsUnknown(v float64) bool {
	return math.IsNaN(v)
}

// TierSpec describes one fixed-resolution tier of the ring format:
// a consolidation function, a row step in seconds, and a fixed row count.
// Step times Rows defines the tier's retention span.
type TierSpec struct {
	CF   ConsolidationFunc
	Step uint32
	Rows uint32
}

// Span returns the retention span of the tier in seconds.
func (t TierSpec) Span() int64 {
	return int64(t.Step) * int64(t.Rows)
}

// Duration returns the retention span as a time.Duration.
func (t TierSpec) Duration() time.Duration {
	return time.Duration(t.Span()) * time.Second
}

// String renders the tier in the conventional CF:step:rows form.
func (t TierSpec) String() string {
	return fmt.Sprintf("%s:%d:%d", t.CF, t.Step, t.Rows)
}

// Validate checks the tier invariants.
func (t TierSpec) Validate() error {
	if !t.CF.Valid() {
		return fmt.Errorf("unknown consolidation function tag %d", uint8(t.CF))
	}
	if t.Step == 0 {
		return fmt.Errorf("tier step is zero")
	}
	if t.Rows == 0 {
		return fmt.Errorf("tier row count is zero")
	}
	return nil
}

// DefaultTierLayout returns the target system's standard layout: four
// retention horizons (day, month, year, decade) at base step 60, kept once
// under AVERAGE and once under MAX.
func DefaultTierLayout() []TierSpec {
	return []TierSpec{
		{CF: CFAverage, Step: 60, Rows: 1440},
		{CF: CFAverage, Step: 1800, Rows: 1440},
		{CF: CFAverage, Step: 21600, Rows: 1440},
		{CF: CFAverage, Step: 604800, Rows: 570},
		{CF: CFMax, Step: 60, Rows: 1440},
		{CF: CFMax, Step: 1800, Rows: 1440},
		{CF: CFMax, Step: 21600, Rows: 1440},
		{CF: CFMax, Step: 604800, Rows: 570},
	}
}

// ValidateLayout checks a tier layout: every tier valid, ordered by
// consolidation function with strictly increasing steps within each
// function, no duplicates.
func ValidateLayout(tiers []TierSpec) error {
	if len(tiers) == 0 {
		return fmt.Errorf("tier layout is empty")
	}
	for i, t := range tiers {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("tier %d: %w", i, err)
		}
		if i == 0 {
			continue
		}
		prev := tiers[i-1]
		if t.CF < prev.CF {
			return fmt.Errorf("tier %d: consolidation function %s out of order", i, t.CF)
		}
		if t.CF == prev.CF && t.Step <= prev.Step {
			return fmt.Errorf("tier %d: step %d not increasing within %s tiers", i, t.Step, t.CF)
		}
	}
	return nil
}
