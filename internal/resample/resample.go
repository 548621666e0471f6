// Package resample converts an arbitrary-step sample stream into the fixed
// time-resolution tiers of the ring format.
//
// Each target row aggregates the source samples whose interval midpoint
// falls inside the target interval, under the tier's consolidation
// function. Rows with no known contributors stay unknown; migrated history
// is never fabricated.
package resample

import (
	"math"

	"github.com/perfhist/rrdmig/internal/rrd"
)

// Resample fills one target tier column from one source sample stream.
//
// src must be in chronological order with interval-end timestamps, as
// produced by the legacy decoder. srcStep is the source row step in
// seconds. The returned slice holds tier.Rows values in logical order
// (0 = oldest); the newest row's interval ends at lastUpdate.
func Resample(src []rrd.Sample, srcStep int64, tier rrd.TierSpec, lastUpdate int64) []float64 {
	rows := int(tier.Rows)
	folds := make([]fold, rows)

	// All interval comparisons run in half-second units so that odd source
	// steps keep their exact midpoints.
	step2 := 2 * int64(tier.Step)
	start2 := 2*lastUpdate - step2*int64(rows)
	end2 := 2 * lastUpdate

	for _, s := range src {
		if !s.Known() {
			continue
		}
		mid2 := 2*s.Time - srcStep
		if mid2 <= start2 || mid2 > end2 {
			continue
		}
		k := (mid2 - start2 - 1) / step2
		folds[k].add(s.Value, s.Time)
	}

	out := make([]float64, rows)
	for k := range folds {
		out[k] = folds[k].value(tier.CF)
	}
	return out
}

// fold accumulates the known contributors of one target row. One
// aggregation strategy exists per consolidation function tag; the set is
// closed, so dispatch is a switch, not an interface.
type fold struct {
	count    int64
	sum      float64
	min      float64
	max      float64
	last     float64
	lastTime int64
}

func (f *fold) add(v float64, t int64) {
	if f.count == 0 {
		f.min = v
		f.max = v
		f.last = v
		f.lastTime = t
	} else {
		if v < f.min {
			f.min = v
		}
		if v > f.max {
			f.max = v
		}
		if t >= f.lastTime {
			f.last = v
			f.lastTime = t
		}
	}
	f.sum += v
	f.count++
}

// value collapses the fold under cf. A row with zero known contributors is
// unknown, never zero.
func (f *fold) value(cf rrd.ConsolidationFunc) float64 {
	if f.count == 0 {
		return rrd.Unknown()
	}
	switch cf {
	case rrd.CFAverage:
		return f.sum / float64(f.count)
	case rrd.CFMin:
		return f.min
	case rrd.CFMax:
		return f.max
	case rrd.CFLast:
		return f.last
	default:
		return math.NaN()
	}
}
