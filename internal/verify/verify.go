// Package verify builds distribution summaries of decoded archives.
//
// During a dry run the summaries give the operator a cheap plausibility
// check before committing: per data source and consolidation function, the
// count of known and unknown samples, the value range and sketch-backed
// percentiles. Only the finest ring of each consolidation function is
// folded so coarser rings do not recount the same history.
package verify

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/perfhist/rrdmig/internal/legacy"
	"github.com/perfhist/rrdmig/internal/rrd"
)

// DefaultAccuracy is the relative accuracy of the percentile sketches.
// One percent keeps the sketches small while the percentiles stay usable
// for plausibility checks.
const DefaultAccuracy = 0.01

// Verifier folds decoded archives into per-series summaries. It is shared
// by all conversion workers of a run and serializes internally.
type Verifier struct {
	mu       sync.Mutex
	accuracy float64
	series   map[string]*summary
	entities int
}

// summary accumulates one (data source, consolidation function) series.
type summary struct {
	known   int64
	unknown int64
	sum     float64
	min     float64
	max     float64
	sketch  *ddsketch.DDSketch
}

// New returns a Verifier with the given sketch accuracy; 0 selects
// DefaultAccuracy.
func New(accuracy float64) (*Verifier, error) {
	if accuracy == 0 {
		accuracy = DefaultAccuracy
	}
	// Fail on a bad accuracy here, not on the first archive mid-run.
	if _, err := ddsketch.NewDefaultDDSketch(accuracy); err != nil {
		return nil, fmt.Errorf("percentile sketch: %w", err)
	}
	return &Verifier{
		accuracy: accuracy,
		series:   make(map[string]*summary),
	}, nil
}

func newSummary(accuracy float64) *summary {
	sketch, _ := ddsketch.NewDefaultDDSketch(accuracy)
	return &summary{sketch: sketch}
}

func (s *summary) add(v float64) {
	if math.IsNaN(v) {
		s.unknown++
		return
	}
	if s.known == 0 {
		s.min = v
		s.max = v
	} else {
		if v < s.min {
			s.min = v
		}
		if v > s.max {
			s.max = v
		}
	}
	s.known++
	s.sum += v
	s.sketch.Add(v)
}

// Observe folds one decoded archive into the running summaries. It
// implements the orchestrator's Verifier hook.
func (v *Verifier) Observe(entityID string, a *legacy.Archive) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.entities++
	for _, idx := range finestPerCF(a) {
		def := a.RRAs[idx].Def
		for ds := range a.DataSources {
			key := a.DataSources[ds].Name + "/" + def.CF.String()
			s := v.series[key]
			if s == nil {
				s = newSummary(v.accuracy)
				v.series[key] = s
			}
			for _, sample := range a.Samples(idx, ds) {
				s.add(sample.Value)
			}
		}
	}
	return nil
}

// finestPerCF returns, for each consolidation function present, the index
// of the ring with the smallest row step, in stable order.
func finestPerCF(a *legacy.Archive) []int {
	best := make(map[rrd.ConsolidationFunc]int)
	for i := range a.RRAs {
		def := a.RRAs[i].Def
		cur, ok := best[def.CF]
		if !ok || def.RowStep(a.Header.Step) < a.RRAs[cur].Def.RowStep(a.Header.Step) {
			best[def.CF] = i
		}
	}
	picks := make([]int, 0, len(best))
	for _, i := range best {
		picks = append(picks, i)
	}
	sort.Ints(picks)
	return picks
}

// Series is the finished summary of one data source under one
// consolidation function.
type Series struct {
	// Key is "<data source>/<consolidation function>".
	Key     string
	Known   int64
	Unknown int64
	Min     float64
	Max     float64
	Mean    float64
	P50     float64
	P95     float64
	P99     float64
}

// Entities returns how many archives have been folded.
func (v *Verifier) Entities() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.entities
}

// Summaries returns the per-series results sorted by key.
func (v *Verifier) Summaries() []Series {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]Series, 0, len(v.series))
	for key, s := range v.series {
		series := Series{
			Key:     key,
			Known:   s.known,
			Unknown: s.unknown,
		}
		if s.known > 0 {
			series.Min = s.min
			series.Max = s.max
			series.Mean = s.sum / float64(s.known)
			series.P50, _ = s.sketch.GetValueAtQuantile(0.50)
			series.P95, _ = s.sketch.GetValueAtQuantile(0.95)
			series.P99, _ = s.sketch.GetValueAtQuantile(0.99)
		}
		out = append(out, series)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Report renders the summaries for humans, one line per series.
func (v *Verifier) Report() string {
	var b strings.Builder

	summaries := v.Summaries()
	fmt.Fprintf(&b, "verified %d archives, %d series\n", v.Entities(), len(summaries))
	for _, s := range summaries {
		if s.Known == 0 {
			fmt.Fprintf(&b, "  %-32s known=0 unknown=%d\n", s.Key, s.Unknown)
			continue
		}
		fmt.Fprintf(&b, "  %-32s known=%d unknown=%d min=%.4g mean=%.4g max=%.4g p50=%.4g p95=%.4g p99=%.4g\n",
			s.Key, s.Known, s.Unknown, s.Min, s.Mean, s.Max, s.P50, s.P95, s.P99)
	}
	return b.String()
}
