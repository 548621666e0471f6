package resample

import "github.com/perfhist/rrdmig/internal/rrd"

// Source describes one candidate round-robin archive for tier selection:
// its consolidation function, effective row step in seconds, and row count.
type Source struct {
	CF      rrd.ConsolidationFunc
	RowStep int64
	Rows    uint32
}

// Span returns the history the source covers, in seconds.
func (s Source) Span() int64 {
	return s.RowStep * int64(s.Rows)
}

// ChooseSource picks which source feeds a target tier.
//
// Candidates are narrowed in three passes: sources whose consolidation
// function matches the tier's, then AVERAGE sources, then everything.
// Within the surviving candidates the finest row step whose span covers the
// tier's span wins; if nothing covers it, the longest span (ties broken by
// the finer step). Returns the index into sources and false when sources is
// empty.
func ChooseSource(sources []Source, tier rrd.TierSpec) (int, bool) {
	if len(sources) == 0 {
		return 0, false
	}

	match := func(s Source) bool { return s.CF == tier.CF }
	fallback := func(s Source) bool { return s.CF == rrd.CFAverage }
	any := func(Source) bool { return true }

	for _, accept := range []func(Source) bool{match, fallback, any} {
		best := -1
		for i, s := range sources {
			if !accept(s) {
				continue
			}
			if best < 0 || better(s, sources[best], tier.Span()) {
				best = i
			}
		}
		if best >= 0 {
			return best, true
		}
	}
	return 0, false
}

// better reports whether a should be preferred over b for a tier spanning
// span seconds.
func better(a, b Source, span int64) bool {
	aCovers := a.Span() >= span
	bCovers := b.Span() >= span
	if aCovers != bCovers {
		return aCovers
	}
	if aCovers {
		return a.RowStep < b.RowStep
	}
	if a.Span() != b.Span() {
		return a.Span() > b.Span()
	}
	return a.RowStep < b.RowStep
}
