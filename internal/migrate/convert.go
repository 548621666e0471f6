package migrate

import (
	"github.com/perfhist/rrdmig/internal/archive"
	"github.com/perfhist/rrdmig/internal/legacy"
	"github.com/perfhist/rrdmig/internal/resample"
	"github.com/perfhist/rrdmig/internal/rrd"
)

// Convert resamples a decoded legacy archive into a ring archive with the
// given tier layout.
//
// Each tier picks the best source round-robin area independently, so a
// coarse tier keeps drawing from a coarse consolidated area instead of a
// fine one that covers a fraction of its span. The base step, last-update
// timestamp and data source names carry over unchanged; tiers a source
// cannot cover at all are filled with unknowns rather than fabricated
// values.
func Convert(src *legacy.Archive, tiers []rrd.TierSpec) *archive.Archive {
	dsCount := len(src.DataSources)

	names := make([]string, dsCount)
	for i, ds := range src.DataSources {
		names[i] = ds.Name
	}

	sources := make([]resample.Source, len(src.RRAs))
	for i := range src.RRAs {
		sources[i] = resample.Source{
			CF:      src.RRAs[i].Def.CF,
			RowStep: src.RRAs[i].Def.RowStep(src.Header.Step),
			Rows:    src.RRAs[i].Def.Rows,
		}
	}

	out := &archive.Archive{
		Step:        src.Header.Step,
		LastUpdate:  src.Header.LastUpdate,
		DataSources: names,
		Tiers:       make([]archive.Tier, 0, len(tiers)),
	}

	for _, spec := range tiers {
		t := archive.Tier{
			Spec: spec,
			// Freshly written rings start with the newest row last, so
			// physical and logical order coincide.
			Cursor: spec.Rows - 1,
			Values: make([]float64, int(spec.Rows)*dsCount),
		}

		srcIdx, ok := resample.ChooseSource(sources, spec)
		if !ok {
			for i := range t.Values {
				t.Values[i] = rrd.Unknown()
			}
			out.Tiers = append(out.Tiers, t)
			continue
		}

		srcStep := sources[srcIdx].RowStep
		for ds := 0; ds < dsCount; ds++ {
			col := resample.Resample(src.Samples(srcIdx, ds), srcStep, spec, src.Header.LastUpdate)
			for row, v := range col {
				t.Values[row*dsCount+ds] = v
			}
		}
		out.Tiers = append(out.Tiers, t)
	}

	return out
}
