// Package rrdtest builds synthetic legacy archives for tests.
//
// Tests across the pipeline need the same fixture: a small legacy archive
// with deterministic ring contents, written to disk. Keeping the builders
// here keeps the per-package tests about behavior, not byte plumbing.
package rrdtest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/perfhist/rrdmig/config"
	"github.com/perfhist/rrdmig/internal/legacy"
	"github.com/perfhist/rrdmig/internal/rrd"
)

// LastUpdate is the fixed last-update timestamp fixtures use.
const LastUpdate int64 = 1755000000

// Archive returns a small two-ring archive (a fine AVERAGE ring and a
// coarse MAX ring) over the cpu and mem sources. Values derive from seed
// so distinct entities produce distinct rings.
func Archive(seed int) *legacy.Archive {
	a := &legacy.Archive{
		Header: legacy.Header{Version: legacy.Version, Step: config.BaseStep, LastUpdate: LastUpdate},
		DataSources: []rrd.DataSource{
			{Name: "cpu", Kind: rrd.KindGauge},
			{Name: "mem", Kind: rrd.KindGauge},
		},
	}

	avg := legacy.NewRRA(rrd.RRADefinition{CF: rrd.CFAverage, PdpPerRow: 1, Rows: 8, Cursor: uint32(seed) % 8}, 2)
	for k := uint32(0); k < 8; k++ {
		avg.SetValueAt(k, 0, float64(seed)+float64(k))
		avg.SetValueAt(k, 1, float64(seed)*10+float64(k))
	}

	max := legacy.NewRRA(rrd.RRADefinition{CF: rrd.CFMax, PdpPerRow: 4, Rows: 4, Cursor: 1}, 2)
	for k := uint32(0); k < 4; k++ {
		max.SetValueAt(k, 0, float64(seed)+float64(k)+100)
		max.SetValueAt(k, 1, float64(seed)+float64(k)+200)
	}

	a.RRAs = []legacy.RRA{avg, max}
	return a
}

// Write stores an archive beneath dir at the slash-separated relative
// path, creating parents, and returns the file path.
func Write(t *testing.T, dir, rel string, a *legacy.Archive) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for fixture %s: %v", rel, err)
	}
	if err := legacy.WriteFile(path, a); err != nil {
		t.Fatalf("write fixture %s: %v", rel, err)
	}
	return path
}

// WriteTruncated stores a corrupt fixture: a valid archive cut in half.
func WriteTruncated(t *testing.T, dir, rel string) string {
	t.Helper()
	data := legacy.Encode(Archive(1))
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for fixture %s: %v", rel, err)
	}
	if err := os.WriteFile(path, data[:len(data)/2], 0o644); err != nil {
		t.Fatalf("write truncated fixture %s: %v", rel, err)
	}
	return path
}
