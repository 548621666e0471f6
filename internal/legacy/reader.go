// Package legacy decodes and encodes the legacy fixed-layout round-robin
// archive format.
//
// Decoding is strict: the expected byte length is computed from the declared
// header fields before any value is read, every multi-byte access is bounds
// checked, and failures map onto the taxonomy in internal/errors. Ring
// contents are never rotated; chronological access goes through the
// rrd.Ring index mapping.
package legacy

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/perfhist/rrdmig/internal/errors"
	"github.com/perfhist/rrdmig/internal/rrd"
)

// Header holds the fixed leading fields of a legacy archive.
type Header struct {
	Version    uint32
	Step       uint32 // primary data point step, seconds
	LastUpdate int64  // Unix seconds of the most recent update
}

// Archive is one fully decoded legacy file.
type Archive struct {
	Header      Header
	DataSources []rrd.DataSource
	RRAs        []RRA
}

// RRA is one decoded round-robin archive: its descriptor plus the ring
// values kept in physical on-disk order.
type RRA struct {
	Def     rrd.RRADefinition
	values  []float64 // rows x dsCount, row-major
	dsCount int
}

// NewRRA returns an archive ring with every cell unknown.
func NewRRA(def rrd.RRADefinition, dsCount int) RRA {
	values := make([]float64, int(def.Rows)*dsCount)
	for i := range values {
		values[i] = rrd.Unknown()
	}
	return RRA{Def: def, values: values, dsCount: dsCount}
}

// DataSourceCount returns the number of value columns per row.
func (r *RRA) DataSourceCount() int {
	return r.dsCount
}

// ValueAt returns the value of a logical row (0 = oldest) for one data
// source, mapping through the cursor.
func (r *RRA) ValueAt(logical uint32, ds int) float64 {
	phys := r.Def.Ring().Physical(logical)
	return r.values[int(phys)*r.dsCount+ds]
}

// SetValueAt stores a value at a logical position, mapping through the
// cursor. Used by fixture construction and tests.
func (r *RRA) SetValueAt(logical uint32, ds int, v float64) {
	phys := r.Def.Ring().Physical(logical)
	r.values[int(phys)*r.dsCount+ds] = v
}

// RowStep returns the effective seconds covered by one of the RRA's rows.
func (r *RRA) RowStep(baseStep uint32) int64 {
	return r.Def.RowStep(baseStep)
}

// Samples returns the chronologically ordered sample stream of one data
// source in one RRA. Unknown cells stay NaN; values are never fabricated.
func (a *Archive) Samples(rra, ds int) []rrd.Sample {
	r := &a.RRAs[rra]
	ring := r.Def.Ring()
	step := r.Def.RowStep(a.Header.Step)

	out := make([]rrd.Sample, r.Def.Rows)
	for k := uint32(0); k < r.Def.Rows; k++ {
		out[k] = rrd.Sample{
			Time:  ring.RowEnd(a.Header.LastUpdate, step, k),
			Value: r.ValueAt(k, ds),
		}
	}
	return out
}

// Decode parses the raw bytes of one legacy archive.
func Decode(data []byte) (*Archive, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("no room for magic: %w", errors.ErrTruncated)
	}
	if binary.LittleEndian.Uint64(data[0:8]) != Magic {
		return nil, fmt.Errorf("bad magic %#x: %w",
			binary.LittleEndian.Uint64(data[0:8]), errors.ErrUnsupportedVersion)
	}
	if len(data) < 12 {
		return nil, fmt.Errorf("no room for version: %w", errors.ErrTruncated)
	}
	version := binary.LittleEndian.Uint32(data[8:12])
	if version != Version {
		return nil, fmt.Errorf("version %d: %w", version, errors.ErrUnsupportedVersion)
	}
	if len(data) < headerSize {
		return nil, fmt.Errorf("header: %w", errors.ErrTruncated)
	}

	hdr := Header{
		Version:    version,
		Step:       binary.LittleEndian.Uint32(data[12:16]),
		LastUpdate: int64(binary.LittleEndian.Uint64(data[24:32])),
	}
	dsCount := binary.LittleEndian.Uint32(data[16:20])
	rraCount := binary.LittleEndian.Uint32(data[20:24])

	if hdr.Step == 0 {
		return nil, fmt.Errorf("zero step: %w", errors.ErrInconsistentLayout)
	}
	if dsCount == 0 {
		return nil, fmt.Errorf("no data sources: %w", errors.ErrInconsistentLayout)
	}
	if rraCount == 0 {
		return nil, fmt.Errorf("no round-robin archives: %w", errors.ErrInconsistentLayout)
	}

	offset := headerSize

	// Data source records. The area size is known from the header alone,
	// so it is checked before anything is allocated.
	dsBytes := uint64(dsCount) * dsRecSize
	if uint64(len(data)-offset) < dsBytes {
		return nil, fmt.Errorf("data source records: %w", errors.ErrTruncated)
	}
	dataSources := make([]rrd.DataSource, dsCount)
	for i := range dataSources {
		rec := data[offset : offset+dsRecSize]
		ds := rrd.DataSource{
			Name: cName(rec[:rrd.MaxNameLen]),
			Kind: rrd.DataSourceKind(rec[32]),
			Min:  math.Float64frombits(binary.LittleEndian.Uint64(rec[33:41])),
			Max:  math.Float64frombits(binary.LittleEndian.Uint64(rec[41:49])),
		}
		if err := ds.Validate(); err != nil {
			return nil, fmt.Errorf("data source %d: %v: %w", i, err, errors.ErrInconsistentLayout)
		}
		dataSources[i] = ds
		offset += dsRecSize
	}

	// RRA descriptor records.
	rraBytes := uint64(rraCount) * rraRecSize
	if uint64(len(data)-offset) < rraBytes {
		return nil, fmt.Errorf("rra descriptors: %w", errors.ErrTruncated)
	}
	defs := make([]rrd.RRADefinition, rraCount)
	for i := range defs {
		rec := data[offset : offset+rraRecSize]
		def := rrd.RRADefinition{
			CF:        rrd.ConsolidationFunc(rec[0]),
			PdpPerRow: binary.LittleEndian.Uint32(rec[1:5]),
			Rows:      binary.LittleEndian.Uint32(rec[5:9]),
			Cursor:    binary.LittleEndian.Uint32(rec[9:13]),
		}
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("rra %d: %v: %w", i, err, errors.ErrInconsistentLayout)
		}
		defs[i] = def
		offset += rraRecSize
	}

	// Expected total length from the declared sizes. Shorter is truncation,
	// longer means the declared layout does not describe this file.
	expected := uint64(headerSize) + dsBytes + rraBytes
	for i, def := range defs {
		vb, ok := expectedValueBytes(def.Rows, dsCount)
		if !ok {
			return nil, fmt.Errorf("rra %d: value area larger than any file: %w", i, errors.ErrTruncated)
		}
		expected += vb
		if expected > uint64(len(data)) {
			return nil, fmt.Errorf("expected %d bytes, have %d: %w", expected, len(data), errors.ErrTruncated)
		}
	}
	if uint64(len(data)) > expected {
		return nil, fmt.Errorf("%d trailing bytes past computed layout: %w",
			uint64(len(data))-expected, errors.ErrInconsistentLayout)
	}

	// Value area, one block per RRA in descriptor order.
	rras := make([]RRA, rraCount)
	for i, def := range defs {
		n := int(def.Rows) * int(dsCount)
		values := make([]float64, n)
		for j := 0; j < n; j++ {
			values[j] = math.Float64frombits(binary.LittleEndian.Uint64(data[offset:]))
			offset += valueSize
		}
		rras[i] = RRA{Def: def, values: values, dsCount: int(dsCount)}
	}

	return &Archive{Header: hdr, DataSources: dataSources, RRAs: rras}, nil
}

// ReadFile reads and decodes one legacy archive file.
func ReadFile(path string) (*Archive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Tagf(errors.ErrReadFailed, err, "read %s", path)
	}
	return Decode(data)
}

// cName extracts a NUL-padded fixed-width name field.
func cName(field []byte) string {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		return string(field[:i])
	}
	return string(field)
}
