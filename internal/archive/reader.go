package archive

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/perfhist/rrdmig/internal/errors"
	"github.com/perfhist/rrdmig/internal/rrd"
)

// Decode parses the raw bytes of one ring archive. The failure taxonomy
// mirrors the legacy decoder: unrecognized magic or version is
// ErrUnsupportedVersion, short buffers are ErrTruncated, and declared
// sizes that do not describe the buffer are ErrInconsistentLayout.
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

	a := &Archive{
		Step:       binary.LittleEndian.Uint32(data[12:16]),
		LastUpdate: int64(binary.LittleEndian.Uint64(data[24:32])),
	}
	dsCount := binary.LittleEndian.Uint32(data[16:20])
	tierCount := binary.LittleEndian.Uint32(data[20:24])

	if a.Step == 0 {
		return nil, fmt.Errorf("zero step: %w", errors.ErrInconsistentLayout)
	}
	if dsCount == 0 {
		return nil, fmt.Errorf("no data sources: %w", errors.ErrInconsistentLayout)
	}
	if tierCount == 0 {
		return nil, fmt.Errorf("no tiers: %w", errors.ErrInconsistentLayout)
	}

	offset := headerSize

	nameBytes := uint64(dsCount) * nameSize
	if uint64(len(data)-offset) < nameBytes {
		return nil, fmt.Errorf("data source names: %w", errors.ErrTruncated)
	}
	a.DataSources = make([]string, dsCount)
	for i := range a.DataSources {
		field := data[offset : offset+nameSize]
		name := field
		if j := bytes.IndexByte(field, 0); j >= 0 {
			name = field[:j]
		}
		if len(name) == 0 {
			return nil, fmt.Errorf("data source %d: empty name: %w", i, errors.ErrInconsistentLayout)
		}
		a.DataSources[i] = string(name)
		offset += nameSize
	}

	// Tier blocks interleave descriptors and values, so decoding walks them
	// in order with incremental bounds checks.
	a.Tiers = make([]Tier, 0, min(int(tierCount), 64))
	for i := uint32(0); i < tierCount; i++ {
		if len(data)-offset < tierHdrSize {
			return nil, fmt.Errorf("tier %d header: %w", i, errors.ErrTruncated)
		}
		rec := data[offset : offset+tierHdrSize]
		t := Tier{
			Spec: rrd.TierSpec{
				CF:   rrd.ConsolidationFunc(rec[0]),
				Step: binary.LittleEndian.Uint32(rec[1:5]),
				Rows: binary.LittleEndian.Uint32(rec[5:9]),
			},
			Cursor: binary.LittleEndian.Uint32(rec[9:13]),
		}
		if err := t.Spec.Validate(); err != nil {
			return nil, fmt.Errorf("tier %d: %v: %w", i, err, errors.ErrInconsistentLayout)
		}
		if t.Cursor >= t.Spec.Rows {
			return nil, fmt.Errorf("tier %d: cursor %d out of range for %d rows: %w",
				i, t.Cursor, t.Spec.Rows, errors.ErrInconsistentLayout)
		}
		offset += tierHdrSize

		vb, ok := expectedValueBytes(t.Spec.Rows, dsCount)
		if !ok || uint64(len(data)-offset) < vb {
			return nil, fmt.Errorf("tier %d values: %w", i, errors.ErrTruncated)
		}
		n := int(t.Spec.Rows) * int(dsCount)
		t.Values = make([]float64, n)
		for j := 0; j < n; j++ {
			t.Values[j] = math.Float64frombits(binary.LittleEndian.Uint64(data[offset:]))
			offset += valueSize
		}
		a.Tiers = append(a.Tiers, t)
	}

	if offset != len(data) {
		return nil, fmt.Errorf("%d trailing bytes past computed layout: %w",
			len(data)-offset, errors.ErrInconsistentLayout)
	}

	specs := make([]rrd.TierSpec, len(a.Tiers))
	for i := range a.Tiers {
		specs[i] = a.Tiers[i].Spec
	}
	if err := rrd.ValidateLayout(specs); err != nil {
		return nil, fmt.Errorf("%v: %w", err, errors.ErrInconsistentLayout)
	}

	return a, nil
}

// ReadFile reads and decodes one ring archive file.
func ReadFile(path string) (*Archive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Tagf(errors.ErrReadFailed, err, "read %s", path)
	}
	return Decode(data)
}
