// Package archive serializes resampled tiers into the compact ring format
// and installs them durably: temp file in the destination directory, fsync,
// then an atomic rename over the final path. A crash mid-write never leaves
// a partial file visible under the final name.
package archive

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/perfhist/rrdmig/config"
	"github.com/perfhist/rrdmig/internal/errors"
	"github.com/perfhist/rrdmig/internal/rrd"
)

// Archive is one ring-format file in memory.
type Archive struct {
	Step        uint32 // base step carried over from the source archive
	LastUpdate  int64  // preserved from the source archive
	DataSources []string
	Tiers       []Tier
}

// Tier is one resolution tier: its spec, cursor, and row values kept in
// physical order.
type Tier struct {
	Spec   rrd.TierSpec
	Cursor uint32
	Values []float64 // rows x dsCount, row-major
}

// ValueAt returns one tier cell by logical row (0 = oldest) and data
// source index.
func (a *Archive) ValueAt(tier int, logical uint32, ds int) float64 {
	t := &a.Tiers[tier]
	ring := rrd.Ring{Rows: t.Spec.Rows, Cursor: t.Cursor}
	return t.Values[int(ring.Physical(logical))*len(a.DataSources)+ds]
}

// Validate checks that the archive can be represented on disk.
func (a *Archive) Validate() error {
	if a.Step == 0 {
		return fmt.Errorf("zero step")
	}
	if len(a.DataSources) == 0 {
		return fmt.Errorf("no data sources")
	}
	for i, name := range a.DataSources {
		if name == "" {
			return fmt.Errorf("data source %d: empty name", i)
		}
		if len(name) > nameSize {
			return fmt.Errorf("data source %d: name %q exceeds %d bytes", i, name, nameSize)
		}
	}
	specs := make([]rrd.TierSpec, len(a.Tiers))
	for i := range a.Tiers {
		specs[i] = a.Tiers[i].Spec
	}
	if err := rrd.ValidateLayout(specs); err != nil {
		return err
	}
	for i := range a.Tiers {
		t := &a.Tiers[i]
		if t.Cursor >= t.Spec.Rows {
			return fmt.Errorf("tier %d: cursor %d out of range for %d rows", i, t.Cursor, t.Spec.Rows)
		}
		if want := int(t.Spec.Rows) * len(a.DataSources); len(t.Values) != want {
			return fmt.Errorf("tier %d: %d values, expected %d", i, len(t.Values), want)
		}
	}
	return nil
}

// Encode serializes the archive into the ring binary layout.
func Encode(a *Archive) []byte {
	size := headerSize + len(a.DataSources)*nameSize
	for i := range a.Tiers {
		size += tierHdrSize + len(a.Tiers[i].Values)*valueSize
	}
	buf := make([]byte, 0, size)

	buf = binary.LittleEndian.AppendUint64(buf, Magic)
	buf = binary.LittleEndian.AppendUint32(buf, Version)
	buf = binary.LittleEndian.AppendUint32(buf, a.Step)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(a.DataSources)))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(a.Tiers)))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(a.LastUpdate))

	for _, name := range a.DataSources {
		var field [nameSize]byte
		copy(field[:], name)
		buf = append(buf, field[:]...)
	}

	for i := range a.Tiers {
		t := &a.Tiers[i]
		buf = append(buf, byte(t.Spec.CF))
		buf = binary.LittleEndian.AppendUint32(buf, t.Spec.Step)
		buf = binary.LittleEndian.AppendUint32(buf, t.Spec.Rows)
		buf = binary.LittleEndian.AppendUint32(buf, t.Cursor)
		for _, v := range t.Values {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
		}
	}

	return buf
}

// Write installs the archive at path. It reports written=false with a nil
// error when the target already exists and force is off, which keeps
// reruns idempotent by default.
//
// The write goes to a temp file in the destination directory first and is
// fsynced before the rename, so the final path only ever holds a complete
// archive.
func Write(path string, a *Archive, force bool) (written bool, err error) {
	if !force {
		if _, statErr := os.Lstat(path); statErr == nil {
			return false, nil
		} else if !os.IsNotExist(statErr) {
			return false, errors.Tagf(errors.ErrWriteFailed, statErr, "stat %s", path)
		}
	}

	if err := a.Validate(); err != nil {
		return false, fmt.Errorf("archive for %s: %v: %w", path, err, errors.ErrInconsistentLayout)
	}
	data := Encode(a)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, errors.Tagf(errors.ErrWriteFailed, err, "create directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, config.TempPattern)
	if err != nil {
		return false, errors.Tagf(errors.ErrWriteFailed, err, "create temp file in %s", dir)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return false, errors.Tagf(errors.ErrWriteFailed, err, "write %s", tmpPath)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return false, errors.Tagf(errors.ErrWriteFailed, err, "sync %s", tmpPath)
	}
	if err := tmp.Close(); err != nil {
		return false, errors.Tagf(errors.ErrWriteFailed, err, "close %s", tmpPath)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return false, errors.Tagf(errors.ErrRenameFailed, err, "rename %s to %s", tmpPath, path)
	}
	return true, nil
}
