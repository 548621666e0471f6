package legacy

import (
	"encoding/binary"
	"math"
	"os"

	"github.com/perfhist/rrdmig/internal/errors"
	"github.com/perfhist/rrdmig/internal/rrd"
)

// Encode serializes an archive into the legacy binary layout. The caller is
// responsible for the archive being well formed; Decode(Encode(a)) returns
// an equivalent archive.
func Encode(a *Archive) []byte {
	size := headerSize + len(a.DataSources)*dsRecSize + len(a.RRAs)*rraRecSize
	for i := range a.RRAs {
		size += len(a.RRAs[i].values) * valueSize
	}
	buf := make([]byte, 0, size)

	buf = binary.LittleEndian.AppendUint64(buf, Magic)
	buf = binary.LittleEndian.AppendUint32(buf, a.Header.Version)
	buf = binary.LittleEndian.AppendUint32(buf, a.Header.Step)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(a.DataSources)))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(a.RRAs)))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(a.Header.LastUpdate))

	for _, ds := range a.DataSources {
		buf = appendName(buf, ds.Name)
		buf = append(buf, byte(ds.Kind))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(ds.Min))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(ds.Max))
	}

	for i := range a.RRAs {
		def := a.RRAs[i].Def
		buf = append(buf, byte(def.CF))
		buf = binary.LittleEndian.AppendUint32(buf, def.PdpPerRow)
		buf = binary.LittleEndian.AppendUint32(buf, def.Rows)
		buf = binary.LittleEndian.AppendUint32(buf, def.Cursor)
	}

	for i := range a.RRAs {
		for _, v := range a.RRAs[i].values {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
		}
	}

	return buf
}

// WriteFile encodes and writes an archive. Used for fixture generation;
// the migration itself never writes legacy archives.
func WriteFile(path string, a *Archive) error {
	if err := os.WriteFile(path, Encode(a), 0644); err != nil {
		return errors.Tagf(errors.ErrWriteFailed, err, "write %s", path)
	}
	return nil
}

// appendName appends a NUL-padded fixed-width name field.
func appendName(buf []byte, name string) []byte {
	var field [rrd.MaxNameLen]byte
	copy(field[:], name)
	return append(buf, field[:]...)
}
