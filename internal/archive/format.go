package archive

// Ring archive format (binary, little-endian):
//   - Header: 8 bytes magic + 4 bytes version + 4 bytes step +
//     4 bytes ds count + 4 bytes tier count + 8 bytes last update
//   - Data source name table: dsCount x 32 bytes, NUL-padded
//   - Tier blocks, in layout order:
//     [1 byte cf][4 bytes step][4 bytes rows][4 bytes cursor]
//     followed by rows x dsCount float64, row-major, physical order
//
// Cursor semantics match the legacy format: the cursor is the physical
// index of the most recently written row. The writer emits rows-1, placing
// the newest row in the last physical slot.

const (
	// Magic identifies a ring archive file ("PHRING" + 0x0001).
	Magic = 0x504852494E470001

	// Version is the current layout revision.
	Version = 1

	headerSize  = 32
	nameSize    = 32
	tierHdrSize = 13
	valueSize   = 8
)

// expectedValueBytes returns the size of one tier's value block, or false
// if the product cannot fit in the address space of a real file.
func expectedValueBytes(rows, dsCount uint32) (uint64, bool) {
	cells := uint64(rows) * uint64(dsCount)
	if cells > (1<<62)/valueSize {
		return 0, false
	}
	return cells * valueSize, true
}
