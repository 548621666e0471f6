package legacy

// Legacy archive format (binary, little-endian):
//   - Header: 8 bytes magic + 4 bytes version + 4 bytes step +
//     4 bytes ds count + 4 bytes rra count + 8 bytes last update
//   - Data source records: [32 bytes name][1 byte kind][8 bytes min][8 bytes max]
//   - RRA descriptor records: [1 byte cf][4 bytes pdp_per_row][4 bytes rows][4 bytes cursor]
//   - Value area: per RRA, rows x dsCount float64, row-major, physical order
//
// NaN encodes an unknown value. The cursor is the physical index of the most
// recently written row.

const (
	// Magic identifies a legacy archive file ("PHRRDB" + 0x0001).
	Magic = 0x5048525244420001

	// Version is the only recognized layout revision.
	Version = 2

	headerSize = 32
	dsRecSize  = 49
	rraRecSize = 13
	valueSize  = 8
)

// expectedValueBytes returns the size of one RRA's value block, or false if
// the product cannot fit in the address space of a real file.
func expectedValueBytes(rows, dsCount uint32) (uint64, bool) {
	cells := uint64(rows) * uint64(dsCount)
	if cells > (1<<62)/valueSize {
		return 0, false
	}
	return cells * valueSize, true
}
