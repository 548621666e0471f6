package rrd

import "fmt"

// Ring provides the index mapping for a circular row buffer.
//
// The cursor is the physical index of the most recently written row, so the
// oldest row (the next one to be overwritten) sits at (Cursor+1) mod Rows.
// Logical indexes order rows chronologically: logical 0 is the oldest row,
// logical Rows-1 is the row written last. Decoding never rotates the buffer;
// all access goes through this mapping.
type Ring struct {
	Rows   uint32
	Cursor uint32
}

// Validate checks the ring invariants.
func (r Ring) Validate() error {
	if r.Rows == 0 {
		return fmt.Errorf("ring has zero rows")
	}
	if r.Cursor >= r.Rows {
		return fmt.Errorf("cursor %d out of range for %d rows", r.Cursor, r.Rows)
	}
	return nil
}

// Physical maps a logical row index (0 = oldest) to its physical index.
func (r Ring) Physical(logical uint32) uint32 {
	return (r.Cursor + 1 + logical) % r.Rows
}

// Logical maps a physical row index back to its logical position.
func (r Ring) Logical(physical uint32) uint32 {
	return (physical + r.Rows - 1 - r.Cursor) % r.Rows
}

// RowEnd returns the absolute end of a logical row's interval in Unix
// seconds. The newest row (logical Rows-1) ends at lastUpdate; each step
// back in logical order ends rowStep seconds earlier.
func (r Ring) RowEnd(lastUpdate, rowStep int64, logical uint32) int64 {
	return lastUpdate - int64(r.Rows-1-logical)*rowStep
}

// OldestEnd returns the interval end of the oldest row.
func (r Ring) OldestEnd(lastUpdate, rowStep int64) int64 {
	return r.RowEnd(lastUpdate, rowStep, 0)
}
