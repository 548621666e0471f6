// Package rrd defines the core data types shared by the migration pipeline.
//
// Key types:
//   - ConsolidationFunc: the closed set of aggregation rules (AVERAGE, MIN, MAX, LAST)
//   - DataSource: one tracked metric within an archive
//   - RRADefinition: one round-robin archive descriptor within a legacy file
//   - Ring: wrap-invariant index mapping for circular row buffers
//   - TierSpec: one fixed-resolution retention horizon of the ring format
package rrd
