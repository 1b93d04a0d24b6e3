// Package meta is the metadata registry: descriptive and threshold metadata
// per path, kept independently from values.
//
// Partial updates merge field by field. Zone lists are replaced as a unit
// and only through SetZones/DeleteZones (or a non-empty zone list in a
// merge), so an incidental metadata delta cannot wipe configured thresholds.
// Zone edits are persisted to the configuration store and published back to
// the bus; publishing is fire-and-forget and failures never roll back local
// state.
package meta
