// Package store is the canonical in-memory cache of the latest value, per
// source, for every known path. Records are created on first observation,
// never deleted individually, and cleared wholesale by Reset when the
// transport reconnects.
package store
