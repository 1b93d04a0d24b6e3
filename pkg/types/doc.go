// Package types defines the shared data model of the telemetry core: the
// tagged Value union carried by every update, per-path records kept by the
// value store, metadata records, zone definitions and the severity scale.
//
// Values returned from the core's stores are copies. Nothing in this package
// holds a lock; callers own whatever they construct.
package types
