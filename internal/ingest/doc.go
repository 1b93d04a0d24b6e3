// Package ingest is the single entry point the transport uses to hand the
// core normalized value updates and metadata deltas.
//
// Coordinator applies each update to the value store, registers newly
// discovered paths with the metadata registry, fans the accepted value out
// to subscribers and re-evaluates the path's zones. Updates are applied one
// at a time. Path keys are NFC-normalized so visually identical keys from
// different producers land on the same record.
//
// Stats keeps rolling per-second and per-minute update counts and exposes
// them as a prometheus.Collector.
package ingest
