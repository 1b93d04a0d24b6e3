package store

import (
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tidewatch/tidewatch/internal/units"
	"github.com/tidewatch/tidewatch/pkg/types"
)

// DefaultSelfPrefix marks paths that belong to the local vessel.
const DefaultSelfPrefix = "self."

// UpdateOutcome reports what ApplyUpdate did.
type UpdateOutcome struct {
	// IsNewPath is true when the update created the path's record.
	IsNewPath bool
	// Stale is true when the update was older than the stored value for
	// the same source and was dropped.
	Stale bool
	// TypeResolved is true when a path first seen with a null value got
	// its value type from this update.
	TypeResolved bool
	// Value is the value as stored, after normalisation.
	Value types.SourcedValue
	// Record is a snapshot of the path after the update.
	Record *types.PathRecord
}

// Filter narrows ListPaths. Zero fields match everything.
type Filter struct {
	ValueType types.ValueType
	SelfOnly  bool
}

// Option configures a Store.
type Option func(*Store)

// WithSelfPrefix overrides the self-context prefix used by Filter.SelfOnly.
func WithSelfPrefix(p string) Option { return func(s *Store) { s.selfPrefix = p } }

// WithClock injects the clock used to stamp updates that carry no timestamp.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// Store is a thread-safe path value cache keyed by path.
type Store struct {
	mu         sync.RWMutex
	records    map[string]*types.PathRecord
	order      []string // first-seen order
	selfPrefix string
	now        func() time.Time // injectable for deterministic tests
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		records:    make(map[string]*types.PathRecord),
		selfPrefix: DefaultSelfPrefix,
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SelfPrefix returns the configured self-context prefix.
func (s *Store) SelfPrefix() string { return s.selfPrefix }

// ApplyUpdate records u as the latest value of u.SourceID on u.Path.
// The first update for a path fixes its default source and value type.
// Updates older than what is stored for that source are dropped; an update
// with the same timestamp overwrites, so re-applying one is a no-op.
func (s *Store) ApplyUpdate(u types.Update) UpdateOutcome {
	ts := u.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	sv := types.SourcedValue{
		SourceID:  u.SourceID,
		Timestamp: ts,
		Value:     normalizePosition(u.Path, u.Value),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[u.Path]
	if !ok {
		rec = &types.PathRecord{
			Path:            u.Path,
			DefaultSourceID: u.SourceID,
			Sources:         map[string]types.SourcedValue{u.SourceID: sv},
			ValueType:       sv.Value.Type(),
		}
		s.records[u.Path] = rec
		s.order = append(s.order, u.Path)
		return UpdateOutcome{IsNewPath: true, Value: sv, Record: rec.Clone()}
	}

	if prev, seen := rec.Sources[u.SourceID]; seen && ts.Before(prev.Timestamp) {
		slog.Debug("store: dropped out-of-order update",
			"path", u.Path, "source", u.SourceID, "ts", ts, "stored", prev.Timestamp)
		return UpdateOutcome{Stale: true, Value: prev, Record: rec.Clone()}
	}

	rec.Sources[u.SourceID] = sv
	resolved := false
	if rec.ValueType == types.TypeUnknown && !sv.Value.IsNull() {
		rec.ValueType = sv.Value.Type()
		resolved = true
	}
	return UpdateOutcome{TypeResolved: resolved, Value: sv, Record: rec.Clone()}
}

// Get returns a snapshot of the record for path.
func (s *Store) Get(path string) (*types.PathRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[path]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// ListPaths yields known paths matching f in first-seen order. The path set
// is captured when iteration starts; the filter is applied as it proceeds.
func (s *Store) ListPaths(f Filter) iter.Seq[string] {
	type item struct {
		path string
		vt   types.ValueType
	}
	s.mu.RLock()
	items := make([]item, len(s.order))
	for i, p := range s.order {
		items[i] = item{p, s.records[p].ValueType}
	}
	s.mu.RUnlock()

	return func(yield func(string) bool) {
		for _, it := range items {
			if f.SelfOnly && !strings.HasPrefix(it.path, s.selfPrefix) {
				continue
			}
			if f.ValueType != "" && it.vt != f.ValueType {
				continue
			}
			if !yield(it.path) {
				return
			}
		}
	}
}

// Len returns the number of known paths.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Reset drops every record. Values from a previous transport session must
// not survive it.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.records)
	s.records = make(map[string]*types.PathRecord)
	s.order = nil
	slog.Info("store: reset", "paths", n)
}

// normalizePosition converts geographic positions from degrees on the wire
// to radians. It handles scalar ".position.latitude"/".position.longitude"
// paths and {latitude, longitude} objects on ".position" paths.
func normalizePosition(path string, v types.Value) types.Value {
	if strings.HasSuffix(path, "position.latitude") || strings.HasSuffix(path, "position.longitude") {
		f, ok := v.Float()
		if !ok {
			return v
		}
		return types.Number(degToRad(f))
	}
	if !strings.HasSuffix(path, "position") || v.Type() != types.TypeObject {
		return v
	}
	obj, ok := v.Any().(map[string]any)
	if !ok {
		return v
	}
	for _, k := range []string{"latitude", "longitude"} {
		if f, ok := obj[k].(float64); ok {
			obj[k] = degToRad(f)
		}
	}
	return types.ValueOf(obj)
}

func degToRad(f float64) float64 {
	r, err := units.ToBase("deg", f)
	if err != nil {
		// "deg" is part of the built-in catalogue.
		panic(err)
	}
	return r
}
