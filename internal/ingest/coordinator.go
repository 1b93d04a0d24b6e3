package ingest

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/tidewatch/tidewatch/internal/store"
	"github.com/tidewatch/tidewatch/internal/zones"
	"github.com/tidewatch/tidewatch/pkg/types"
)

// ErrInvalid is returned for updates missing a path or source.
var ErrInvalid = errors.New("ingest: invalid update")

// ValueStore is the path value store.
type ValueStore interface {
	ApplyUpdate(types.Update) store.UpdateOutcome
	Reset()
}

// MetadataSink is the metadata registry.
type MetadataSink interface {
	RegisterDiscoveredType(path string, vt types.ValueType)
	MergeMetadata(path string, partial *types.MetadataRecord)
}

// Fanout is the subscription multiplexer.
type Fanout interface {
	Publish(rec *types.PathRecord, sourceID string)
}

// Evaluator is the zone evaluator.
type Evaluator interface {
	Evaluate(path string, v types.Value) (zones.Change, bool)
	Reset()
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithStats counts every ingested value in s.
func WithStats(s *Stats) Option { return func(c *Coordinator) { c.stats = s } }

// WithEvaluator re-evaluates zones after each accepted default-source value.
func WithEvaluator(e Evaluator) Option { return func(c *Coordinator) { c.eval = e } }

// Coordinator serialises ingestion into the core.
type Coordinator struct {
	mu    sync.Mutex
	store ValueStore
	meta  MetadataSink
	fan   Fanout
	eval  Evaluator
	stats *Stats

	discover []func(path string, vt types.ValueType)
}

// New wires a Coordinator.
func New(st ValueStore, md MetadataSink, fan Fanout, opts ...Option) *Coordinator {
	c := &Coordinator{store: st, meta: md, fan: fan}
	for _, o := range opts {
		o(c)
	}
	return c
}

// OnDiscover registers fn to be called once for every path seen for the
// first time since the last Reset. fn runs with ingestion paused and must
// not call back into the Coordinator.
func (c *Coordinator) OnDiscover(fn func(path string, vt types.ValueType)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discover = append(c.discover, fn)
}

// IngestValue applies one update. Every call counts towards the throughput
// statistics, including rejected and out-of-order ones.
func (c *Coordinator) IngestValue(u types.Update) (store.UpdateOutcome, error) {
	if c.stats != nil {
		c.stats.Record()
	}
	u.Path = normalizePath(u.Path)
	if u.Path == "" {
		return store.UpdateOutcome{}, fmt.Errorf("%w: path is required", ErrInvalid)
	}
	if u.SourceID == "" {
		return store.UpdateOutcome{}, fmt.Errorf("%w: source is required for %q", ErrInvalid, u.Path)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.store.ApplyUpdate(u)
	if out.Stale {
		return out, nil
	}
	if out.IsNewPath {
		vt := out.Record.ValueType
		c.meta.RegisterDiscoveredType(u.Path, vt)
		for _, fn := range c.discover {
			fn(u.Path, vt)
		}
		slog.Debug("ingest: new path", "path", u.Path, "type", vt, "source", u.SourceID)
	}
	if out.TypeResolved {
		c.meta.RegisterDiscoveredType(u.Path, out.Record.ValueType)
		slog.Debug("ingest: path type resolved", "path", u.Path, "type", out.Record.ValueType)
	}

	c.fan.Publish(out.Record, u.SourceID)
	if c.eval != nil && u.SourceID == out.Record.DefaultSourceID {
		c.eval.Evaluate(u.Path, out.Value.Value)
	}
	return out, nil
}

// IngestMetadata merges one metadata delta.
func (c *Coordinator) IngestMetadata(path string, partial *types.MetadataRecord) error {
	path = normalizePath(path)
	if path == "" {
		return fmt.Errorf("%w: metadata path is required", ErrInvalid)
	}
	if partial == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.meta.MergeMetadata(path, partial)
	return nil
}

// Reset clears values and tracked severities, e.g. when the transport
// reconnects. Metadata and subscriptions are kept.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Reset()
	if c.eval != nil {
		c.eval.Reset()
	}
}

func normalizePath(p string) string {
	return norm.NFC.String(strings.TrimSpace(p))
}
