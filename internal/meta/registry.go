package meta

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tidewatch/tidewatch/internal/notify"
	"github.com/tidewatch/tidewatch/pkg/types"
)

// ConfigStore persists zone definitions.
type ConfigStore interface {
	LoadZones() ([]types.PathZones, error)
	SaveZones([]types.PathZones) error
}

// Publisher sends a value back to the bus.
type Publisher interface {
	Put(ctx context.Context, path string, value any) error
}

// Notifier receives operator-facing notifications.
type Notifier interface {
	Push(notify.Notification) notify.Notification
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	ValueType types.ValueType
	SelfOnly  bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithNotifier routes publish failures to n.
func WithNotifier(n Notifier) Option { return func(r *Registry) { r.notifier = n } }

// WithSelfPrefix overrides the self-context prefix used by Filter.SelfOnly.
func WithSelfPrefix(p string) Option { return func(r *Registry) { r.selfPrefix = p } }

// WithPublishTimeout bounds each outbound publish.
func WithPublishTimeout(d time.Duration) Option { return func(r *Registry) { r.publishTimeout = d } }

// DefaultPublishTimeout bounds an outbound publish when no option is given.
const DefaultPublishTimeout = 10 * time.Second

// Registry owns every MetadataRecord. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*types.MetadataRecord
	order   []string

	saveMu sync.Mutex // serialises snapshot+save so the last save wins
	cfg    ConfigStore

	pub            Publisher
	notifier       Notifier
	publishTimeout time.Duration
	inflight       sync.WaitGroup

	selfPrefix string
}

// New creates a Registry and loads persisted zones from cfg.
func New(cfg ConfigStore, pub Publisher, opts ...Option) (*Registry, error) {
	r := &Registry{
		records:        make(map[string]*types.MetadataRecord),
		cfg:            cfg,
		pub:            pub,
		publishTimeout: DefaultPublishTimeout,
		selfPrefix:     "self.",
	}
	for _, o := range opts {
		o(r)
	}
	if err := r.LoadZones(); err != nil {
		return nil, err
	}
	return r, nil
}

// LoadZones makes the configuration store the zone list of record: paths in
// the store get its zones, every other path loses its zones. Call it again
// after the store was edited outside the registry.
func (r *Registry) LoadZones() error {
	pzs, err := r.cfg.LoadZones()
	if err != nil {
		return fmt.Errorf("meta: load zones: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := make(map[string]bool, len(pzs))
	for _, pz := range pzs {
		rec := r.ensure(pz.Path)
		rec.Zones = types.CloneZones(pz.Zones)
		stored[pz.Path] = true
	}
	cleared := 0
	for p, rec := range r.records {
		if !stored[p] && len(rec.Zones) > 0 {
			rec.Zones = nil
			cleared++
		}
	}
	slog.Info("meta: zones loaded", "paths", len(pzs), "cleared", cleared)
	return nil
}

// ensure returns the record for path, creating it. Caller holds r.mu.
func (r *Registry) ensure(path string) *types.MetadataRecord {
	rec, ok := r.records[path]
	if !ok {
		rec = &types.MetadataRecord{Path: path}
		r.records[path] = rec
		r.order = append(r.order, path)
	}
	return rec
}

// MergeMetadata merges partial into the record for path, creating it.
func (r *Registry) MergeMetadata(path string, partial *types.MetadataRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensure(path).Merge(partial)
}

// EditMetadata merges an operator edit locally and publishes it to
// "<path>.meta". Zones in partial are ignored; use SetZones.
func (r *Registry) EditMetadata(path string, partial *types.MetadataRecord) {
	if partial == nil {
		return
	}
	edit := partial.Clone()
	edit.Path = ""
	edit.Zones = nil
	r.MergeMetadata(path, edit)
	r.publish(path+".meta", edit)
}

// RegisterDiscoveredType records the inferred type of a newly seen path.
// Only the type field of an existing record is touched.
func (r *Registry) RegisterDiscoveredType(path string, vt types.ValueType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensure(path).Type = vt
}

// Get returns a copy of the record for path.
func (r *Registry) Get(path string) (*types.MetadataRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[path]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// List yields copies of the records matching f in first-seen order.
func (r *Registry) List(f Filter) iter.Seq[*types.MetadataRecord] {
	r.mu.RLock()
	paths := append([]string(nil), r.order...)
	r.mu.RUnlock()

	return func(yield func(*types.MetadataRecord) bool) {
		for _, p := range paths {
			if f.SelfOnly && !strings.HasPrefix(p, r.selfPrefix) {
				continue
			}
			rec, ok := r.Get(p)
			if !ok {
				continue
			}
			if f.ValueType != "" && rec.Type != f.ValueType {
				continue
			}
			if !yield(rec) {
				return
			}
		}
	}
}

// Zones returns a copy of the zone list of path.
func (r *Registry) Zones(path string) []types.ZoneDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec, ok := r.records[path]; ok {
		return types.CloneZones(rec.Zones)
	}
	return nil
}

// SetZones replaces the zone list of path, persists every path's zones and
// publishes the list to "<path>.meta.zones". A persistence error is
// returned after the local update has already taken effect.
func (r *Registry) SetZones(path string, zones []types.ZoneDef) error {
	zs := types.CloneZones(zones)
	if zs == nil {
		zs = []types.ZoneDef{}
	}
	for i := range zs {
		if zs[i].ID == "" {
			zs[i].ID = uuid.NewString()
		}
	}
	r.mu.Lock()
	r.ensure(path).Zones = zs
	r.mu.Unlock()

	err := r.persist()
	r.publish(path+".meta.zones", types.CloneZones(zs))
	return err
}

// DeleteZones clears the zone list of path and drops it from the
// configuration store. It reports whether a record existed.
func (r *Registry) DeleteZones(path string) (bool, error) {
	r.mu.Lock()
	rec, ok := r.records[path]
	if ok {
		rec.Zones = nil
	}
	r.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, r.persist()
}

// EvaluateSeverity returns the highest severity among the zones of path
// containing v, which must already be in the zones' unit. No match is
// SeverityNormal.
func (r *Registry) EvaluateSeverity(path string, v float64) types.Severity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[path]
	if !ok {
		return types.SeverityNormal
	}
	return types.EvaluateZones(rec.Zones, v)
}

// Wait blocks until every in-flight publish has finished.
func (r *Registry) Wait() { r.inflight.Wait() }

func (r *Registry) persist() error {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	r.mu.RLock()
	var all []types.PathZones
	for _, p := range r.order {
		if zs := r.records[p].Zones; len(zs) > 0 {
			all = append(all, types.PathZones{Path: p, Zones: types.CloneZones(zs)})
		}
	}
	r.mu.RUnlock()

	if err := r.cfg.SaveZones(all); err != nil {
		return fmt.Errorf("meta: save zones: %w", err)
	}
	return nil
}

// publish sends value to the bus without blocking the caller.
func (r *Registry) publish(path string, value any) {
	if r.pub == nil {
		return
	}
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.publishTimeout)
		defer cancel()

		if err := r.pub.Put(ctx, path, value); err != nil {
			slog.Error("meta: publish failed", "path", path, "err", err)
			if r.notifier != nil {
				r.notifier.Push(notify.Notification{
					Level:   notify.LevelError,
					Title:   "Publish failed",
					Message: err.Error(),
					Path:    path,
				})
			}
			return
		}
		slog.Debug("meta: published", "path", path)
	}()
}
