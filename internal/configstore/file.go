package configstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/tidewatch/tidewatch/internal/config"
	"github.com/tidewatch/tidewatch/pkg/types"
)

//go:embed schema.cue
var schemaCUE string

// document is the on-disk layout of a FileStore.
type document struct {
	Zones map[string][]types.ZoneDef `yaml:"zones,omitempty"`
	Units map[string]string          `yaml:"units,omitempty"`
}

// FileStore keeps configuration in a single YAML file. Every read is
// checked against an embedded CUE schema before it is decoded.
type FileStore struct {
	mu     sync.Mutex
	path   string
	schema cue.Value
}

// NewFileStore returns a FileStore backed by path. The file need not exist.
func NewFileStore(path string) (*FileStore, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("configstore: compile schema: %w", err)
	}
	schema := v.LookupPath(cue.ParsePath("#Document"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("configstore: lookup schema: %w", err)
	}
	return &FileStore{path: path, schema: schema}, nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// LoadZones returns the persisted zones ordered by path.
func (s *FileStore) LoadZones() ([]types.PathZones, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	out := make([]types.PathZones, 0, len(doc.Zones))
	for _, p := range slices.Sorted(maps.Keys(doc.Zones)) {
		out = append(out, types.PathZones{Path: p, Zones: doc.Zones[p]})
	}
	return out, nil
}

// SaveZones replaces every persisted zone list with pzs. Unit defaults
// already in the file are kept.
func (s *FileStore) SaveZones(pzs []types.PathZones) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return err
	}
	doc.Zones = make(map[string][]types.ZoneDef, len(pzs))
	for _, pz := range pzs {
		doc.Zones[pz.Path] = types.CloneZones(pz.Zones)
	}
	return s.write(doc)
}

// LoadUnitDefaults returns the persisted group -> measure preference, or
// ErrNotFound when none has been saved.
func (s *FileStore) LoadUnitDefaults() (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	if len(doc.Units) == 0 {
		return nil, ErrNotFound
	}
	return doc.Units, nil
}

// SaveUnitDefaults replaces the persisted unit preference.
func (s *FileStore) SaveUnitDefaults(m map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return err
	}
	doc.Units = maps.Clone(m)
	return s.write(doc)
}

// Watch calls onChange whenever the file is modified, including by this
// store. It runs until ctx is cancelled.
func (s *FileStore) Watch(ctx context.Context, onChange func()) error {
	return config.WatchFile(ctx, s.path, onChange)
}

// Close is a no-op; it exists to satisfy Store.
func (s *FileStore) Close() error { return nil }

// read loads and validates the file. A missing file is an empty document.
// Caller holds s.mu.
func (s *FileStore) read() (document, error) {
	var doc document
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("configstore: read %s: %w", s.path, err)
	}
	if err := s.validate(data); err != nil {
		return doc, err
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("configstore: parse %s: %w", s.path, err)
	}
	return doc, nil
}

// validate unifies the raw YAML with the schema.
func (s *FileStore) validate(data []byte) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("configstore: parse %s: %w", s.path, err)
	}
	if raw == nil {
		return nil
	}
	v := s.schema.Context().Encode(raw)
	if err := v.Err(); err != nil {
		return fmt.Errorf("configstore: encode %s: %w", s.path, err)
	}
	if err := s.schema.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("configstore: invalid %s: %w", s.path, err)
	}
	return nil
}

// write replaces the file atomically. Caller holds s.mu.
func (s *FileStore) write(doc document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("configstore: marshal: %w", err)
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".tidewatch-store-*")
	if err != nil {
		return fmt.Errorf("configstore: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("configstore: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("configstore: close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("configstore: replace %s: %w", s.path, err)
	}
	slog.Debug("configstore: saved", "path", s.path, "zones", len(doc.Zones), "units", len(doc.Units))
	return nil
}
