package configstore

import (
	"errors"
	"fmt"

	"github.com/tidewatch/tidewatch/pkg/types"
)

var (
	// ErrNotFound is returned when nothing has been persisted yet for the
	// requested item.
	ErrNotFound = errors.New("configstore: not found")

	// ErrUnknownBackend is returned by Open for an unsupported backend name.
	ErrUnknownBackend = errors.New("configstore: unknown backend")
)

// Store is the persisted configuration surface used by the host.
type Store interface {
	LoadZones() ([]types.PathZones, error)
	SaveZones([]types.PathZones) error
	LoadUnitDefaults() (map[string]string, error)
	SaveUnitDefaults(map[string]string) error
	Close() error
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)

// Open returns the store named by backend ("file" or "sqlite") at path.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", "file":
		fs, err := NewFileStore(path)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case "sqlite":
		db, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
