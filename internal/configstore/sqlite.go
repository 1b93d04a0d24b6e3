package configstore

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tidewatch/tidewatch/pkg/types"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore keeps configuration in a SQLite database. Each path's zone
// list is stored as a JSON column so ordering within the list survives.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite creates or opens the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("configstore: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("configstore: connect %s: %w", path, err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configstore: %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("configstore: apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// LoadZones returns the persisted zones in the order they were saved.
func (s *SQLiteStore) LoadZones() ([]types.PathZones, error) {
	rows, err := s.db.Query(`SELECT path, zones FROM zones ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("configstore: query zones: %w", err)
	}
	defer rows.Close()

	var out []types.PathZones
	for rows.Next() {
		var (
			pz  types.PathZones
			raw string
		)
		if err := rows.Scan(&pz.Path, &raw); err != nil {
			return nil, fmt.Errorf("configstore: scan zones: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &pz.Zones); err != nil {
			return nil, fmt.Errorf("configstore: decode zones for %s: %w", pz.Path, err)
		}
		out = append(out, pz)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("configstore: iterate zones: %w", err)
	}
	return out, nil
}

// SaveZones replaces every persisted zone list with pzs in one transaction.
func (s *SQLiteStore) SaveZones(pzs []types.PathZones) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("configstore: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM zones`); err != nil {
		return fmt.Errorf("configstore: clear zones: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO zones (path, position, zones) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("configstore: prepare: %w", err)
	}
	defer stmt.Close()

	for i, pz := range pzs {
		zs := pz.Zones
		if zs == nil {
			zs = []types.ZoneDef{}
		}
		raw, err := json.Marshal(zs)
		if err != nil {
			return fmt.Errorf("configstore: encode zones for %s: %w", pz.Path, err)
		}
		if _, err := stmt.Exec(pz.Path, i, string(raw)); err != nil {
			return fmt.Errorf("configstore: insert zones for %s: %w", pz.Path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("configstore: commit: %w", err)
	}
	return nil
}

// LoadUnitDefaults returns the persisted preference, or ErrNotFound.
func (s *SQLiteStore) LoadUnitDefaults() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT grp, measure FROM unit_defaults`)
	if err != nil {
		return nil, fmt.Errorf("configstore: query unit defaults: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var g, m string
		if err := rows.Scan(&g, &m); err != nil {
			return nil, fmt.Errorf("configstore: scan unit defaults: %w", err)
		}
		out[g] = m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("configstore: iterate unit defaults: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// SaveUnitDefaults replaces the persisted preference.
func (s *SQLiteStore) SaveUnitDefaults(m map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("configstore: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM unit_defaults`); err != nil {
		return fmt.Errorf("configstore: clear unit defaults: %w", err)
	}
	for g, measure := range m {
		if _, err := tx.Exec(`INSERT INTO unit_defaults (grp, measure) VALUES (?, ?)`, g, measure); err != nil {
			return fmt.Errorf("configstore: insert unit default %s: %w", g, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("configstore: commit: %w", err)
	}
	return nil
}
