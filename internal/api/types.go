package api

import (
	"github.com/tidewatch/tidewatch/internal/units"
	"github.com/tidewatch/tidewatch/pkg/types"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State         string         `json:"state"`
	PathCount     int            `json:"path_count"`
	AlertingCount int            `json:"alerting_count"`
	ActiveAlerts  int            `json:"active_alerts"`
	WorstSeverity types.Severity `json:"worst_severity"`
	UpdatesPerSec uint64         `json:"updates_per_sec"`
	UpdatesTotal  uint64         `json:"updates_total"`
	Notifications int            `json:"notifications"`
}

// PathSummary is one entry in GET /api/v1/paths.
type PathSummary struct {
	Path          string          `json:"path"`
	Type          types.ValueType `json:"type"`
	DefaultSource string          `json:"default_source"`
	SourceCount   int             `json:"source_count"`
	Value         types.Value     `json:"value"`
	Timestamp     string          `json:"timestamp"` // RFC3339
	Severity      types.Severity  `json:"severity"`
}

// DisplayValue is a value converted to the preferred display measure.
type DisplayValue struct {
	Measure string       `json:"measure"`
	Value   units.Result `json:"value"`
}

// PathResponse is the payload for GET /api/v1/paths/{path}.
type PathResponse struct {
	Record      *types.PathRecord     `json:"record"`
	Metadata    *types.MetadataRecord `json:"metadata,omitempty"`
	Severity    types.Severity        `json:"severity"`
	Display     *DisplayValue         `json:"display,omitempty"`
	Diagnostics []DiagnosticHint      `json:"diagnostics"`
}

// ZonesResponse is returned by zone edits. Persisted is false when the
// configuration store failed; the zones are applied locally regardless.
type ZonesResponse struct {
	Path      string          `json:"path"`
	Zones     []types.ZoneDef `json:"zones"`
	Persisted bool            `json:"persisted"`
	Error     string          `json:"error,omitempty"`
}

// GroupsResponse is the payload for GET /api/v1/units/groups/{measure}.
type GroupsResponse struct {
	Default string        `json:"default"`
	Groups  []units.Group `json:"groups"`
}

// ConvertResponse is the payload for GET /api/v1/units/convert.
type ConvertResponse struct {
	Measure string       `json:"measure"`
	Input   float64      `json:"input"`
	ToBase  bool         `json:"to_base,omitempty"`
	Result  units.Result `json:"result"`
}

// UpdateResult reports the outcome of one ingested update.
type UpdateResult struct {
	Path    string `json:"path"`
	NewPath bool   `json:"new_path,omitempty"`
	Stale   bool   `json:"stale,omitempty"`
	Error   string `json:"error,omitempty"`
}

// MetadataDelta is one entry of POST /api/v1/metadata.
type MetadataDelta struct {
	Path string                `json:"path"`
	Meta *types.MetadataRecord `json:"meta"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
