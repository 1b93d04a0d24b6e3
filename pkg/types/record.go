package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// SourcedValue is the latest value one source reported for a path.
type SourcedValue struct {
	SourceID  string    `json:"sourceId"`
	Timestamp time.Time `json:"timestamp"`
	Value     Value     `json:"value"`
}

// PathRecord holds every source's latest value for one path.
// DefaultSourceID is fixed on first observation and always has an entry in
// Sources.
type PathRecord struct {
	Path            string                  `json:"path"`
	DefaultSourceID string                  `json:"defaultSource,omitempty"`
	Sources         map[string]SourcedValue `json:"sources"`
	ValueType       ValueType               `json:"type"`
}

// Default returns the value reported by the default source.
func (r *PathRecord) Default() (SourcedValue, bool) {
	if r == nil || r.DefaultSourceID == "" {
		return SourcedValue{}, false
	}
	sv, ok := r.Sources[r.DefaultSourceID]
	return sv, ok
}

// Source returns the value reported by sourceID.
func (r *PathRecord) Source(sourceID string) (SourcedValue, bool) {
	if r == nil {
		return SourcedValue{}, false
	}
	sv, ok := r.Sources[sourceID]
	return sv, ok
}

// Clone returns a deep copy of r.
func (r *PathRecord) Clone() *PathRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Sources = make(map[string]SourcedValue, len(r.Sources))
	for id, sv := range r.Sources {
		sv.Value = ValueOf(sv.Value.Any())
		out.Sources[id] = sv
	}
	return &out
}

// Update is one normalized (path, source, timestamp, value) tuple handed to
// the core by the transport. In JSON the timestamp is an RFC 3339 string or
// epoch milliseconds.
type Update struct {
	Path      string    `json:"path"`
	SourceID  string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Value     Value     `json:"value"`
}

// UnmarshalJSON decodes an update whose timestamp may be an RFC 3339 string
// or a number of milliseconds since the Unix epoch. A missing or null
// timestamp leaves the zero time.
func (u *Update) UnmarshalJSON(b []byte) error {
	type plain Update
	var aux struct {
		plain
		Timestamp json.RawMessage `json:"timestamp"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	ts, err := parseTimestamp(aux.Timestamp)
	if err != nil {
		return err
	}
	*u = Update(aux.plain)
	u.Timestamp = ts
	return nil
}

func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		if s == "" {
			return time.Time{}, nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("timestamp %q: %w", s, err)
		}
		return t, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return time.Time{}, fmt.Errorf("timestamp %s: want RFC 3339 string or epoch milliseconds", raw)
	}
	if ms, err := n.Int64(); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	f, err := n.Float64()
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %s: %w", raw, err)
	}
	whole := math.Floor(f)
	frac := time.Duration((f - whole) * float64(time.Millisecond))
	return time.UnixMilli(int64(whole)).Add(frac).UTC(), nil
}
