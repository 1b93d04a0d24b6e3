package types

import "math"

// ZoneDef associates a value range with a severity. A nil bound is unbounded
// on that side; both bounds are inclusive. Unit, when set, names the display
// measure the bounds were authored in.
type ZoneDef struct {
	ID      string   `json:"id,omitempty" yaml:"id,omitempty"`
	Lower   *float64 `json:"lower,omitempty" yaml:"lower,omitempty"`
	Upper   *float64 `json:"upper,omitempty" yaml:"upper,omitempty"`
	Unit    string   `json:"unit,omitempty" yaml:"unit,omitempty"`
	Message string   `json:"message,omitempty" yaml:"message,omitempty"`
	State   Severity `json:"state" yaml:"state"`
}

// Contains reports whether v lies within the zone. NaN never matches.
func (z ZoneDef) Contains(v float64) bool {
	if math.IsNaN(v) {
		return false
	}
	if z.Lower != nil && v < *z.Lower {
		return false
	}
	if z.Upper != nil && v > *z.Upper {
		return false
	}
	return true
}

// Bound is a convenience for building ZoneDef literals.
func Bound(f float64) *float64 { return &f }

// HighestSeverity scans zones and returns the highest severity among those
// containing the value produced by valueFor, together with the index of the
// first zone at that severity. valueFor may decline a zone (false), e.g. when
// the value cannot be expressed in the zone's unit. With no match it returns
// SeverityNormal and -1.
func HighestSeverity(zones []ZoneDef, valueFor func(ZoneDef) (float64, bool)) (Severity, int) {
	best, idx := SeverityNormal, -1
	for i, z := range zones {
		v, ok := valueFor(z)
		if !ok || !z.Contains(v) {
			continue
		}
		if idx < 0 || z.State > best {
			best, idx = z.State, i
		}
	}
	return best, idx
}

// EvaluateZones is HighestSeverity over a single already-converted value.
func EvaluateZones(zones []ZoneDef, v float64) Severity {
	s, _ := HighestSeverity(zones, func(ZoneDef) (float64, bool) { return v, true })
	return s
}

// CloneZones returns a deep copy of zs. A nil slice stays nil.
func CloneZones(zs []ZoneDef) []ZoneDef {
	if zs == nil {
		return nil
	}
	out := make([]ZoneDef, len(zs))
	for i, z := range zs {
		z.Lower = clonePtr(z.Lower)
		z.Upper = clonePtr(z.Upper)
		out[i] = z
	}
	return out
}

// PathZones is the persisted zone list of one path.
type PathZones struct {
	Path  string    `json:"path" yaml:"path"`
	Zones []ZoneDef `json:"zones" yaml:"zones"`
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
