package units

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
)

// DefaultMeasures is the preferred display measure per group used until the
// configuration store supplies its own.
var DefaultMeasures = map[string]string{
	"Unitless":             "unitless",
	"Speed":                "knots",
	"Flow":                 "l/h",
	"Temperature":          "celsius",
	"Length":               "m",
	"Volume":               "liter",
	"Current":              "A",
	"Potential":            "V",
	"Charge":               "C",
	"Power":                "W",
	"Energy":               "J",
	"Pressure":             "mmHg",
	"Density":              "kg/m3",
	"Time":                 "Hours",
	"Angular Velocity":     "deg/min",
	"Angle":                "deg",
	"Frequency":            "Hz",
	"Ratio":                "ratio",
	"Illuminance":          "Lux",
	"Acceleration":         "m/s2",
	"Resistance":           "ohm",
	"Magnetism":            "T",
	"Pressure Rate":        "Pa/s",
	"Viscosity":            "Pa.s",
	"Angular Acceleration": "rad/s2",
	"Force":                "N",
	"Torque":               "Nm",
}

// Engine holds the per-group default measure preference. It is safe for
// concurrent use.
type Engine struct {
	mu       sync.RWMutex
	defaults map[string]string
}

// New returns an Engine seeded with DefaultMeasures.
func New() *Engine {
	return &Engine{defaults: maps.Clone(DefaultMeasures)}
}

// Defaults returns a copy of the current preference map.
func (e *Engine) Defaults() map[string]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return maps.Clone(e.defaults)
}

// SetDefaults merges m into the preference map. Entries naming an unknown
// group are ignored; entries whose measure is not part of the group fall
// back to the group's base measure. Every rejected entry is reported in the
// returned error, but valid entries are applied regardless.
func (e *Engine) SetDefaults(m map[string]string) error {
	var errs []error
	next := e.Defaults()
	for name, measure := range m {
		g, ok := groupByName(name)
		if !ok {
			errs = append(errs, fmt.Errorf("units: unknown group %q", name))
			continue
		}
		if !g.Has(measure) {
			errs = append(errs, fmt.Errorf("units: %w %q for group %q", ErrUnknownUnit, measure, name))
			measure = fallback(g)
			slog.Warn("units: invalid default measure, using group base",
				"group", name, "measure", measure)
		}
		next[name] = measure
	}

	e.mu.Lock()
	e.defaults = next
	e.mu.Unlock()
	return errors.Join(errs...)
}

// DefaultFor returns the preferred measure of group name.
func (e *Engine) DefaultFor(name string) (string, bool) {
	e.mu.RLock()
	m, ok := e.defaults[name]
	e.mu.RUnlock()
	if ok {
		return m, true
	}
	g, found := groupByName(name)
	if !found {
		return "", false
	}
	return fallback(g), true
}

// GroupsFor returns the candidate display measures for a path whose metadata
// declares measure. A known measure yields its owning group and that group's
// preferred measure. An empty or unknown measure yields the whole catalogue
// with "unitless" as the default; unknown ones are logged so they can be
// added.
func (e *Engine) GroupsFor(measure string) (string, []Group) {
	if measure == "" {
		return "unitless", Groups()
	}
	g, ok := GroupOf(measure)
	if !ok {
		slog.Warn("units: unsupported measure, offering full catalogue", "measure", measure)
		return "unitless", Groups()
	}
	def, _ := e.DefaultFor(g.Name)
	return def, []Group{g}
}

// Display converts a canonical value into the preferred measure of the group
// owning measure.
func (e *Engine) Display(measure string, v float64) (float64, string, error) {
	g, ok := GroupOf(measure)
	if !ok {
		return 0, "", fmt.Errorf("%w: %q", ErrUnknownUnit, measure)
	}
	def, _ := e.DefaultFor(g.Name)
	out, err := ConvertFloat(def, v)
	if err != nil {
		return 0, "", err
	}
	return out, def, nil
}

func groupByName(name string) (Group, bool) {
	for _, g := range groups {
		if g.Name == name {
			return g, true
		}
	}
	return Group{}, false
}

func fallback(g Group) string {
	if g.Base != "" {
		return g.Base
	}
	return g.Units[0].Measure
}
