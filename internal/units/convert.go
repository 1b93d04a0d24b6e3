package units

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/tidewatch/tidewatch/pkg/types"
)

var (
	// ErrUnknownUnit is returned for a measure that is not in the catalogue.
	ErrUnknownUnit = errors.New("units: unknown measure")
	// ErrNoValue is returned instead of a fake zero when the value is absent.
	ErrNoValue = errors.New("units: no value")
	// ErrNotNumeric is returned when the value (or the measure's result) is
	// not a number.
	ErrNotNumeric = errors.New("units: not numeric")
	// ErrNotFinite is returned when a text format is asked to render NaN or
	// an infinity.
	ErrNotFinite = errors.New("units: value not finite")
)

// Result is the outcome of a conversion: a number, or text for the
// formatted measures.
type Result struct {
	Number float64
	Text   string
	IsText bool
}

func (r Result) String() string {
	if r.IsText {
		return r.Text
	}
	return strconv.FormatFloat(r.Number, 'f', -1, 64)
}

// MarshalJSON encodes the bare number or string.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.IsText {
		return json.Marshal(r.Text)
	}
	if math.IsNaN(r.Number) || math.IsInf(r.Number, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(r.Number)
}

// Known reports whether measure is in the catalogue.
func Known(measure string) bool {
	_, ok := conversions[measure]
	return ok
}

// IsText reports whether measure renders text rather than a number.
func IsText(measure string) bool {
	c, ok := conversions[measure]
	return ok && c.text != nil
}

// Convert maps a canonical value into measure.
func Convert(measure string, v types.Value) (Result, error) {
	c, ok := conversions[measure]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownUnit, measure)
	}
	if v.IsNull() {
		return Result{}, ErrNoValue
	}
	f, ok := v.Float()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s value", ErrNotNumeric, v.Type())
	}
	if c.text != nil {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Result{}, ErrNotFinite
		}
		return Result{Text: c.text(f), IsText: true}, nil
	}
	return Result{Number: c.from(f)}, nil
}

// ConvertFloat maps a canonical number into a numeric measure.
func ConvertFloat(measure string, v float64) (float64, error) {
	c, ok := conversions[measure]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, measure)
	}
	if c.text != nil {
		return 0, fmt.Errorf("%w: %q formats text", ErrNotNumeric, measure)
	}
	return c.from(v), nil
}

// ToBase maps a value expressed in measure back into the group's base unit.
func ToBase(measure string, v float64) (float64, error) {
	c, ok := conversions[measure]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, measure)
	}
	if c.to == nil {
		return 0, fmt.Errorf("%w: %q has no inverse", ErrNotNumeric, measure)
	}
	return c.to(v), nil
}

// Groups returns the full catalogue in display order.
func Groups() []Group {
	out := make([]Group, len(groups))
	for i, g := range groups {
		g.Units = append([]Unit(nil), g.Units...)
		out[i] = g
	}
	return out
}

// GroupOf returns the group owning measure.
func GroupOf(measure string) (Group, bool) {
	i, ok := owner[measure]
	if !ok {
		return Group{}, false
	}
	g := groups[i]
	g.Units = append([]Unit(nil), g.Units...)
	return g, true
}

// formatDuration renders whole seconds as HH:MM:SS. The sign is dropped and
// hours are not wrapped.
func formatDuration(v float64) string {
	n := int64(math.Abs(math.Trunc(v)))
	return fmt.Sprintf("%02d:%02d:%02d", n/3600, n%3600/60, n%60)
}

// positionMinutes renders radians as degrees and decimal minutes with a
// hemisphere suffix, e.g. 45° 30.00' N. Minutes are rounded to hundredths
// before splitting so 59.999' carries into the next degree.
func positionMinutes(pos, neg string) func(float64) string {
	return func(v float64) string {
		deg, hemi := hemisphere(v, pos, neg)
		h := int64(math.Round(deg * 60 * 100)) // hundredths of a minute
		d, m := h/6000, h%6000
		return fmt.Sprintf("%d° %02d.%02d' %s", d, m/100, m%100, hemi)
	}
}

// positionSeconds renders radians as degrees, minutes and decimal seconds,
// e.g. 45° 30' 15.00" N. Seconds are rounded to hundredths first.
func positionSeconds(pos, neg string) func(float64) string {
	return func(v float64) string {
		deg, hemi := hemisphere(v, pos, neg)
		h := int64(math.Round(deg * 3600 * 100)) // hundredths of a second
		d, rem := h/360000, h%360000
		m, sec := rem/6000, rem%6000
		return fmt.Sprintf("%d° %d' %02d.%02d\" %s", d, m, sec/100, sec%100, hemi)
	}
}

// hemisphere converts radians to unsigned degrees and picks the suffix.
func hemisphere(v float64, pos, neg string) (float64, string) {
	deg := v * 180 / math.Pi
	if deg < 0 {
		return -deg, neg
	}
	return deg, pos
}
