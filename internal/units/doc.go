// Package units converts numeric path values between the canonical SI units
// used on the bus and the display measures an operator selects.
//
// Every measure belongs to exactly one Group. Conversions are pure functions
// keyed by measure name; unknown measures are rejected with ErrUnknownUnit
// rather than passed through. A few measures (HH:MM:SS and the positional
// latitude/longitude formats) produce text instead of a number.
//
// Engine adds the mutable part: the preferred measure per group.
package units
