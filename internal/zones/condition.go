package zones

import (
	"log/slog"

	"github.com/tidewatch/tidewatch/internal/units"
	"github.com/tidewatch/tidewatch/pkg/types"
)

// zoneValue expresses the canonical value v in the unit z was authored in.
// A zone with no unit compares against v directly. A zone whose unit cannot
// express v is skipped rather than compared against the wrong scale.
func zoneValue(z types.ZoneDef, v float64) (float64, bool) {
	if z.Unit == "" {
		return v, true
	}
	out, err := units.ConvertFloat(z.Unit, v)
	if err != nil {
		slog.Warn("zones: zone unit cannot be applied, zone skipped",
			"unit", z.Unit, "err", err)
		return 0, false
	}
	return out, true
}

// evaluate returns the severity of v under zones and the zone that decided
// it, if any.
func evaluate(zones []types.ZoneDef, v float64) (types.Severity, *types.ZoneDef) {
	sev, idx := types.HighestSeverity(zones, func(z types.ZoneDef) (float64, bool) {
		return zoneValue(z, v)
	})
	if idx < 0 {
		return sev, nil
	}
	return sev, &zones[idx]
}
