package api

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/tidewatch/tidewatch/internal/units"
	"github.com/tidewatch/tidewatch/pkg/types"
)

// DiagnosticHint is one human-readable insight about a path. The UI shows
// these as chips on the path detail view; clicking one shows Detail.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier (used for dedup/ordering).
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical"
	Level string `json:"level"`
	// Title is a short label shown on the chip (≤ 5 words).
	Title string `json:"title"`
	// Detail is the full explanation shown on click/hover.
	Detail string `json:"detail"`
	// Value is an optional numeric value associated with this hint.
	Value *float64 `json:"value,omitempty"`
}

// pathState is everything computeDiagnostics looks at for one path.
type pathState struct {
	rec      *types.PathRecord
	md       *types.MetadataRecord // may be nil
	severity types.Severity
	now      time.Time
}

var levelRank = map[string]int{"critical": 0, "warning": 1, "info": 2, "ok": 3}

// computeDiagnostics derives hints for a path, critical first.
func computeDiagnostics(ps pathState) []DiagnosticHint {
	var hints []DiagnosticHint

	// ── Zone state ───────────────────────────────────────────────────────────
	if ps.severity.Alerting() {
		level := "warning"
		if ps.severity >= types.SeverityAlarm {
			level = "critical"
		}
		hints = append(hints, DiagnosticHint{
			Key:   "zone_" + ps.severity.String(),
			Level: level,
			Title: fmt.Sprintf("In %s zone", ps.severity),
			Detail: fmt.Sprintf(
				"The current value falls inside a zone marked %q. "+
					"When several zones match, the most severe one is reported.",
				ps.severity.String()),
		})
	}

	// ── Freshness ────────────────────────────────────────────────────────────
	if sv, ok := ps.rec.Default(); ok && ps.md != nil && ps.md.Timeout != nil && *ps.md.Timeout > 0 {
		age := ps.now.Sub(sv.Timestamp).Seconds()
		if age > *ps.md.Timeout {
			hints = append(hints, DiagnosticHint{
				Key:   "stale",
				Level: "warning",
				Title: "Value is stale",
				Detail: fmt.Sprintf(
					"The default source %q last reported %.0fs ago, longer than the %.0fs timeout "+
						"declared in metadata. The sensor or its gateway may be offline.",
					sv.SourceID, age, *ps.md.Timeout),
				Value: &age,
			})
		}
	}

	// ── Units ────────────────────────────────────────────────────────────────
	declared := ""
	if ps.md != nil && ps.md.Units != nil {
		declared = *ps.md.Units
	}
	switch {
	case declared == "" && ps.rec.ValueType == types.TypeNumber:
		hints = append(hints, DiagnosticHint{
			Key:   "no_units",
			Level: "info",
			Title: "No units declared",
			Detail: "No metadata unit has been received for this numeric path, so values are " +
				"shown as received and no display conversion is applied.",
		})
	case declared != "" && !units.Known(declared):
		hints = append(hints, DiagnosticHint{
			Key:   "unknown_unit",
			Level: "warning",
			Title: "Unsupported unit",
			Detail: fmt.Sprintf(
				"Metadata declares the unit %q, which is not in the conversion catalogue. "+
					"Every measure is offered for display and values are shown unconverted.",
				declared),
		})
	}

	// ── Zones ────────────────────────────────────────────────────────────────
	if ps.md != nil && len(ps.md.Zones) > 0 {
		if ps.rec.ValueType != types.TypeNumber && ps.rec.ValueType != types.TypeUnknown {
			hints = append(hints, DiagnosticHint{
				Key:   "zones_not_numeric",
				Level: "warning",
				Title: "Zones never evaluated",
				Detail: fmt.Sprintf(
					"Zones are configured but this path carries %s values. "+
						"Zones only apply to numbers.", ps.rec.ValueType),
			})
		}
		if n := overlapping(ps.md.Zones); n > 0 {
			v := float64(n)
			hints = append(hints, DiagnosticHint{
				Key:   "zones_overlap",
				Level: "info",
				Title: "Overlapping zones",
				Detail: fmt.Sprintf(
					"%d pair(s) of zones cover the same values. Overlaps are allowed; "+
						"a value in more than one zone takes the most severe state.", n),
				Value: &v,
			})
		}
		for _, z := range ps.md.Zones {
			if z.Unit != "" && !units.Known(z.Unit) {
				hints = append(hints, DiagnosticHint{
					Key:   "zone_unit_unknown",
					Level: "warning",
					Title: "Zone unit unknown",
					Detail: fmt.Sprintf(
						"A %s zone is authored in %q, which cannot be converted. "+
							"That zone is skipped during evaluation.", z.State, z.Unit),
				})
				break
			}
		}
	}

	// ── Sources ──────────────────────────────────────────────────────────────
	if n := len(ps.rec.Sources); n > 1 {
		v := float64(n)
		hints = append(hints, DiagnosticHint{
			Key:   "multiple_sources",
			Level: "info",
			Title: fmt.Sprintf("%d sources", n),
			Detail: fmt.Sprintf(
				"%d sources report this path. %q was seen first and drives "+
					"severity and default displays.", n, ps.rec.DefaultSourceID),
			Value: &v,
		})
	}

	// ── All clear ────────────────────────────────────────────────────────────
	if len(hints) == 0 {
		hints = append(hints, DiagnosticHint{
			Key:    "healthy",
			Level:  "ok",
			Title:  "All clear",
			Detail: "The value is fresh, its units are known and it is outside every alerting zone.",
		})
	}

	slices.SortStableFunc(hints, func(a, b DiagnosticHint) int {
		return cmp.Compare(levelRank[a.Level], levelRank[b.Level])
	})
	return hints
}

// overlapping counts zone pairs whose ranges intersect. Zones authored in
// different units are not compared.
func overlapping(zs []types.ZoneDef) int {
	n := 0
	for i := range zs {
		for j := i + 1; j < len(zs); j++ {
			if zs[i].Unit == zs[j].Unit && intersects(zs[i], zs[j]) {
				n++
			}
		}
	}
	return n
}

func intersects(a, b types.ZoneDef) bool {
	// a.lower <= b.upper && b.lower <= a.upper, nil meaning unbounded.
	if a.Lower != nil && b.Upper != nil && *a.Lower > *b.Upper {
		return false
	}
	if b.Lower != nil && a.Upper != nil && *b.Lower > *a.Upper {
		return false
	}
	return true
}
