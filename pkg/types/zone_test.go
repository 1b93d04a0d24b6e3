package types

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func zone(lower, upper *float64, s Severity) ZoneDef {
	return ZoneDef{Lower: lower, Upper: upper, State: s}
}

func TestZoneDef_Contains(t *testing.T) {
	z := zone(Bound(0), Bound(10), SeverityNormal)
	for _, v := range []float64{0, 5, 10} {
		assert.True(t, z.Contains(v), "Contains(%v)", v)
	}
	for _, v := range []float64{-0.01, 10.01, math.NaN()} {
		assert.False(t, z.Contains(v), "Contains(%v)", v)
	}
	open := zone(nil, Bound(0), SeverityAlarm)
	assert.True(t, open.Contains(-1e9), "nil lower bound should be unbounded")
}

func TestEvaluateZones(t *testing.T) {
	cases := []struct {
		name  string
		zones []ZoneDef
		v     float64
		want  Severity
	}{
		{
			name:  "adjacent zones",
			zones: []ZoneDef{zone(Bound(0), Bound(10), SeverityNormal), zone(Bound(10), Bound(20), SeverityAlarm)},
			v:     15,
			want:  SeverityAlarm,
		},
		{
			name:  "overlap takes highest",
			zones: []ZoneDef{zone(Bound(0), Bound(20), SeverityNormal), zone(Bound(10), Bound(30), SeverityEmergency)},
			v:     15,
			want:  SeverityEmergency,
		},
		{
			name:  "order does not matter",
			zones: []ZoneDef{zone(Bound(10), Bound(30), SeverityEmergency), zone(Bound(0), Bound(20), SeverityWarn)},
			v:     15,
			want:  SeverityEmergency,
		},
		{
			name:  "no match is normal",
			zones: []ZoneDef{zone(Bound(0), Bound(10), SeverityAlarm)},
			v:     50,
			want:  SeverityNormal,
		},
		{
			name:  "nominal match stays nominal",
			zones: []ZoneDef{zone(nil, nil, SeverityNominal)},
			v:     1,
			want:  SeverityNominal,
		},
		{name: "no zones", v: 1, want: SeverityNormal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, EvaluateZones(tc.zones, tc.v))
		})
	}
}

func TestHighestSeverity_DeclinedZonesSkipped(t *testing.T) {
	zones := []ZoneDef{
		{Lower: Bound(0), State: SeverityEmergency, Unit: "bogus"},
		{Lower: Bound(0), State: SeverityWarn},
	}
	s, idx := HighestSeverity(zones, func(z ZoneDef) (float64, bool) { return 5, z.Unit == "" })
	assert.Equal(t, SeverityWarn, s)
	assert.Equal(t, 1, idx)
}

func TestSeverity_TextRoundTrip(t *testing.T) {
	for _, s := range Severities() {
		b, err := s.MarshalText()
		require.NoError(t, err, "MarshalText(%d)", s)
		var back Severity
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, s, back)
	}
	_, err := ParseSeverity("critical")
	assert.Error(t, err)
}

func TestZoneDef_YAML(t *testing.T) {
	src := "lower: 3000\nupper: 5000\nstate: alarm\nmessage: over-rev\n"
	var z ZoneDef
	require.NoError(t, yaml.Unmarshal([]byte(src), &z))
	assert.Equal(t, SeverityAlarm, z.State)
	require.NotNil(t, z.Lower)
	require.NotNil(t, z.Upper)
	assert.Equal(t, 3000.0, *z.Lower)
	assert.Equal(t, 5000.0, *z.Upper)
	assert.Equal(t, "over-rev", z.Message)
}
