package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupsFor_KnownMeasure(t *testing.T) {
	e := New()
	def, gs := e.GroupsFor("m/s")
	require.Len(t, gs, 1)
	assert.Equal(t, "Speed", gs[0].Name)
	assert.Equal(t, "knots", def)
}

func TestGroupsFor_EmptyAndUnknown(t *testing.T) {
	e := New()
	for _, m := range []string{"", "furlongs/fortnight"} {
		def, gs := e.GroupsFor(m)
		assert.Equal(t, "unitless", def)
		assert.Len(t, gs, len(Groups()))
	}
}

func TestGroupsFor_PositionFallsBackToFirstMeasure(t *testing.T) {
	def, gs := New().GroupsFor("longitudeSec")
	require.Len(t, gs, 1)
	assert.Equal(t, "latitudeMin", def)
}

func TestSetDefaults(t *testing.T) {
	e := New()
	err := e.SetDefaults(map[string]string{
		"Speed":       "kph",
		"Temperature": "parsecs",
		"Nonsense":    "m",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownUnit)

	d := e.Defaults()
	assert.Equal(t, "kph", d["Speed"])
	assert.Equal(t, "K", d["Temperature"])
	assert.NotContains(t, d, "Nonsense")
	assert.Equal(t, "mmHg", d["Pressure"], "untouched groups keep their default")
}

func TestDefaults_ReturnsCopy(t *testing.T) {
	e := New()
	e.Defaults()["Speed"] = "mph"
	got, _ := e.DefaultFor("Speed")
	assert.Equal(t, "knots", got)
}

func TestDisplay(t *testing.T) {
	e := New()
	v, measure, err := e.Display("K", 300)
	require.NoError(t, err)
	assert.Equal(t, "celsius", measure)
	assert.InDelta(t, 26.85, v, 1e-9)

	_, _, err = e.Display("bogus", 1)
	assert.ErrorIs(t, err, ErrUnknownUnit)
}

func TestDefaultMeasures_BelongToTheirGroups(t *testing.T) {
	for name, measure := range DefaultMeasures {
		g, ok := groupByName(name)
		require.True(t, ok, name)
		assert.True(t, g.Has(measure), "%s default %s", name, measure)
	}
}
