package configstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidewatch/tidewatch/pkg/types"
)

func openBackends(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	out := make(map[string]Store)
	for backend, name := range map[string]string{"file": "store.yaml", "sqlite": "store.db"} {
		s, err := Open(backend, filepath.Join(dir, name))
		require.NoError(t, err, backend)
		t.Cleanup(func() { s.Close() })
		out[backend] = s
	}
	return out
}

func depthZones() []types.PathZones {
	return []types.PathZones{
		{Path: "self.environment.depth.belowKeel", Zones: []types.ZoneDef{
			{Upper: types.Bound(2), State: types.SeverityAlarm, Message: "shallow"},
			{Lower: types.Bound(2), Upper: types.Bound(5), State: types.SeverityWarn},
		}},
		{Path: "self.electrical.batteries.house.voltage", Zones: []types.ZoneDef{
			{Upper: types.Bound(11.8), Unit: "V", State: types.SeverityAlert},
		}},
	}
}

func TestStores_EmptyOnFirstOpen(t *testing.T) {
	for backend, s := range openBackends(t) {
		t.Run(backend, func(t *testing.T) {
			pzs, err := s.LoadZones()
			require.NoError(t, err)
			assert.Empty(t, pzs)

			_, err = s.LoadUnitDefaults()
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStores_ZonesRoundTrip(t *testing.T) {
	for backend, s := range openBackends(t) {
		t.Run(backend, func(t *testing.T) {
			want := depthZones()
			require.NoError(t, s.SaveZones(want))

			got, err := s.LoadZones()
			require.NoError(t, err)
			require.Len(t, got, 2)

			byPath := make(map[string][]types.ZoneDef)
			for _, pz := range got {
				byPath[pz.Path] = pz.Zones
			}
			for _, pz := range want {
				assert.Equal(t, pz.Zones, byPath[pz.Path], pz.Path)
			}
		})
	}
}

func TestStores_SaveZonesReplacesPrevious(t *testing.T) {
	for backend, s := range openBackends(t) {
		t.Run(backend, func(t *testing.T) {
			require.NoError(t, s.SaveZones(depthZones()))
			require.NoError(t, s.SaveZones([]types.PathZones{
				{Path: "self.navigation.speedOverGround", Zones: []types.ZoneDef{}},
			}))

			got, err := s.LoadZones()
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "self.navigation.speedOverGround", got[0].Path)
			assert.Empty(t, got[0].Zones)
		})
	}
}

func TestStores_UnitDefaultsKeptAcrossZoneSaves(t *testing.T) {
	for backend, s := range openBackends(t) {
		t.Run(backend, func(t *testing.T) {
			units := map[string]string{"Speed": "kph", "Temperature": "fahrenheit"}
			require.NoError(t, s.SaveUnitDefaults(units))
			require.NoError(t, s.SaveZones(depthZones()))

			got, err := s.LoadUnitDefaults()
			require.NoError(t, err)
			assert.Equal(t, units, got)
		})
	}
}

func TestSQLite_PreservesSaveOrder(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "order.db"))
	require.NoError(t, err)
	defer s.Close()

	pzs := []types.PathZones{{Path: "z.last"}, {Path: "a.first"}, {Path: "m.middle"}}
	require.NoError(t, s.SaveZones(pzs))

	got, err := s.LoadZones()
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"z.last", "a.first", "m.middle"},
		[]string{got[0].Path, got[1].Path, got[2].Path})
}

func TestSQLite_ReopenKeepsData(t *testing.T) {
	p := filepath.Join(t.TempDir(), "reopen.db")
	s, err := OpenSQLite(p)
	require.NoError(t, err)
	require.NoError(t, s.SaveZones(depthZones()))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(p)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.LoadZones()
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestFileStore_ReadsHandWrittenYAML(t *testing.T) {
	p := filepath.Join(t.TempDir(), "store.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`zones:
  self.environment.depth.belowKeel:
    - upper: 2
      state: emergency
      message: aground
units:
  Length: ft
`), 0o600))

	s, err := NewFileStore(p)
	require.NoError(t, err)

	pzs, err := s.LoadZones()
	require.NoError(t, err)
	require.Len(t, pzs, 1)
	require.Len(t, pzs[0].Zones, 1)
	z := pzs[0].Zones[0]
	assert.Equal(t, types.SeverityEmergency, z.State)
	assert.Nil(t, z.Lower)
	require.NotNil(t, z.Upper)
	assert.Equal(t, 2.0, *z.Upper)

	units, err := s.LoadUnitDefaults()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Length": "ft"}, units)
}

func TestFileStore_SchemaRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown state", "zones:\n  a.b:\n    - state: panic\n"},
		{"missing state", "zones:\n  a.b:\n    - upper: 3\n"},
		{"non-numeric bound", "zones:\n  a.b:\n    - lower: two\n      state: warn\n"},
		{"unknown zone field", "zones:\n  a.b:\n    - state: warn\n      colour: red\n"},
		{"unknown top-level key", "alarms: {}\n"},
		{"non-string unit", "units:\n  Speed: 3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), "store.yaml")
			require.NoError(t, os.WriteFile(p, []byte(tt.body), 0o600))
			s, err := NewFileStore(p)
			require.NoError(t, err)

			_, err = s.LoadZones()
			assert.ErrorContains(t, err, "configstore: invalid")
		})
	}
}

func TestFileStore_Watch(t *testing.T) {
	p := filepath.Join(t.TempDir(), "store.yaml")
	s, err := NewFileStore(p)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changed := make(chan struct{}, 8)
	done := make(chan error, 1)
	go func() {
		done <- s.Watch(ctx, func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		})
	}()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-changed:
			cancel()
			require.NoError(t, <-done)
			return
		case <-tick.C:
			require.NoError(t, s.SaveZones(depthZones()))
		case <-deadline:
			require.FailNow(t, "no change observed")
		}
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open("etcd", "x")
	assert.ErrorIs(t, err, ErrUnknownBackend)
}
