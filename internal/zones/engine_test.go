package zones

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidewatch/tidewatch/internal/config"
	"github.com/tidewatch/tidewatch/internal/notify"
	"github.com/tidewatch/tidewatch/pkg/types"
)

const rpm = "self.propulsion.port.revolutions"

// --- helpers ---

type fakeSource struct {
	zones map[string][]types.ZoneDef
	meta  map[string]*types.MetadataRecord
}

func (f *fakeSource) Zones(path string) []types.ZoneDef { return f.zones[path] }

func (f *fakeSource) Get(path string) (*types.MetadataRecord, bool) {
	m, ok := f.meta[path]
	return m, ok
}

func rpmZones() []types.ZoneDef {
	return []types.ZoneDef{
		{Lower: types.Bound(0), Upper: types.Bound(3000), State: types.SeverityNormal},
		{Lower: types.Bound(3000), Upper: types.Bound(5000), State: types.SeverityAlarm, Message: "over-rev"},
	}
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time           { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newEngine(t *testing.T, src *fakeSource, cfg config.AlertsConfig) (*Engine, *notify.Center, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	center := notify.New()
	return New(cfg, src, WithNotifier(center), WithClock(clk.now)), center, clk
}

// --- tests ---

func TestEvaluate_NormalToAlarm(t *testing.T) {
	src := &fakeSource{zones: map[string][]types.ZoneDef{rpm: rpmZones()}}
	e, center, _ := newEngine(t, src, config.AlertsConfig{})

	_, changed := e.Evaluate(rpm, types.Number(1200))
	assert.False(t, changed, "first normal evaluation")
	assert.Equal(t, types.SeverityNormal, e.Severity(rpm))

	ch, changed := e.Evaluate(rpm, types.Number(3600))
	require.True(t, changed, "change at 3600")
	assert.Equal(t, types.SeverityNormal, ch.Previous)
	assert.Equal(t, types.SeverityAlarm, ch.Current)
	assert.Equal(t, "over-rev", ch.Message)

	active := e.Active()
	require.Len(t, active, 1)
	assert.Equal(t, StateFiring, active[0].State)

	ns := center.List(false)
	require.Len(t, ns, 1)
	assert.Equal(t, notify.LevelAlarm, ns[0].Level)
	assert.Len(t, ns[0].Methods, 2, "default methods are visual and sound")
}

func TestEvaluate_UsesConfiguredMethods(t *testing.T) {
	src := &fakeSource{
		zones: map[string][]types.ZoneDef{rpm: rpmZones()},
		meta:  map[string]*types.MetadataRecord{rpm: {AlarmMethod: []types.Method{types.MethodSound}}},
	}
	e, center, _ := newEngine(t, src, config.AlertsConfig{})
	e.Evaluate(rpm, types.Number(4000))

	ns := center.List(false)
	require.Len(t, ns, 1)
	assert.Equal(t, []types.Method{types.MethodSound}, ns[0].Methods)
}

func TestEvaluate_ZoneUnitConversion(t *testing.T) {
	const p = "self.propulsion.port.temperature"
	src := &fakeSource{zones: map[string][]types.ZoneDef{p: {
		{Lower: types.Bound(80), Unit: "celsius", State: types.SeverityAlarm},
		{Lower: types.Bound(60), Upper: types.Bound(80), Unit: "celsius", State: types.SeverityWarn},
	}}}
	e, _, _ := newEngine(t, src, config.AlertsConfig{})

	e.Evaluate(p, types.Number(343.15)) // 70 C
	assert.Equal(t, types.SeverityWarn, e.Severity(p))
	e.Evaluate(p, types.Number(360)) // 86.85 C
	assert.Equal(t, types.SeverityAlarm, e.Severity(p))
}

func TestEvaluate_BadZoneUnitSkipped(t *testing.T) {
	src := &fakeSource{zones: map[string][]types.ZoneDef{rpm: {
		{Lower: types.Bound(0), Unit: "furlongs", State: types.SeverityEmergency},
	}}}
	e, _, _ := newEngine(t, src, config.AlertsConfig{})
	_, changed := e.Evaluate(rpm, types.Number(10))
	assert.False(t, changed, "zone with unknown unit must not match")
}

func TestEvaluate_IgnoresNonNumericAndZoneless(t *testing.T) {
	src := &fakeSource{zones: map[string][]types.ZoneDef{rpm: rpmZones()}}
	e, _, _ := newEngine(t, src, config.AlertsConfig{})

	_, changed := e.Evaluate(rpm, types.String("fast"))
	assert.False(t, changed, "string value")
	_, changed = e.Evaluate("self.other", types.Number(1))
	assert.False(t, changed, "path without zones")
	assert.Empty(t, e.Severities())
}

func TestEvaluate_ResolveAndCooldown(t *testing.T) {
	src := &fakeSource{zones: map[string][]types.ZoneDef{rpm: rpmZones()}}
	e, center, clk := newEngine(t, src, config.AlertsConfig{Cooldown: 10 * time.Minute})

	e.Evaluate(rpm, types.Number(4000))
	clk.advance(time.Minute)
	ch, changed := e.Evaluate(rpm, types.Number(1000))
	require.True(t, changed)
	require.Equal(t, types.SeverityNormal, ch.Current)

	active := e.Active()
	require.Len(t, active, 1)
	assert.Equal(t, StateResolved, active[0].State)
	assert.NotNil(t, active[0].ResolvedAt)

	clk.advance(time.Minute)
	_, changed = e.Evaluate(rpm, types.Number(4500))
	assert.True(t, changed, "severity change must be reported even under cooldown")
	for _, a := range e.Active() {
		assert.NotEqual(t, StateFiring, a.State, "alarm re-fired inside cooldown")
	}
	// fired + resolved only
	assert.Len(t, center.List(true), 2)

	clk.advance(20 * time.Minute)
	e.Evaluate(rpm, types.Number(100))
	e.Evaluate(rpm, types.Number(4500))
	assert.Len(t, center.List(true), 3)
}

func TestEvaluate_Escalation(t *testing.T) {
	src := &fakeSource{zones: map[string][]types.ZoneDef{rpm: {
		{Lower: types.Bound(3000), Upper: types.Bound(4000), State: types.SeverityWarn},
		{Lower: types.Bound(4000), State: types.SeverityEmergency},
	}}}
	e, _, _ := newEngine(t, src, config.AlertsConfig{})
	e.Evaluate(rpm, types.Number(3500))
	e.Evaluate(rpm, types.Number(4200))

	active := e.Active()
	require.Len(t, active, 1)
	assert.Equal(t, types.SeverityEmergency, active[0].Severity)
}

func TestSubscribe_ReceivesChanges(t *testing.T) {
	src := &fakeSource{zones: map[string][]types.ZoneDef{rpm: rpmZones()}}
	e, _, _ := newEngine(t, src, config.AlertsConfig{})
	ch, cancel := e.Subscribe()
	defer cancel()

	e.Evaluate(rpm, types.Number(3600))
	select {
	case c := <-ch:
		assert.Equal(t, types.SeverityAlarm, c.Current)
	case <-time.After(time.Second):
		require.FailNow(t, "no change delivered")
	}
}

func TestReset(t *testing.T) {
	src := &fakeSource{zones: map[string][]types.ZoneDef{rpm: rpmZones()}}
	e, _, _ := newEngine(t, src, config.AlertsConfig{})
	e.Evaluate(rpm, types.Number(3600))
	e.Reset()
	assert.Equal(t, types.SeverityNormal, e.Severity(rpm))
	assert.Empty(t, e.Active(), "firing alerts survived Reset")
}

func TestWebhookDelivery(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	t.Setenv("TW_SLACK", srv.URL)
	t.Setenv("TW_HTTP", srv.URL)
	cfg := config.AlertsConfig{Webhooks: []config.WebhookConfig{
		{Type: "slack", URLEnv: "TW_SLACK"},
		{Type: "http", URLEnv: "TW_HTTP"},
		{Type: "teams", URLEnv: "TW_UNSET"},
	}}
	src := &fakeSource{zones: map[string][]types.ZoneDef{rpm: rpmZones()}}
	e, _, _ := newEngine(t, src, cfg)

	e.Evaluate(rpm, types.Number(3600))
	e.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 2)
	assert.Contains(t, bodies[0], "[ALARM]")

	var payload struct {
		Alert Alert `json:"alert"`
	}
	require.NoError(t, json.Unmarshal([]byte(bodies[1]), &payload))
	assert.Equal(t, rpm, payload.Alert.Path)
	assert.Equal(t, types.SeverityAlarm, payload.Alert.Severity)
}

func TestPost_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	e := New(config.AlertsConfig{}, &fakeSource{})
	assert.Error(t, e.post(srv.URL, []byte(`{}`)))
}

func TestPayload(t *testing.T) {
	a := &Alert{Path: rpm, Severity: types.SeverityWarn, Value: 3100, Message: "high", State: StateFiring}

	body, err := payload("slack", a)
	require.NoError(t, err)
	assert.Equal(t, `{"text":"*[WARN]* `+rpm+` 3100 high"}`, string(body))

	body, err = payload("teams", a)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"themeColor":"FFAB40"`)

	_, err = payload("pager", a)
	assert.ErrorIs(t, err, errUnknownHook)
}
