package subscription

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidewatch/tidewatch/internal/store"
	"github.com/tidewatch/tidewatch/pkg/types"
)

const rpm = "self.propulsion.port.revolutions"

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	st  *store.Store
	mux *Multiplexer
}

func newFixture() *fixture {
	st := store.New()
	return &fixture{st: st, mux: New(st)}
}

// apply mirrors what the ingestion coordinator does for one update.
func (f *fixture) apply(src string, offset time.Duration, v any) {
	out := f.st.ApplyUpdate(types.Update{Path: rpm, SourceID: src, Timestamp: t0.Add(offset), Value: types.ValueOf(v)})
	if !out.Stale {
		f.mux.Publish(out.Record, src)
	}
}

func value(t *testing.T, d Delivery) float64 {
	t.Helper()
	require.NotNil(t, d.Value, "delivery has no value")
	f, ok := d.Value.Value.Float()
	require.True(t, ok)
	return f
}

func recv(t *testing.T, h *Handle) Delivery {
	t.Helper()
	select {
	case d, ok := <-h.C():
		require.True(t, ok, "channel closed")
		return d
	case <-time.After(time.Second):
		require.FailNow(t, "timed out waiting for delivery")
	}
	return Delivery{}
}

func TestSubscribe_NullSentinelWhenUnknown(t *testing.T) {
	f := newFixture()
	initial, h := f.mux.Subscribe("w1", rpm, PolicyDefault)
	assert.True(t, initial.IsNull())
	assert.Equal(t, rpm, initial.Path)
	assert.NotNil(t, h)
}

func TestSubscribe_SeededWithCurrentValue(t *testing.T) {
	f := newFixture()
	f.apply("engineA", 0, 1200)

	initial, _ := f.mux.Subscribe("w1", rpm, PolicyDefault)
	assert.Equal(t, 1200.0, value(t, initial))

	initial, _ = f.mux.Subscribe("w2", rpm, Policy("engineB"))
	assert.True(t, initial.IsNull(), "unknown explicit source seeds null")

	initial, _ = f.mux.Subscribe("w3", rpm, PolicyAny)
	require.NotNil(t, initial.Record)
	assert.Equal(t, "engineA", initial.Record.DefaultSourceID)
}

func TestSubscribe_SamePairReturnsSameHandle(t *testing.T) {
	f := newFixture()
	_, h1 := f.mux.Subscribe("w1", rpm, PolicyDefault)
	_, h2 := f.mux.Subscribe("w1", rpm, PolicyAny)
	assert.Same(t, h1, h2)
	assert.Equal(t, PolicyDefault, h2.Policy())
	assert.Equal(t, 1, f.mux.Count())

	f.apply("engineA", 0, 1200)
	recv(t, h1)
	select {
	case d := <-h1.C():
		require.FailNow(t, "duplicate delivery", "%+v", d)
	default:
	}
}

func TestPublish_EndToEndDefaultPolicy(t *testing.T) {
	f := newFixture()
	var got []float64
	f.mux.Subscribe("w1", rpm, PolicyDefault, WithCallback(func(d Delivery) {
		got = append(got, value(t, d))
	}))

	f.apply("engineA", 0, 1200)
	f.apply("engineA", time.Second, 3600)
	assert.Equal(t, []float64{1200, 3600}, got)
}

func TestPublish_DefaultIgnoresOtherSources(t *testing.T) {
	f := newFixture()
	f.apply("engineA", 0, 1200)

	var got []float64
	f.mux.Subscribe("w1", rpm, PolicyDefault, WithCallback(func(d Delivery) { got = append(got, value(t, d)) }))
	f.apply("engineB", time.Second, 999)
	f.apply("engineA", 2*time.Second, 1300)
	assert.Equal(t, []float64{1300}, got)
}

func TestPublish_ExplicitSource(t *testing.T) {
	f := newFixture()
	var got []float64
	f.mux.Subscribe("w1", rpm, Policy("engineB"), WithCallback(func(d Delivery) { got = append(got, value(t, d)) }))

	f.apply("engineA", 0, 1200)
	f.apply("engineB", time.Second, 1250)
	assert.Equal(t, []float64{1250}, got)
}

func TestPublish_AnyGetsWholeRecord(t *testing.T) {
	f := newFixture()
	var got []*types.PathRecord
	f.mux.Subscribe("w1", rpm, PolicyAny, WithCallback(func(d Delivery) { got = append(got, d.Record) }))

	f.apply("engineA", 0, 1200)
	f.apply("engineB", time.Second, 1250)
	require.Len(t, got, 2)
	assert.Len(t, got[1].Sources, 2)
}

func TestMailbox_KeepsOnlyLatest(t *testing.T) {
	f := newFixture()
	_, h := f.mux.Subscribe("w1", rpm, PolicyDefault)
	for i := 0; i < 5; i++ {
		f.apply("engineA", time.Duration(i)*time.Second, 1000+i)
	}
	assert.Equal(t, 1004.0, value(t, recv(t, h)))
	assert.Equal(t, 1004.0, value(t, h.Latest()))
}

func TestUnsubscribe(t *testing.T) {
	f := newFixture()
	_, h := f.mux.Subscribe("w1", rpm, PolicyDefault)
	assert.True(t, f.mux.Unsubscribe("w1", rpm))
	assert.False(t, f.mux.Unsubscribe("w1", rpm), "second unsubscribe is a no-op")
	assert.Equal(t, 0, f.mux.Count())

	_, ok := <-h.C()
	assert.False(t, ok, "channel should be closed")

	f.apply("engineA", 0, 1200) // must not panic on the closed handle
}

func TestUnsubscribeAll(t *testing.T) {
	f := newFixture()
	f.mux.Subscribe("w1", rpm, PolicyDefault)
	f.mux.Subscribe("w1", "self.navigation.speedOverGround", PolicyDefault)
	f.mux.Subscribe("w2", rpm, PolicyDefault)

	assert.Equal(t, 2, f.mux.UnsubscribeAll("w1"))
	assert.Equal(t, 1, f.mux.Count())
}

func TestUnsubscribeDuringFanOut(t *testing.T) {
	f := newFixture()
	var mu sync.Mutex
	calls := map[string]int{}
	for _, c := range []string{"a", "b", "c"} {
		f.mux.Subscribe(c, rpm, PolicyDefault, WithCallback(func(Delivery) {
			mu.Lock()
			calls[c]++
			mu.Unlock()
			// Each consumer drops itself and a neighbour mid-iteration.
			f.mux.Unsubscribe(c, rpm)
			f.mux.Unsubscribe("c", rpm)
		}))
	}

	f.apply("engineA", 0, 1)
	f.apply("engineA", time.Second, 2)

	assert.Equal(t, 1, calls["a"])
	assert.Equal(t, 1, calls["b"])
	assert.Equal(t, 0, calls["c"], "c was removed before its turn")
	assert.Equal(t, 0, f.mux.Count())
}

func TestConcurrentSubscribeAndPublish(t *testing.T) {
	f := newFixture()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			_, h := f.mux.Subscribe(id, rpm, PolicyDefault)
			h.Latest()
			f.mux.Unsubscribe(id, rpm)
		}(i)
		go func(i int) {
			defer wg.Done()
			rec := &types.PathRecord{
				Path:            rpm,
				DefaultSourceID: "engineA",
				Sources:         map[string]types.SourcedValue{"engineA": {SourceID: "engineA", Value: types.Number(float64(i))}},
			}
			f.mux.Publish(rec, "engineA")
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, f.mux.Count())
}
