package ingest

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(s *Stats, n int) {
	for i := 0; i < n; i++ {
		s.Record()
	}
}

func TestStats_SecondWindow(t *testing.T) {
	s := NewStats()
	record(s, 3)
	s.TickSecond()
	record(s, 5)
	s.TickSecond()
	s.TickSecond()

	assert.Equal(t, []uint64{3, 5, 0}, s.Seconds())
}

func TestStats_WindowWrapsAt60(t *testing.T) {
	s := NewStats()
	for i := 0; i < WindowSize+10; i++ {
		record(s, i)
		s.TickSecond()
	}
	secs := s.Seconds()
	require.Len(t, secs, WindowSize)
	assert.Equal(t, uint64(10), secs[0])
	assert.Equal(t, uint64(WindowSize+9), secs[WindowSize-1])
}

func TestStats_MinuteIsSumOfSeconds(t *testing.T) {
	s := NewStats()
	for i := 0; i < WindowSize; i++ {
		record(s, 2)
		s.TickSecond()
	}
	s.TickMinute()
	assert.Equal(t, []uint64{120}, s.Minutes())
	assert.Equal(t, uint64(120), s.Snapshot().Total)
}

func TestStats_Subscribe(t *testing.T) {
	s := NewStats()
	ch, cancel := s.Subscribe()
	defer cancel()

	record(s, 4)
	s.TickSecond()
	select {
	case snap := <-ch:
		assert.Equal(t, []uint64{4}, snap.Seconds)
	case <-time.After(time.Second):
		require.FailNow(t, "no snapshot delivered")
	}
}

func TestStats_RunStopsOnCancel(t *testing.T) {
	s := NewStats()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		require.FailNow(t, "Run did not return after cancel")
	}
}

func TestStats_Collector(t *testing.T) {
	s := NewStats()
	record(s, 7)
	s.TickSecond()

	assert.Equal(t, 3, testutil.CollectAndCount(s))

	expected := `
# HELP tidewatch_updates_total Value updates handed to the ingestion coordinator.
# TYPE tidewatch_updates_total counter
tidewatch_updates_total 7
`
	require.NoError(t, testutil.CollectAndCompare(s, strings.NewReader(expected), "tidewatch_updates_total"))
}

func TestStats_WriteText(t *testing.T) {
	s := NewStats()
	record(s, 7)
	s.TickSecond()
	record(s, 1)

	var buf bytes.Buffer
	require.NoError(t, s.WriteText(&buf))

	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(&buf)
	require.NoError(t, err)

	assert.Equal(t, 8.0, value(mfs["tidewatch_updates_total"]))
	assert.Equal(t, 7.0, value(mfs["tidewatch_updates_last_second"]))
	assert.Equal(t, 0.0, value(mfs["tidewatch_updates_last_minute"]))
}

func value(mf *dto.MetricFamily) float64 {
	if mf == nil || len(mf.GetMetric()) == 0 {
		return -1
	}
	m := mf.GetMetric()[0]
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	}
	return -1
}
