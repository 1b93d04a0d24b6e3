package ingest

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// WindowSize is the length of both rolling windows.
const WindowSize = 60

// Snapshot is a copy of the rolling windows, oldest first.
type Snapshot struct {
	Seconds []uint64 `json:"seconds"`
	Minutes []uint64 `json:"minutes"`
	Total   uint64   `json:"total"`
}

// ring is a fixed-size circular buffer of counts.
type ring struct {
	buf  [WindowSize]uint64
	next int
	n    int
}

func (r *ring) push(v uint64) {
	r.buf[r.next] = v
	r.next = (r.next + 1) % WindowSize
	if r.n < WindowSize {
		r.n++
	}
}

// values returns the stored counts, oldest first.
func (r *ring) values() []uint64 {
	out := make([]uint64, 0, r.n)
	start := (r.next - r.n + WindowSize) % WindowSize
	for i := 0; i < r.n; i++ {
		out = append(out, r.buf[(start+i)%WindowSize])
	}
	return out
}

// sum adds up the last k counts.
func (r *ring) sum(k int) uint64 {
	if k > r.n {
		k = r.n
	}
	var total uint64
	for i := 1; i <= k; i++ {
		total += r.buf[(r.next-i+WindowSize)%WindowSize]
	}
	return total
}

// Stats counts ingested updates in a 60-second and a 60-minute window.
// Record is lock-free; ticks are driven by Run or called directly in tests.
type Stats struct {
	current atomic.Uint64
	total   atomic.Uint64

	mu      sync.Mutex
	seconds ring
	minutes ring
	subs    map[chan Snapshot]struct{}

	totalDesc  *prometheus.Desc
	secondDesc *prometheus.Desc
	minuteDesc *prometheus.Desc
}

// NewStats returns empty counters.
func NewStats() *Stats {
	return &Stats{
		subs: make(map[chan Snapshot]struct{}),
		totalDesc: prometheus.NewDesc("tidewatch_updates_total",
			"Value updates handed to the ingestion coordinator.", nil, nil),
		secondDesc: prometheus.NewDesc("tidewatch_updates_last_second",
			"Value updates counted in the last completed second.", nil, nil),
		minuteDesc: prometheus.NewDesc("tidewatch_updates_last_minute",
			"Value updates counted in the last completed minute.", nil, nil),
	}
}

// Record counts one update in the current second.
func (s *Stats) Record() {
	s.current.Add(1)
	s.total.Add(1)
}

// TickSecond closes the current second.
func (s *Stats) TickSecond() {
	n := s.current.Swap(0)
	s.mu.Lock()
	s.seconds.push(n)
	snap := s.snapshotLocked()
	s.broadcastLocked(snap)
	s.mu.Unlock()
}

// TickMinute closes the current minute; its count is the sum of the last
// 60 one-second buckets.
func (s *Stats) TickMinute() {
	s.mu.Lock()
	s.minutes.push(s.seconds.sum(WindowSize))
	snap := s.snapshotLocked()
	s.broadcastLocked(snap)
	s.mu.Unlock()
}

// Run ticks every second, and every minute, until ctx is cancelled.
func (s *Stats) Run(ctx context.Context) {
	t := time.NewTicker(time.Second)
	defer t.Stop()

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.TickSecond()
			ticks++
			if ticks%WindowSize == 0 {
				s.TickMinute()
			}
		}
	}
}

// Seconds returns the per-second counts, oldest first.
func (s *Stats) Seconds() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seconds.values()
}

// Minutes returns the per-minute counts, oldest first.
func (s *Stats) Minutes() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.minutes.values()
}

// Snapshot returns both windows and the running total.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Stats) snapshotLocked() Snapshot {
	return Snapshot{
		Seconds: s.seconds.values(),
		Minutes: s.minutes.values(),
		Total:   s.total.Load(),
	}
}

// Subscribe returns a channel receiving a Snapshot after every tick and a
// cancel function that closes it. Slow subscribers miss snapshots.
func (s *Stats) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Stats) broadcastLocked(snap Snapshot) {
	for ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

// Describe implements prometheus.Collector.
func (s *Stats) Describe(ch chan<- *prometheus.Desc) {
	ch <- s.totalDesc
	ch <- s.secondDesc
	ch <- s.minuteDesc
}

// Collect implements prometheus.Collector.
func (s *Stats) Collect(ch chan<- prometheus.Metric) {
	s.mu.Lock()
	lastSec := s.seconds.sum(1)
	lastMin := s.minutes.sum(1)
	s.mu.Unlock()

	ch <- prometheus.MustNewConstMetric(s.totalDesc, prometheus.CounterValue, float64(s.total.Load()))
	ch <- prometheus.MustNewConstMetric(s.secondDesc, prometheus.GaugeValue, float64(lastSec))
	ch <- prometheus.MustNewConstMetric(s.minuteDesc, prometheus.GaugeValue, float64(lastMin))
}

// WriteText writes the collector's metrics in the Prometheus text format.
func (s *Stats) WriteText(w io.Writer) error {
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(s); err != nil {
		return fmt.Errorf("ingest: register stats: %w", err)
	}
	mfs, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("ingest: gather stats: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("ingest: encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
