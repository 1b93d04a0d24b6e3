package subscription

import (
	"log/slog"
	"sync"

	"github.com/tidewatch/tidewatch/pkg/types"
)

// Policy selects which source of a path a subscription follows. Any value
// other than PolicyDefault and PolicyAny names a specific source id.
type Policy string

const (
	// PolicyDefault follows the path's default source.
	PolicyDefault Policy = "default"
	// PolicyAny receives the whole record on every update. The empty
	// policy means the same.
	PolicyAny Policy = "any"
)

func (p Policy) isAny() bool { return p == PolicyAny || p == "" }

// Delivery is one value pushed to a subscriber. Record is set for
// PolicyAny subscriptions; Value is set for the others. A Delivery with
// neither is the null sentinel handed out when nothing is known yet.
type Delivery struct {
	Path   string              `json:"path"`
	Value  *types.SourcedValue `json:"value,omitempty"`
	Record *types.PathRecord   `json:"record,omitempty"`
}

// IsNull reports whether d carries no value.
func (d Delivery) IsNull() bool { return d.Value == nil && d.Record == nil }

// Source is the read side of the path value store.
type Source interface {
	Get(path string) (*types.PathRecord, bool)
}

// Option configures a new subscription.
type Option func(*Handle)

// WithCallback delivers values by calling fn instead of through the
// single-slot channel. fn runs on the publishing goroutine and must not block.
func WithCallback(fn func(Delivery)) Option {
	return func(h *Handle) { h.cb = fn }
}

// Handle is one consumer's interest in one path.
type Handle struct {
	consumerID string
	path       string
	policy     Policy
	cb         func(Delivery)

	mu     sync.Mutex
	ch     chan Delivery
	latest Delivery
	closed bool
}

// C returns the single-slot mailbox. It is closed on unsubscribe. It never
// receives anything when the subscription was created WithCallback.
func (h *Handle) C() <-chan Delivery { return h.ch }

// Latest returns the most recent value delivered, or the initial value.
func (h *Handle) Latest() Delivery {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest
}

func (h *Handle) ConsumerID() string { return h.consumerID }
func (h *Handle) Path() string       { return h.path }
func (h *Handle) Policy() Policy     { return h.policy }

// deliver replaces whatever is pending with d. It is a no-op once closed.
func (h *Handle) deliver(d Delivery) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.latest = d
	cb := h.cb
	if cb == nil {
		select {
		case <-h.ch:
		default:
		}
		select {
		case h.ch <- d:
		default:
		}
	}
	h.mu.Unlock()

	if cb != nil {
		cb(d)
	}
}

func (h *Handle) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.ch)
}

type key struct{ consumer, path string }

// Multiplexer is the registration table of subscriptions.
type Multiplexer struct {
	src Source

	mu     sync.Mutex
	byPath map[string][]*Handle // registration order
	byKey  map[key]*Handle
}

// New creates a Multiplexer reading initial values from src.
func New(src Source) *Multiplexer {
	return &Multiplexer{
		src:    src,
		byPath: make(map[string][]*Handle),
		byKey:  make(map[key]*Handle),
	}
}

// Subscribe registers consumerID's interest in path. The returned Delivery
// is the current value under policy, or the null sentinel. Subscribing an
// existing (consumer, path) pair returns the existing Handle untouched and
// ignores policy and opts.
func (m *Multiplexer) Subscribe(consumerID, path string, policy Policy, opts ...Option) (Delivery, *Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{consumerID, path}
	if h, ok := m.byKey[k]; ok {
		return h.Latest(), h
	}

	h := &Handle{
		consumerID: consumerID,
		path:       path,
		policy:     policy,
		ch:         make(chan Delivery, 1),
	}
	for _, o := range opts {
		o(h)
	}

	initial := Delivery{Path: path}
	if rec, ok := m.src.Get(path); ok {
		if d, ok := resolve(rec, policy); ok {
			initial = d
		}
	}
	h.latest = initial

	m.byKey[k] = h
	m.byPath[path] = append(m.byPath[path], h)
	return initial, h
}

// Unsubscribe removes consumerID's subscription to path. It reports whether
// one existed.
func (m *Multiplexer) Unsubscribe(consumerID, path string) bool {
	m.mu.Lock()
	h, ok := m.byKey[key{consumerID, path}]
	if ok {
		m.remove(h)
	}
	m.mu.Unlock()

	if ok {
		h.close()
	}
	return ok
}

// UnsubscribeAll removes every subscription of consumerID and returns how
// many there were.
func (m *Multiplexer) UnsubscribeAll(consumerID string) int {
	m.mu.Lock()
	var gone []*Handle
	for k, h := range m.byKey {
		if k.consumer == consumerID {
			m.remove(h)
			gone = append(gone, h)
		}
	}
	m.mu.Unlock()

	for _, h := range gone {
		h.close()
	}
	return len(gone)
}

// remove unlinks h. Caller holds m.mu. The per-path slice is rebuilt, not
// edited in place, so snapshots taken by Publish stay valid.
func (m *Multiplexer) remove(h *Handle) {
	delete(m.byKey, key{h.consumerID, h.path})
	hs := m.byPath[h.path]
	next := make([]*Handle, 0, len(hs))
	for _, x := range hs {
		if x != h {
			next = append(next, x)
		}
	}
	if len(next) == 0 {
		delete(m.byPath, h.path)
		return
	}
	m.byPath[h.path] = next
}

// Count returns the number of live subscriptions.
func (m *Multiplexer) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byKey)
}

// Publish pushes the update of sourceID, already applied and captured in
// rec, to every subscription on rec.Path in registration order. Default and
// explicit-source subscriptions only receive updates of the source they
// follow.
func (m *Multiplexer) Publish(rec *types.PathRecord, sourceID string) {
	m.mu.Lock()
	hs := m.byPath[rec.Path]
	m.mu.Unlock()

	for _, h := range hs {
		switch {
		case h.policy.isAny():
		case h.policy == PolicyDefault:
			if sourceID != rec.DefaultSourceID {
				continue
			}
		default:
			if sourceID != string(h.policy) {
				continue
			}
		}
		d, ok := resolve(rec, h.policy)
		if !ok {
			slog.Debug("subscription: source not present, skipped",
				"path", rec.Path, "consumer", h.consumerID, "policy", h.policy)
			continue
		}
		h.deliver(d)
	}
}

// resolve picks the value policy selects from rec.
func resolve(rec *types.PathRecord, policy Policy) (Delivery, bool) {
	if policy.isAny() {
		return Delivery{Path: rec.Path, Record: rec.Clone()}, true
	}
	var (
		sv types.SourcedValue
		ok bool
	)
	if policy == PolicyDefault {
		sv, ok = rec.Default()
	} else {
		sv, ok = rec.Source(string(policy))
	}
	if !ok {
		return Delivery{}, false
	}
	return Delivery{Path: rec.Path, Value: &sv}, true
}
