package zones

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tidewatch/tidewatch/internal/config"
	"github.com/tidewatch/tidewatch/internal/notify"
	"github.com/tidewatch/tidewatch/pkg/types"
)

const (
	maxHistoryLen     = 200
	recentWindowHours = 1
)

// Alert states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Alert is one zone alarm on a path.
type Alert struct {
	ID         string         `json:"id"`
	Path       string         `json:"path"`
	Severity   types.Severity `json:"severity"`
	Message    string         `json:"message"`
	Value      float64        `json:"value"`
	FiredAt    time.Time      `json:"fired_at"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
	State      string         `json:"state"`
}

// Change is a severity transition on a path.
type Change struct {
	Path     string         `json:"path"`
	Previous types.Severity `json:"previous"`
	Current  types.Severity `json:"current"`
	Value    float64        `json:"value"`
	Message  string         `json:"message,omitempty"`
	At       time.Time      `json:"at"`
}

// Source supplies zone definitions and metadata; meta.Registry satisfies it.
type Source interface {
	Zones(path string) []types.ZoneDef
	Get(path string) (*types.MetadataRecord, bool)
}

// Notifier receives operator-facing notifications.
type Notifier interface {
	Push(notify.Notification) notify.Notification
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier pushes fired and resolved alarms to n.
func WithNotifier(n Notifier) Option { return func(e *Engine) { e.notifier = n } }

// WithClock injects the clock used for alert timestamps and cooldowns.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithHTTPClient overrides the client used for webhook delivery.
func WithHTTPClient(c *http.Client) Option { return func(e *Engine) { e.client = c } }

// Engine tracks per-path severity and the zone alarms derived from it.
//
// Engine is safe for concurrent use.
type Engine struct {
	src      Source
	notifier Notifier
	client   *http.Client
	now      func() time.Time

	mu       sync.Mutex
	webhooks []config.WebhookConfig
	cooldown time.Duration
	severity map[string]types.Severity
	active   map[string]*Alert    // key: path
	lastFire map[string]time.Time // last fire time per path (for cooldown)
	history  []*Alert             // recently resolved alerts
	subs     map[chan Change]struct{}
	delivery sync.WaitGroup
}

// New creates an Engine reading zones from src.
func New(cfg config.AlertsConfig, src Source, opts ...Option) *Engine {
	e := &Engine{
		src:      src,
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
		severity: make(map[string]types.Severity),
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		subs:     make(map[chan Change]struct{}),
	}
	e.Configure(cfg)
	for _, o := range opts {
		o(e)
	}
	return e
}

// Configure swaps the cooldown and webhook targets, e.g. after a config reload.
func (e *Engine) Configure(cfg config.AlertsConfig) {
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = config.DefaultCooldown
	}
	e.mu.Lock()
	e.cooldown = cooldown
	e.webhooks = append([]config.WebhookConfig(nil), cfg.Webhooks...)
	e.mu.Unlock()
}

// Evaluate re-evaluates path with its new canonical value v. It returns the
// transition and true when the severity changed. Non-numeric values and
// paths that never had zones are ignored.
func (e *Engine) Evaluate(path string, v types.Value) (Change, bool) {
	f, ok := v.Float()
	if !ok {
		return Change{}, false
	}
	zones := e.src.Zones(path)

	e.mu.Lock()
	prev, known := e.severity[path]
	if !known && len(zones) == 0 {
		e.mu.Unlock()
		return Change{}, false
	}
	if !known {
		prev = types.SeverityNormal
	}

	sev, zone := evaluate(zones, f)
	e.severity[path] = sev
	if (known && sev == prev) || (!known && sev == types.SeverityNormal) {
		e.mu.Unlock()
		return Change{}, false
	}

	now := e.now()
	ch := Change{Path: path, Previous: prev, Current: sev, Value: f, At: now}
	if zone != nil {
		ch.Message = zone.Message
	}
	if ch.Message == "" {
		ch.Message = fmt.Sprintf("%s is %s (%.2f)", path, sev, f)
	}

	var fired, resolved *Alert
	switch {
	case sev.Alerting():
		fired = e.fireLocked(ch)
	case prev.Alerting():
		resolved = e.resolveLocked(path, now)
	}
	e.broadcastLocked(ch)
	e.mu.Unlock()

	if fired != nil {
		slog.Warn("zones: alarm fired", "path", path, "severity", sev, "value", f)
		e.announce(fired)
	}
	if resolved != nil {
		slog.Info("zones: alarm resolved", "path", path, "severity", sev)
		e.announce(resolved)
	}
	if fired == nil && resolved == nil {
		slog.Info("zones: severity changed", "path", path, "from", prev, "to", sev)
	}
	return ch, true
}

// fireLocked opens or escalates the alarm of ch.Path. It returns a copy of
// the alert to announce, or nil when the cooldown suppresses it. Caller
// holds e.mu.
func (e *Engine) fireLocked(ch Change) *Alert {
	if a, ok := e.active[ch.Path]; ok {
		a.Severity = ch.Current
		a.Message = ch.Message
		a.Value = ch.Value
		cp := *a
		return &cp
	}
	if ch.At.Sub(e.lastFire[ch.Path]) <= e.cooldown {
		slog.Debug("zones: alarm suppressed by cooldown", "path", ch.Path)
		return nil
	}
	a := &Alert{
		ID:       uuid.Must(uuid.NewV7()).String(),
		Path:     ch.Path,
		Severity: ch.Current,
		Message:  ch.Message,
		Value:    ch.Value,
		FiredAt:  ch.At,
		State:    StateFiring,
	}
	e.active[ch.Path] = a
	e.lastFire[ch.Path] = ch.At
	cp := *a
	return &cp
}

// resolveLocked closes the alarm on path, if any. Caller holds e.mu.
func (e *Engine) resolveLocked(path string, now time.Time) *Alert {
	a, ok := e.active[path]
	if !ok {
		return nil
	}
	delete(e.active, path)
	resolvedAt := now
	a.State = StateResolved
	a.ResolvedAt = &resolvedAt

	e.history = append(e.history, a)
	if len(e.history) > maxHistoryLen {
		e.history = e.history[len(e.history)-maxHistoryLen:]
	}
	cp := *a
	return &cp
}

// announce pushes a notification and starts webhook delivery.
func (e *Engine) announce(a *Alert) {
	if e.notifier != nil {
		n := notify.Notification{
			Title:   fmt.Sprintf("%s: %s", a.Severity, a.Path),
			Message: a.Message,
			Path:    a.Path,
		}
		sev := a.Severity
		n.Severity = &sev
		if a.State == StateFiring {
			n.Level = notify.LevelAlarm
			n.Methods = e.methods(a.Path, a.Severity)
		} else {
			n.Level = notify.LevelInfo
			n.Title = "Resolved: " + a.Path
		}
		e.notifier.Push(n)
	}

	e.mu.Lock()
	hooks := e.webhooks
	e.mu.Unlock()
	if len(hooks) == 0 {
		return
	}
	e.delivery.Add(1)
	go func() {
		defer e.delivery.Done()
		e.deliver(hooks, a)
	}()
}

// methods returns the configured notification methods for s on path,
// defaulting to visual and sound.
func (e *Engine) methods(path string, s types.Severity) []types.Method {
	if rec, ok := e.src.Get(path); ok {
		if ms := rec.Methods(s); len(ms) > 0 {
			return ms
		}
	}
	return []types.Method{types.MethodVisual, types.MethodSound}
}

func (e *Engine) broadcastLocked(ch Change) {
	for sub := range e.subs {
		select {
		case sub <- ch:
		default:
		}
	}
}

// Subscribe returns a channel of severity changes and a cancel function
// that closes it. Slow subscribers miss changes.
func (e *Engine) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, 32)
	e.mu.Lock()
	e.subs[ch] = struct{}{}
	e.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, ch)
			e.mu.Unlock()
			close(ch)
		})
	}
}

// Severity returns the current severity of path; SeverityNormal when it has
// never been evaluated.
func (e *Engine) Severity(path string) types.Severity {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.severity[path]; ok {
		return s
	}
	return types.SeverityNormal
}

// Severities returns a copy of every tracked severity.
func (e *Engine) Severities() map[string]types.Severity {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]types.Severity, len(e.severity))
	for p, s := range e.severity {
		out[p] = s
	}
	return out
}

// Active returns copies of all firing alerts plus alerts resolved within
// the past hour.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindowHours * time.Hour)
	out := make([]*Alert, 0, len(e.active))
	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out
}

// Reset forgets tracked severities and firing alarms, e.g. when the
// transport reconnects and the value store is cleared. History and
// cooldowns are kept.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.severity = make(map[string]types.Severity)
	e.active = make(map[string]*Alert)
}

// Wait blocks until in-flight webhook deliveries finish.
func (e *Engine) Wait() { e.delivery.Wait() }
