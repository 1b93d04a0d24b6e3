package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tidewatch/tidewatch/pkg/types"
)

// Level is the display class of a notification.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelAlarm Level = "alarm"
)

// MaxHistory caps the number of notifications retained.
const MaxHistory = 200

// Notification is one operator-facing event.
type Notification struct {
	ID        string          `json:"id"`
	Time      time.Time       `json:"time"`
	Level     Level           `json:"level"`
	Title     string          `json:"title"`
	Message   string          `json:"message,omitempty"`
	Path      string          `json:"path,omitempty"`
	Severity  *types.Severity `json:"severity,omitempty"`
	Methods   []types.Method  `json:"methods,omitempty"`
	Dismissed bool            `json:"dismissed"`
}

// Center stores notifications and fans new ones out to subscribers.
// It is safe for concurrent use.
type Center struct {
	mu    sync.Mutex
	items []Notification
	subs  map[chan Notification]struct{}
	now   func() time.Time // injectable for deterministic tests
}

// New returns an empty Center.
func New() *Center {
	return &Center{
		subs: make(map[chan Notification]struct{}),
		now:  time.Now,
	}
}

// Push records n, filling in ID and Time when unset, and returns the stored
// copy. Subscribers that are not keeping up miss the event.
func (c *Center) Push(n Notification) Notification {
	if n.ID == "" {
		n.ID = uuid.Must(uuid.NewV7()).String()
	}
	c.mu.Lock()
	if n.Time.IsZero() {
		n.Time = c.now()
	}
	n.Dismissed = false
	c.items = append(c.items, n)
	if len(c.items) > MaxHistory {
		c.items = c.items[len(c.items)-MaxHistory:]
	}
	for ch := range c.subs {
		select {
		case ch <- n:
		default:
		}
	}
	c.mu.Unlock()
	return n
}

// List returns notifications, newest first. Dismissed ones are included
// only when all is true.
func (c *Center) List(all bool) []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notification, 0, len(c.items))
	for i := len(c.items) - 1; i >= 0; i-- {
		n := c.items[i]
		if n.Dismissed && !all {
			continue
		}
		n.Methods = append([]types.Method(nil), n.Methods...)
		out = append(out, n)
	}
	return out
}

// Dismiss marks the notification with id as dismissed. It reports whether
// such a notification exists.
func (c *Center) Dismiss(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].ID == id {
			c.items[i].Dismissed = true
			return true
		}
	}
	return false
}

// Subscribe returns a channel receiving every notification pushed from now
// on, and a function that cancels the subscription and closes the channel.
func (c *Center) Subscribe() (<-chan Notification, func()) {
	ch := make(chan Notification, 16)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, ch)
			c.mu.Unlock()
			close(ch)
		})
	}
}
