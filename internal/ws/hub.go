package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tidewatch/tidewatch/internal/notify"
	"github.com/tidewatch/tidewatch/internal/subscription"
	"github.com/tidewatch/tidewatch/internal/zones"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth.
	sendBufSize = 64

	// maxCommandSize bounds one inbound command frame.
	maxCommandSize = 4096
)

// Event names.
const (
	EventHello        = "hello"
	EventSubscribed   = "subscribed"
	EventUnsubscribed = "unsubscribed"
	EventValue        = "value"
	EventSeverity     = "severity"
	EventNotification = "notification"
	EventError        = "error"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins; callers should apply CORS at the reverse-proxy level.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is the JSON envelope sent to clients.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Command is a client request.
type Command struct {
	Action string `json:"action"`
	Path   string `json:"path"`
	Policy string `json:"policy,omitempty"`
}

// Subscriber is the subscription multiplexer.
type Subscriber interface {
	Subscribe(consumerID, path string, policy subscription.Policy, opts ...subscription.Option) (subscription.Delivery, *subscription.Handle)
	Unsubscribe(consumerID, path string) bool
	UnsubscribeAll(consumerID string) int
}

// SeveritySource streams severity changes; zones.Engine satisfies it.
type SeveritySource interface {
	Subscribe() (<-chan zones.Change, func())
}

// NotificationSource streams notifications; notify.Center satisfies it.
type NotificationSource interface {
	Subscribe() (<-chan notify.Notification, func())
}

// Option configures a Hub.
type Option func(*Hub)

// WithSeverity forwards severity changes from src to every client.
func WithSeverity(src SeveritySource) Option { return func(h *Hub) { h.severity = src } }

// WithNotifications forwards notifications from src to every client.
func WithNotifications(src NotificationSource) Option { return func(h *Hub) { h.notes = src } }

// Hub manages WebSocket consumers.
type Hub struct {
	subs     Subscriber
	severity SeveritySource
	notes    NotificationSource

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// client represents one connected WebSocket consumer.
type client struct {
	id   string
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// New creates a Hub whose clients subscribe through subs.
func New(subs Subscriber, opts ...Option) *Hub {
	h := &Hub{
		subs:    subs,
		clients: make(map[*client]struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Run forwards severity changes and notifications to all connected
// clients. Run blocks until ctx is cancelled, then closes all active
// connections.
func (h *Hub) Run(ctx context.Context) {
	var (
		sevC  <-chan zones.Change
		noteC <-chan notify.Notification
	)
	if h.severity != nil {
		ch, cancel := h.severity.Subscribe()
		defer cancel()
		sevC = ch
	}
	if h.notes != nil {
		ch, cancel := h.notes.Subscribe()
		defer cancel()
		noteC = ch
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case ch, ok := <-sevC:
			if !ok {
				sevC = nil
				continue
			}
			h.broadcast(EventSeverity, ch)
		case n, ok := <-noteC:
			if !ok {
				noteC = nil
				continue
			}
			h.broadcast(EventNotification, n)
		}
	}
}

// ServeHTTP upgrades the HTTP connection to WebSocket and serves the client
// until the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufSize),
	}
	h.register(c)
	defer func() {
		n := h.subs.UnsubscribeAll(c.id)
		h.unregister(c)
		slog.Debug("ws: client disconnected", "consumer", c.id, "subscriptions", n)
	}()
	slog.Debug("ws: client connected", "consumer", c.id, "remote", r.RemoteAddr)

	h.push(c, EventHello, map[string]string{"consumerId": c.id})

	go c.writePump()
	h.readPump(c) // blocks until connection closes
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// --- internal ---------------------------------------------------------------

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// handle executes one client command.
func (h *Hub) handle(c *client, cmd Command) {
	if cmd.Path == "" {
		h.push(c, EventError, map[string]string{"error": "path is required"})
		return
	}
	switch cmd.Action {
	case "subscribe":
		policy := subscription.Policy(cmd.Policy)
		initial, _ := h.subs.Subscribe(c.id, cmd.Path, policy,
			subscription.WithCallback(func(d subscription.Delivery) {
				h.push(c, EventValue, d)
			}))
		h.push(c, EventSubscribed, cmd)
		if !initial.IsNull() {
			h.push(c, EventValue, initial)
		}
	case "unsubscribe":
		if !h.subs.Unsubscribe(c.id, cmd.Path) {
			h.push(c, EventError, map[string]string{"error": "not subscribed", "path": cmd.Path})
			return
		}
		h.push(c, EventUnsubscribed, cmd)
	default:
		h.push(c, EventError, map[string]string{"error": "unknown action " + cmd.Action})
	}
}

// push queues one event for c, dropping the client when it cannot keep up.
func (h *Hub) push(c *client, event string, data any) {
	msg, err := json.Marshal(Message{Event: event, Data: data})
	if err != nil {
		slog.Error("ws: encode event", "event", event, "err", err)
		return
	}
	if !c.enqueue(msg) {
		h.drop(c)
	}
}

func (h *Hub) broadcast(event string, data any) {
	msg, err := json.Marshal(Message{Event: event, Data: data})
	if err != nil {
		slog.Error("ws: encode event", "event", event, "err", err)
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(msg) {
			h.drop(c)
		}
	}
}

// drop disconnects a client whose outgoing buffer is full. Its
// subscriptions are removed when its read loop exits.
func (h *Hub) drop(c *client) {
	h.mu.RLock()
	_, live := h.clients[c]
	h.mu.RUnlock()
	if live {
		slog.Warn("ws: client too slow, disconnecting", "consumer", c.id)
	}
	h.unregister(c)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
		delete(h.clients, c)
	}
	h.mu.Unlock()
	for _, c := range targets {
		c.close()
	}
}

// enqueue queues msg without blocking. It reports false when the buffer is
// full; a closed client silently discards.
func (c *client) enqueue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// writePump drains the client's send channel and forwards messages to the
// WebSocket connection. It also sends periodic ping frames. Runs in its own
// goroutine per client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// Channel was closed (hub is shutting down or client removed).
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads commands from the connection and detects disconnects.
// Blocks until the connection closes.
func (h *Hub) readPump(c *client) {
	defer c.conn.Close()
	c.conn.SetReadLimit(maxCommandSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			h.push(c, EventError, map[string]string{"error": "invalid command: " + err.Error()})
			continue
		}
		h.handle(c, cmd)
	}
}
