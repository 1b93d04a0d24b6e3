package outbound

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/tidewatch/tidewatch/internal/config"
)

// ErrRejected is returned when the bus answers with a status >= 400.
var ErrRejected = errors.New("outbound: request rejected")

const (
	apiPrefix = "/signalk/v1/api/vessels/self/"

	defaultAttempts   = 3
	backoffInitial    = 250 * time.Millisecond
	backoffMax        = 5 * time.Second
	backoffMultiplier = 2.0
)

// Client sends PUT requests to the bus.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
	attempts int
	initial  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithAttempts bounds how many times a transient failure is tried.
func WithAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// WithBackoff sets the first retry delay.
func WithBackoff(d time.Duration) Option { return func(c *Client) { c.initial = d } }

// New returns a Client for cfg. The bearer token is resolved from the
// environment once, here.
func New(cfg config.OutboundConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultOutboundTimeout
	}
	c := &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		token:    cfg.Token(),
		http:     &http.Client{Timeout: timeout},
		attempts: defaultAttempts,
		initial:  backoffInitial,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// URL returns the request URL for a dotted path. A leading "self." is
// dropped since the URL is already rooted at the self vessel.
func (c *Client) URL(path string) string {
	path = strings.TrimPrefix(path, "self.")
	return c.endpoint + apiPrefix + strings.ReplaceAll(path, ".", "/")
}

// Put sends value to path.
func (c *Client) Put(ctx context.Context, path string, value any) error {
	body, err := json.Marshal(struct {
		Value any `json:"value"`
	}{value})
	if err != nil {
		return fmt.Errorf("outbound: encode %s: %w", path, err)
	}
	url := c.URL(path)

	bo := newBackoff(c.initial)
	for attempt := 1; ; attempt++ {
		err = c.send(ctx, url, body)
		if err == nil {
			slog.Debug("outbound: delivered", "path", path, "attempt", attempt)
			return nil
		}
		if isPermanent(err) || attempt >= c.attempts {
			return err
		}
		wait := bo.next()
		slog.Warn("outbound: put failed, will retry",
			"path", path, "attempt", attempt, "retry_in", wait, "err", err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("outbound: put %s: %w", path, ctx.Err())
		case <-time.After(wait):
		}
	}
}

func (c *Client) send(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return &permanentError{fmt.Errorf("outbound: build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("outbound: put %s: %w", url, err)
	}
	defer resp.Body.Close()
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	if resp.StatusCode >= 400 {
		err := fmt.Errorf("%w: %s: status %d: %s", ErrRejected, url, resp.StatusCode,
			strings.TrimSpace(string(msg)))
		if resp.StatusCode < 500 {
			return &permanentError{err}
		}
		return err
	}
	return nil
}

// permanentError marks a failure that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func isPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Discard is a publisher that drops everything. Hosts without an outbound
// endpoint use it so edits stay local.
type Discard struct{}

// Put logs and returns nil.
func (Discard) Put(_ context.Context, path string, _ any) error {
	slog.Debug("outbound: no endpoint configured, edit kept local", "path", path)
	return nil
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	current time.Duration
}

func newBackoff(initial time.Duration) *backoff {
	return &backoff{current: initial}
}

// next returns the current delay and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}
	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}
