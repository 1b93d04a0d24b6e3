package outbound

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidewatch/tidewatch/internal/config"
)

// --- helpers ---

type captured struct {
	method string
	path   string
	auth   string
	body   map[string]any
}

type busServer struct {
	mu   sync.Mutex
	reqs []captured
}

func (b *busServer) handler(status func(n int) int) http.HandlerFunc {
	var n atomic.Int32
	return func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		b.mu.Lock()
		b.reqs = append(b.reqs, captured{r.Method, r.URL.Path, r.Header.Get("Authorization"), body})
		b.mu.Unlock()
		w.WriteHeader(status(int(n.Add(1))))
	}
}

func (b *busServer) requests() []captured {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]captured(nil), b.reqs...)
}

func always(code int) func(int) int { return func(int) int { return code } }

func newTestClient(t *testing.T, status func(int) int, opts ...Option) (*Client, *busServer) {
	t.Helper()
	bus := &busServer{}
	srv := httptest.NewServer(bus.handler(status))
	t.Cleanup(srv.Close)
	opts = append([]Option{WithBackoff(time.Millisecond)}, opts...)
	return New(config.OutboundConfig{Endpoint: srv.URL + "/", TokenEnv: "TW_TEST_TOKEN"}, opts...), bus
}

// --- tests ---

func TestURL(t *testing.T) {
	c := New(config.OutboundConfig{Endpoint: "http://boat.local:3000/"})
	tests := []struct {
		path string
		want string
	}{
		{"self.environment.depth.belowKeel.meta.zones", "http://boat.local:3000/signalk/v1/api/vessels/self/environment/depth/belowKeel/meta/zones"},
		{"navigation.speedOverGround.meta", "http://boat.local:3000/signalk/v1/api/vessels/self/navigation/speedOverGround/meta"},
		{"vessels.self.name", "http://boat.local:3000/signalk/v1/api/vessels/self/vessels/self/name"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.URL(tt.path), tt.path)
	}
}

func TestPut_SendsValueAndToken(t *testing.T) {
	t.Setenv("TW_TEST_TOKEN", "s3cret")
	c, bus := newTestClient(t, always(http.StatusOK))

	require.NoError(t, c.Put(context.Background(), "self.steering.autopilot.target.headingTrue", 1.5))
	reqs := bus.requests()
	require.Len(t, reqs, 1)

	r := reqs[0]
	assert.Equal(t, http.MethodPut, r.method)
	assert.Equal(t, "/signalk/v1/api/vessels/self/steering/autopilot/target/headingTrue", r.path)
	assert.Equal(t, "Bearer s3cret", r.auth)
	assert.Equal(t, 1.5, r.body["value"])
}

func TestPut_NoTokenNoHeader(t *testing.T) {
	t.Setenv("TW_TEST_TOKEN", "")
	c, bus := newTestClient(t, always(http.StatusAccepted))
	require.NoError(t, c.Put(context.Background(), "a.b", "x"))
	assert.Empty(t, bus.requests()[0].auth)
}

func TestPut_ClientErrorIsPermanent(t *testing.T) {
	c, bus := newTestClient(t, always(http.StatusBadRequest), WithAttempts(5))
	err := c.Put(context.Background(), "a.b", 1)
	require.ErrorIs(t, err, ErrRejected)
	assert.Len(t, bus.requests(), 1, "no retry on 4xx")
}

func TestPut_RetriesServerErrors(t *testing.T) {
	// 503 twice, then 200.
	c, bus := newTestClient(t, func(n int) int {
		if n < 3 {
			return http.StatusServiceUnavailable
		}
		return http.StatusOK
	}, WithAttempts(3))

	require.NoError(t, c.Put(context.Background(), "a.b", true))
	assert.Len(t, bus.requests(), 3)
}

func TestPut_GivesUpAfterAttempts(t *testing.T) {
	c, bus := newTestClient(t, always(http.StatusBadGateway), WithAttempts(2))
	err := c.Put(context.Background(), "a.b", 1)
	require.ErrorIs(t, err, ErrRejected)
	assert.Len(t, bus.requests(), 2)
}

func TestPut_ContextCancelledStopsRetry(t *testing.T) {
	c, _ := newTestClient(t, always(http.StatusInternalServerError),
		WithAttempts(100), WithBackoff(time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := c.Put(ctx, "a.b", 1)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second, "Put did not return promptly after cancellation")
}

func TestPut_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(config.OutboundConfig{Endpoint: url}, WithAttempts(1))
	assert.Error(t, c.Put(context.Background(), "a.b", 1))
}

func TestDiscard(t *testing.T) {
	assert.NoError(t, (Discard{}).Put(context.Background(), "a.b", 1))
}

func TestBackoff_NeverExceedsMax(t *testing.T) {
	b := newBackoff(backoffInitial)
	for i := 0; i < 50; i++ {
		assert.LessOrEqual(t, b.next(), backoffMax*2, "backoff[%d]", i)
	}
}
