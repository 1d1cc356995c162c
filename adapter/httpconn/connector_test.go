package httpconn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xcaller"
	"github.com/trickstertwo/xcaller/xclient"
)

type outcome struct {
	mu       sync.Mutex
	actions  []string
	response *Response
	err      error
	self     xcaller.Dispatcher
}

func (o *outcome) record(ctx context.Context, d xcaller.Dispatcher, payload any) error {
	a, _ := xcaller.ActionFromContext(ctx)
	o.mu.Lock()
	defer o.mu.Unlock()
	o.actions = append(o.actions, a.Name())
	o.self = d
	switch p := payload.(type) {
	case *Response:
		o.response = p
	case error:
		o.err = p
	}
	return nil
}

func newConnector(t *testing.T, cfg Config) (*Connector, *outcome) {
	t.Helper()
	c, err := New(cfg)
	require.NoError(t, err)
	o := &outcome{}
	require.NoError(t, c.OnPattern("connected|disconnected|exception", o.record))
	return c, o
}

// TestConnect_Connected checks a successful exchange fires Connected only.
func TestConnect_Connected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "yes", r.Header.Get("X-Test"))
		assert.Equal(t, Defaults().UserAgent, r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c, o := newConnector(t, Defaults())
	c.SetRequest(Request{
		Method: http.MethodPost,
		URL:    srv.URL,
		Header: http.Header{"X-Test": []string{"yes"}},
		Body:   []byte(`{"a":1}`),
	})

	require.NoError(t, c.Connect(context.Background()))
	c.Wait()

	o.mu.Lock()
	defer o.mu.Unlock()
	assert.Equal(t, []string{"connected"}, o.actions)
	require.NotNil(t, o.response)
	assert.Equal(t, http.StatusCreated, o.response.StatusCode)
	assert.Equal(t, "ok", string(o.response.Body))
	assert.False(t, o.response.Truncated)
	assert.Same(t, c, o.self)

	conn, disc := c.Counts()
	assert.Equal(t, uint64(1), conn)
	assert.Equal(t, uint64(0), disc)
}

// TestConnect_Disconnected checks a transport failure fires Disconnected only.
func TestConnect_Disconnected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, o := newConnector(t, Defaults())
	c.UpdateRequest(func(r *Request) { r.URL = url })

	require.NoError(t, c.Connect(context.Background()))
	c.Wait()

	o.mu.Lock()
	defer o.mu.Unlock()
	assert.Equal(t, []string{"disconnected"}, o.actions)
	assert.Error(t, o.err)
}

// TestConnect_Timeout checks the configured timeout ends in Disconnected.
func TestConnect_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := Defaults()
	cfg.Timeout = 50 * time.Millisecond
	c, o := newConnector(t, cfg)
	c.SetRequest(Request{URL: srv.URL})

	require.NoError(t, c.Connect(context.Background()))
	c.Wait()

	o.mu.Lock()
	defer o.mu.Unlock()
	assert.Equal(t, []string{"disconnected"}, o.actions)
	assert.True(t, IsTimeout(o.err), "got %v", o.err)
}

// TestConnect_BodyReadFailure checks Exception is fired before Disconnected.
func TestConnect_BodyReadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		_, _ = w.Write([]byte("short"))
	}))
	defer srv.Close()

	c, o := newConnector(t, Defaults())
	c.SetRequest(Request{URL: srv.URL})

	require.NoError(t, c.Connect(context.Background()))
	c.Wait()

	o.mu.Lock()
	defer o.mu.Unlock()
	assert.Equal(t, []string{"exception", "disconnected"}, o.actions)
	require.Error(t, o.err)
	assert.Contains(t, o.err.Error(), "read body")
}

func TestConnect_TruncatesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	cfg := Defaults()
	cfg.MaxBodyBytes = 10
	c, o := newConnector(t, cfg)
	c.SetRequest(Request{URL: srv.URL})

	require.NoError(t, c.Connect(context.Background()))
	c.Wait()

	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotNil(t, o.response)
	assert.Len(t, o.response.Body, 10)
	assert.True(t, o.response.Truncated)
}

func TestConnect_InvalidRequest(t *testing.T) {
	c, err := New(Defaults())
	require.NoError(t, err)

	assert.ErrorIs(t, c.Connect(context.Background()), xcaller.ErrInvalidArgument)

	c.SetRequest(Request{Method: "BAD METHOD", URL: "http://example.invalid"})
	assert.ErrorIs(t, c.Connect(context.Background()), xcaller.ErrInvalidArgument)
}

// TestRequest_IsCopied checks callers cannot mutate the stored request.
func TestRequest_IsCopied(t *testing.T) {
	c, err := New(Defaults())
	require.NoError(t, err)

	h := http.Header{"A": []string{"1"}}
	c.SetRequest(Request{URL: "http://x", Header: h})
	h.Set("A", "2")

	got := c.Request()
	assert.Equal(t, "1", got.Header.Get("A"))
	got.Header.Set("A", "3")
	assert.Equal(t, "1", c.Request().Header.Get("A"))
}

// TestRegisteredConnector checks the "http" connector is constructible by name.
func TestRegisteredConnector(t *testing.T) {
	assert.Contains(t, xclient.Connectors(), ConnectorName)

	cfg := Defaults()
	cfg.UserAgent = "xcaller-test"
	conn, err := xclient.NewConnector(ConnectorName, cfg.toMap())
	require.NoError(t, err)

	hc, ok := conn.(*Connector)
	require.True(t, ok)
	assert.Equal(t, "xcaller-test", hc.cfg.UserAgent)

	// Known before the first exchange, so patterns resolve.
	assert.True(t, hc.Registry().Has(Connected))
	assert.True(t, hc.Registry().Has(Disconnected))
}

func TestConfigFromMap(t *testing.T) {
	c := ConfigFromMap(map[string]any{
		"timeout":        "2s",
		"user_agent":     "ua",
		"max_body_bytes": 5,
	})
	assert.Equal(t, 2*time.Second, c.Timeout)
	assert.Equal(t, "ua", c.UserAgent)
	assert.Equal(t, int64(5), c.MaxBodyBytes)
	require.NoError(t, c.Validate())

	c.Timeout = -1
	assert.Error(t, c.Validate())
}
