package httpconn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/trickstertwo/xcaller"
	"github.com/trickstertwo/xcaller/xclient"
	"github.com/trickstertwo/xlog"
)

// Actions fired by a Connector. Exactly one of Connected or Disconnected is
// fired per Connect; Exception may precede it.
var (
	Connected    = xcaller.NewAction[*Response]("connected")
	Disconnected = xcaller.NewAction[error]("disconnected")
)

// ConnectorName is the name the connector is registered under in xclient.
const ConnectorName = "http"

func init() {
	if err := xclient.RegisterConnector(ConnectorName, func(cfg map[string]any) (xclient.Connector, error) {
		return New(ConfigFromMap(cfg))
	}); err != nil {
		panic(fmt.Errorf("xclient: failed to register connector %q: %w", ConnectorName, err))
	}
}

// Request describes the exchange performed by Connect.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

func (r Request) clone() Request {
	r.Header = r.Header.Clone()
	if r.Body != nil {
		r.Body = bytes.Clone(r.Body)
	}
	return r
}

// Response is the payload of Connected.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
	// Truncated is set when the body exceeded Config.MaxBodyBytes.
	Truncated bool
}

// Connector performs one HTTP exchange per Connect and reports its outcome
// as actions. Callbacks registered on it run on the exchange goroutine.
type Connector struct {
	*xcaller.Caller

	cfg    Config
	client *http.Client

	reqMu sync.RWMutex
	req   Request

	inflight  sync.WaitGroup
	connected atomic.Uint64
	failed    atomic.Uint64
}

var _ xclient.Connector = (*Connector)(nil)

// Option configures a Connector.
type Option func(*options)

type options struct {
	caller *xcaller.Caller
	client *http.Client
	logger *xlog.Logger
}

// WithCaller uses c as the dispatcher instead of building a new one.
func WithCaller(c *xcaller.Caller) Option {
	return func(o *options) { o.caller = c }
}

// WithHTTPClient replaces the http.Client; Config.Timeout is then ignored.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.client = hc }
}

// WithLogger injects a custom xlog logger for the built dispatcher.
func WithLogger(l *xlog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New builds a Connector whose dispatcher already knows Connected,
// Disconnected and Exception, so patterns resolve before the first exchange.
func New(cfg Config, opts ...Option) (*Connector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	caller := o.caller
	if caller == nil {
		var err error
		caller, err = xcaller.NewCallerBuilder().
			WithLogger(o.logger).
			WithActions(Connected, Disconnected).
			Build()
		if err != nil {
			return nil, err
		}
	} else {
		caller.Registry().Add(Connected, Disconnected)
	}

	hc := o.client
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	c := &Connector{
		Caller: caller,
		cfg:    cfg,
		client: hc,
		req:    Request{Method: http.MethodGet},
	}
	caller.SetOwner(c)
	return c, nil
}

// Request returns a copy of the current request.
func (c *Connector) Request() Request {
	c.reqMu.RLock()
	defer c.reqMu.RUnlock()
	return c.req.clone()
}

// SetRequest replaces the request used by later Connect calls.
func (c *Connector) SetRequest(r Request) {
	c.reqMu.Lock()
	c.req = r.clone()
	c.reqMu.Unlock()
}

// UpdateRequest mutates the request in place under the connector's lock.
func (c *Connector) UpdateRequest(fn func(r *Request)) {
	if fn == nil {
		return
	}
	c.reqMu.Lock()
	fn(&c.req)
	c.reqMu.Unlock()
}

// Connect starts the exchange on a new goroutine and returns at once.
// Cancelling ctx aborts the exchange, which is then reported as Disconnected.
func (c *Connector) Connect(ctx context.Context) error {
	req := c.Request()
	if req.URL == "" {
		return fmt.Errorf("%w: request url is required", xcaller.ErrInvalidArgument)
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	hreq, err := c.build(ctx, req)
	if err != nil {
		return fmt.Errorf("%w: %v", xcaller.ErrInvalidArgument, err)
	}

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		c.exchange(ctx, hreq)
	}()
	return nil
}

func (c *Connector) build(ctx context.Context, r Request) (*http.Request, error) {
	var body io.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}
	hreq, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}
	if hreq.Header.Get("User-Agent") == "" && c.cfg.UserAgent != "" {
		hreq.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	return hreq, nil
}

func (c *Connector) exchange(ctx context.Context, hreq *http.Request) {
	resp, err := c.client.Do(hreq)
	if err != nil {
		c.disconnected(ctx, err)
		return
	}
	defer resp.Body.Close()

	body, truncated, err := c.readBody(resp.Body)
	if err != nil {
		err = fmt.Errorf("httpconn: read body: %w", err)
		if ferr := c.Fire(ctx, xcaller.Exception, err); ferr != nil {
			c.Logger().Warn().Err(ferr).Msg("httpconn: exception dispatch failed")
		}
		c.disconnected(ctx, err)
		return
	}

	c.connected.Add(1)
	out := &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       body,
		Truncated:  truncated,
	}
	if ferr := c.Fire(ctx, Connected, out); ferr != nil {
		c.Logger().Warn().Err(ferr).Msg("httpconn: connected dispatch failed")
	}
}

func (c *Connector) disconnected(ctx context.Context, err error) {
	c.failed.Add(1)
	if ferr := c.Fire(ctx, Disconnected, err); ferr != nil {
		c.Logger().Warn().Err(ferr).Msg("httpconn: disconnected dispatch failed")
	}
}

func (c *Connector) readBody(r io.Reader) ([]byte, bool, error) {
	if c.cfg.MaxBodyBytes <= 0 {
		b, err := io.ReadAll(r)
		return b, false, err
	}
	b, err := io.ReadAll(io.LimitReader(r, c.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(b)) > c.cfg.MaxBodyBytes {
		return b[:c.cfg.MaxBodyBytes], true, nil
	}
	return b, false, nil
}

// Wait blocks until every exchange started by Connect has fired its outcome.
func (c *Connector) Wait() { c.inflight.Wait() }

// Counts returns how many exchanges ended Connected and Disconnected.
func (c *Connector) Counts() (connected, disconnected uint64) {
	return c.connected.Load(), c.failed.Load()
}

// IsTimeout reports whether a Disconnected payload is a timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
