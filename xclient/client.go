package xclient

import (
	"context"
	"fmt"
	"reflect"
	"runtime/debug"
	"sync/atomic"

	"github.com/trickstertwo/xcaller"
	"github.com/trickstertwo/xlog"
)

type (
	// Executor is the serial execution context handled callbacks run on.
	Executor = xcaller.Executor
	// Environment derives the default Executor of a Client.
	Environment = xcaller.Environment
)

// Connector is the dispatcher a Client decorates: anything that can be
// registered on, fired, and asked to start its work.
type Connector interface {
	xcaller.Dispatcher
	Connect(ctx context.Context) error
}

// HandledCallback runs on the Client's executor. It receives the Client
// rather than the bare dispatcher so it can keep using marshaled callbacks.
type HandledCallback func(ctx context.Context, c *Client, payload any) error

// TypedHandledCallback is a HandledCallback whose payload was asserted to T.
type TypedHandledCallback[T any] func(ctx context.Context, c *Client, payload T) error

type envRef struct{ env Environment }
type execRef struct{ exec Executor }

// Client decorates a Connector so that selected callbacks run on a serial
// Executor instead of on whichever goroutine fires. Every Dispatcher method
// and Connect are promoted from the wrapped Connector unchanged.
type Client struct {
	Connector

	env    atomic.Pointer[envRef]
	exec   atomic.Pointer[execRef]
	frozen atomic.Bool
	logger *xlog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for failures on the executor.
func WithLogger(l *xlog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New wraps base, running handled callbacks on env's main executor.
func New(env Environment, base Connector, opts ...Option) (*Client, error) {
	if env == nil {
		return nil, fmt.Errorf("%w: environment is required", xcaller.ErrInvalidArgument)
	}
	exec := env.MainExecutor()
	if exec == nil {
		return nil, fmt.Errorf("%w: environment has no main executor", xcaller.ErrInvalidArgument)
	}
	return NewWithExecutor(env, exec, base, opts...)
}

// NewWithExecutor wraps base with an explicit executor.
func NewWithExecutor(env Environment, exec Executor, base Connector, opts ...Option) (*Client, error) {
	switch {
	case env == nil:
		return nil, fmt.Errorf("%w: environment is required", xcaller.ErrInvalidArgument)
	case exec == nil:
		return nil, fmt.Errorf("%w: executor is required", xcaller.ErrInvalidArgument)
	case base == nil:
		return nil, fmt.Errorf("%w: connector is required", xcaller.ErrInvalidArgument)
	}
	c := &Client{Connector: base}
	c.env.Store(&envRef{env: env})
	c.exec.Store(&execRef{exec: exec})
	for _, o := range opts {
		if o != nil {
			o(c)
		}
	}
	if c.logger == nil {
		c.logger = loggerOf(base)
	}
	return c, nil
}

// Copy returns a new Client over the same connector with the same
// environment and executor. Later setters on either do not affect the other.
func Copy(other *Client) (*Client, error) {
	if other == nil {
		return nil, fmt.Errorf("%w: client is required", xcaller.ErrInvalidArgument)
	}
	return NewWithExecutor(other.Environment(), other.Executor(), other.Connector, WithLogger(other.logger))
}

func loggerOf(base Connector) *xlog.Logger {
	if lp, ok := base.(interface{ Logger() *xlog.Logger }); ok {
		if l := lp.Logger(); l != nil {
			return l
		}
	}
	return xlog.Default()
}

// OnHandled registers cb for action; cb runs on the executor.
func (c *Client) OnHandled(action xcaller.Action, cb HandledCallback) error {
	if cb == nil {
		return fmt.Errorf("%w: callback is required", xcaller.ErrInvalidArgument)
	}
	return c.On(action, c.marshal(action, cb))
}

// OnHandledPattern registers cb for every action whose name matches pattern.
func (c *Client) OnHandledPattern(pattern string, cb HandledCallback) error {
	return c.OnHandledPatternOf(nil, pattern, cb)
}

// OnHandledPatternOf is OnHandledPattern with a payload type filter.
func (c *Client) OnHandledPatternOf(filter reflect.Type, pattern string, cb HandledCallback) error {
	if cb == nil {
		return fmt.Errorf("%w: callback is required", xcaller.ErrInvalidArgument)
	}
	return c.OnPatternOf(filter, pattern, c.marshal(xcaller.Action{}, cb))
}

// OnHandledActions registers cb for each of actions.
func (c *Client) OnHandledActions(cb HandledCallback, actions ...xcaller.Action) error {
	if cb == nil {
		return fmt.Errorf("%w: callback is required", xcaller.ErrInvalidArgument)
	}
	for _, a := range actions {
		if a.IsZero() {
			continue
		}
		if err := c.On(a, c.marshal(a, cb)); err != nil {
			return err
		}
	}
	return nil
}

// OnHandledTyped registers fn for sel with T as the payload filter.
func OnHandledTyped[T any](c *Client, sel xcaller.Selector, fn TypedHandledCallback[T]) error {
	if fn == nil {
		return fmt.Errorf("%w: callback is required", xcaller.ErrInvalidArgument)
	}
	exact, _ := sel.(xcaller.Action)
	return c.Register(sel, reflect.TypeFor[T](), c.marshal(exact, func(ctx context.Context, c *Client, payload any) error {
		v, _ := payload.(T)
		return fn(ctx, c, v)
	}))
}

// marshal returns the callback registered on the connector. It runs inline
// in Fire and only posts; the executor is read at fire time so a later
// SetExecutor reroutes callbacks registered earlier.
//
// The fired action is taken from the dispatch context a *xcaller.Caller
// sets. A connector that does not set it gets registered instead, which
// is the exact action for OnHandled and OnHandledActions and zero for
// pattern registrations.
func (c *Client) marshal(registered xcaller.Action, cb HandledCallback) xcaller.Callback {
	return func(ctx context.Context, _ xcaller.Dispatcher, payload any) error {
		action, ok := xcaller.ActionFromContext(ctx)
		if !ok {
			action = registered
		}
		detached := context.WithoutCancel(ctx)

		if err := c.Executor().Post(func() { c.run(detached, action, cb, payload) }); err != nil {
			c.notify(xcaller.Event{Type: xcaller.EventPostFailed, Action: action.Name(), Err: err})
			return fmt.Errorf("xclient: post %q: %w", action.Name(), err)
		}
		c.notify(xcaller.Event{Type: xcaller.EventPost, Action: action.Name()})
		return nil
	}
}

// run executes cb on the executor goroutine and reports its failure as an
// Exception on the connector.
func (c *Client) run(ctx context.Context, action xcaller.Action, cb HandledCallback, payload any) {
	err := c.call(ctx, cb, payload)
	if err == nil {
		return
	}
	cbErr := &xcaller.CallbackError{Action: action, Err: err}

	// A failing exception handler is reported, never fired again.
	if action == xcaller.Exception {
		c.marshaledFailed(action, cbErr)
		return
	}
	if ferr := c.Fire(ctx, xcaller.Exception, cbErr); ferr != nil {
		c.marshaledFailed(action, ferr)
	}
}

func (c *Client) call(ctx context.Context, cb HandledCallback, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &xcaller.PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return cb(ctx, c, payload)
}

func (c *Client) marshaledFailed(action xcaller.Action, err error) {
	c.logger.Error().
		Err(err).
		Str("action", action.Name()).
		Msg("xclient: handled callback failure could not be dispatched")
	c.notify(xcaller.Event{Type: xcaller.EventMarshaledFailed, Action: action.Name(), Err: err})
}

func (c *Client) notify(e xcaller.Event) {
	if n, ok := c.Connector.(xcaller.Notifier); ok {
		n.Notify(e)
	}
}

// Environment returns the current environment.
func (c *Client) Environment() Environment { return c.env.Load().env }

// Executor returns the executor handled callbacks are posted to.
func (c *Client) Executor() Executor { return c.exec.Load().exec }

// SetEnvironment replaces the environment. The executor is left as is.
func (c *Client) SetEnvironment(env Environment) error {
	if env == nil {
		return fmt.Errorf("%w: environment is required", xcaller.ErrInvalidArgument)
	}
	if c.frozen.Load() {
		return fmt.Errorf("%w: environment is frozen", xcaller.ErrUnsupportedMutation)
	}
	c.env.Store(&envRef{env: env})
	return nil
}

// SetExecutor replaces the executor. Callbacks fired afterwards are posted
// to exec, including those registered before the swap.
func (c *Client) SetExecutor(exec Executor) error {
	if exec == nil {
		return fmt.Errorf("%w: executor is required", xcaller.ErrInvalidArgument)
	}
	if c.frozen.Load() {
		return fmt.Errorf("%w: executor is frozen", xcaller.ErrUnsupportedMutation)
	}
	c.exec.Store(&execRef{exec: exec})
	return nil
}

// UpdateEnvironment replaces the environment with fn's result. A nil result
// or the current value leaves it unchanged.
func (c *Client) UpdateEnvironment(fn func(Environment) Environment) error {
	if fn == nil {
		return fmt.Errorf("%w: update function is required", xcaller.ErrInvalidArgument)
	}
	if c.frozen.Load() {
		return fmt.Errorf("%w: environment is frozen", xcaller.ErrUnsupportedMutation)
	}
	for {
		old := c.env.Load()
		next := fn(old.env)
		if next == nil || next == old.env {
			return nil
		}
		if c.env.CompareAndSwap(old, &envRef{env: next}) {
			return nil
		}
	}
}

// UpdateExecutor replaces the executor with fn's result. A nil result or
// the current value leaves it unchanged.
func (c *Client) UpdateExecutor(fn func(Executor) Executor) error {
	if fn == nil {
		return fmt.Errorf("%w: update function is required", xcaller.ErrInvalidArgument)
	}
	if c.frozen.Load() {
		return fmt.Errorf("%w: executor is frozen", xcaller.ErrUnsupportedMutation)
	}
	for {
		old := c.exec.Load()
		next := fn(old.exec)
		if next == nil || next == old.exec {
			return nil
		}
		if c.exec.CompareAndSwap(old, &execRef{exec: next}) {
			return nil
		}
	}
}

// Freeze fixes the environment and executor. Setters then fail with
// xcaller.ErrUnsupportedMutation.
func (c *Client) Freeze() { c.frozen.Store(true) }

// Frozen reports whether Freeze was called.
func (c *Client) Frozen() bool { return c.frozen.Load() }

func (c *Client) String() string {
	return fmt.Sprintf("xclient.Client{connector=%T executor=%T frozen=%t}", c.Connector, c.Executor(), c.Frozen())
}
