package xcaller

import (
	"context"
	"fmt"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// CallerBuilder constructs Caller instances (Builder pattern).
type CallerBuilder struct {
	registry    *Registry
	actions     []Action
	middlewares []Middleware
	observers   []Observer
	logger      *xlog.Logger
	clock       xclock.Clock

	poolEnabled bool
	poolWorkers int
	poolBuffer  int
}

// NewCallerBuilder returns a new builder with sensible defaults.
func NewCallerBuilder() *CallerBuilder {
	return &CallerBuilder{}
}

// WithRegistry shares an action registry between dispatchers, so patterns
// resolve against actions any of them has seen.
func (cb *CallerBuilder) WithRegistry(r *Registry) *CallerBuilder {
	cb.registry = r
	return cb
}

// WithActions seeds the registry with actions known before they are fired.
func (cb *CallerBuilder) WithActions(actions ...Action) *CallerBuilder {
	cb.actions = append(cb.actions, actions...)
	return cb
}

func (cb *CallerBuilder) WithMiddleware(mw ...Middleware) *CallerBuilder {
	if len(mw) == 0 {
		return cb
	}
	cb.middlewares = append(cb.middlewares, mw...)
	return cb
}

func (cb *CallerBuilder) WithObserver(obs ...Observer) *CallerBuilder {
	for _, o := range obs {
		if o != nil {
			cb.observers = append(cb.observers, o)
		}
	}
	return cb
}

func (cb *CallerBuilder) WithLogger(l *xlog.Logger) *CallerBuilder {
	cb.logger = l
	return cb
}

func (cb *CallerBuilder) WithClock(c xclock.Clock) *CallerBuilder {
	cb.clock = c
	return cb
}

// WithObserverPool delivers observer events asynchronously from a worker
// pool instead of inline on the firing goroutine.
func (cb *CallerBuilder) WithObserverPool(workers, bufferSize int) *CallerBuilder {
	cb.poolEnabled = true
	cb.poolWorkers = workers
	cb.poolBuffer = bufferSize
	return cb
}

func (cb *CallerBuilder) Build() (*Caller, error) {
	if cb.poolEnabled && (cb.poolWorkers < 0 || cb.poolBuffer < 0) {
		return nil, fmt.Errorf("%w: observer pool workers=%d buffer=%d", ErrInvalidArgument, cb.poolWorkers, cb.poolBuffer)
	}

	reg := cb.registry
	if reg == nil {
		reg = NewRegistry()
	}
	reg.Add(Exception)
	reg.Add(cb.actions...)

	clk := cb.clock
	if clk == nil {
		clk = xclock.Default()
	}
	lg := cb.logger
	if lg == nil {
		lg = xlog.Default()
	}

	c := &Caller{
		registry:    reg,
		clock:       clk,
		logger:      lg,
		middlewares: cb.middlewares,
	}
	if cb.poolEnabled {
		c.observerPool = NewObserverPool(context.Background(), cb.poolWorkers, cb.poolBuffer)
	}

	// Attach logging observer first unless one was supplied externally.
	hasLoggingObserver := false
	for _, o := range cb.observers {
		if _, ok := o.(LoggingObserver); ok {
			hasLoggingObserver = true
			break
		}
	}
	if !hasLoggingObserver && lg != nil {
		c.AddObserver(LoggingObserver{Logger: lg})
	}
	for _, o := range cb.observers {
		c.AddObserver(o)
	}

	return c, nil
}

// New constructs a Caller via Builder and returns a close func for convenience.
func New(init func(b *CallerBuilder)) (*Caller, func() error, error) {
	b := NewCallerBuilder()
	if init != nil {
		init(b)
	}
	c, err := b.Build()
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() error { return c.Close(context.Background()) }
	return c, closeFn, nil
}
