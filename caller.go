package xcaller

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// Caller is the action-keyed event dispatcher. It owns an append-only,
// ordered list of registrations and invokes the matching ones synchronously
// on the goroutine that fires.
type Caller struct {
	regMu sync.Mutex // serializes appends; readers use the snapshot
	regs  atomic.Pointer[[]*registration]
	owner atomic.Pointer[ownerRef]

	registry     *Registry
	clock        xclock.Clock
	logger       *xlog.Logger
	middlewares  []Middleware
	observerPool *ObserverPool
	observersMu  sync.RWMutex
	observers    []Observer
	metrics      callerMetrics
	closed       atomic.Bool
	closeOnce    sync.Once
}

type registration struct {
	sel    Selector
	filter reflect.Type
	cb     Callback
}

type ownerRef struct{ d Dispatcher }

// callerMetrics uses lock-free atomics for telemetry.
type callerMetrics struct {
	fired           atomic.Uint64
	invoked         atomic.Uint64
	failed          atomic.Uint64
	secondary       atomic.Uint64
	posted          atomic.Uint64
	postFailed      atomic.Uint64
	marshaledFailed atomic.Uint64
}

// NewCaller returns a Caller with default settings.
func NewCaller() *Caller {
	c, err := NewCallerBuilder().Build()
	if err != nil {
		panic(fmt.Sprintf("xcaller: default build failed: %v", err))
	}
	return c
}

// Registry returns the registry of known actions used to resolve patterns.
func (c *Caller) Registry() *Registry { return c.registry }

// Logger returns the configured logger.
func (c *Caller) Logger() *xlog.Logger { return c.logger }

// SetOwner sets the dispatcher handed to callbacks. Types that embed a
// Caller call it so callbacks receive the embedding value instead of the
// bare Caller. A nil owner restores the Caller itself.
func (c *Caller) SetOwner(d Dispatcher) {
	if d == nil {
		c.owner.Store(nil)
		return
	}
	c.owner.Store(&ownerRef{d: d})
}

func (c *Caller) self() Dispatcher {
	if ref := c.owner.Load(); ref != nil {
		return ref.d
	}
	return c
}

func (c *Caller) snapshot() []*registration {
	if p := c.regs.Load(); p != nil {
		return *p
	}
	return nil
}

// Register appends a callback run whenever sel matches a fired action and
// filter accepts its payload. Duplicates are allowed and each one fires.
func (c *Caller) Register(sel Selector, filter reflect.Type, cb Callback) error {
	if selectorIsAbsent(sel) {
		return fmt.Errorf("%w: selector is required", ErrInvalidArgument)
	}
	if cb == nil {
		return fmt.Errorf("%w: callback is required", ErrInvalidArgument)
	}
	if a, ok := sel.(Action); ok {
		c.registry.Add(a)
	}

	// Recovery first, then the configured chain.
	wrapped := Chain(RecoveryMiddleware()(cb), c.middlewares...)
	r := &registration{sel: sel, filter: filter, cb: wrapped}

	c.regMu.Lock()
	old := c.snapshot()
	next := make([]*registration, len(old), len(old)+1)
	copy(next, old)
	next = append(next, r)
	c.regs.Store(&next)
	c.regMu.Unlock()
	return nil
}

func selectorIsAbsent(sel Selector) bool {
	switch s := sel.(type) {
	case nil:
		return true
	case Action:
		return s.IsZero()
	case *Pattern:
		return s == nil
	}
	return false
}

// On registers cb for action; only payloads of the action's type are delivered.
func (c *Caller) On(action Action, cb Callback) error {
	return c.Register(action, action.Type(), cb)
}

// OnPattern registers cb for every action whose name matches pattern, with any payload.
func (c *Caller) OnPattern(pattern string, cb Callback) error {
	return c.OnPatternOf(nil, pattern, cb)
}

// OnPatternOf registers cb for every action whose name matches pattern and
// whose payload is assignable to filter.
func (c *Caller) OnPatternOf(filter reflect.Type, pattern string, cb Callback) error {
	p, err := CompilePattern(pattern)
	if err != nil {
		return err
	}
	return c.Register(p, filter, cb)
}

// OnActions registers cb for each of actions. Zero actions are skipped.
func (c *Caller) OnActions(cb Callback, actions ...Action) error {
	if cb == nil {
		return fmt.Errorf("%w: callback is required", ErrInvalidArgument)
	}
	for _, a := range actions {
		if a.IsZero() {
			continue
		}
		if err := c.On(a, cb); err != nil {
			return err
		}
	}
	return nil
}

// OnTyped registers fn for sel with T as the payload filter.
func OnTyped[T any](d Dispatcher, sel Selector, fn TypedCallback[T]) error {
	if fn == nil {
		return fmt.Errorf("%w: callback is required", ErrInvalidArgument)
	}
	return d.Register(sel, reflect.TypeFor[T](), func(ctx context.Context, d Dispatcher, payload any) error {
		v, _ := payload.(T)
		return fn(ctx, d, v)
	})
}

// Fire invokes every matching registration in registration order on the
// calling goroutine. A failing callback does not stop the others: its error
// is wrapped in a *CallbackError and fired as Exception. When that Exception
// dispatch fails in turn, Fire stops and returns a *SecondaryDispatchError.
func (c *Caller) Fire(ctx context.Context, action Action, payload any) error {
	if action.IsZero() {
		return fmt.Errorf("%w: action is required", ErrInvalidArgument)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c.registry.Add(action)
	c.metrics.fired.Add(1)
	start := c.clock.Now()
	ctx = injectDispatch(ctx, action, c.logger, c.clock)
	self := c.self()

	invoked := 0
	for _, r := range c.snapshot() {
		if !r.sel.Matches(action) || !Accepts(r.filter, payload) {
			continue
		}
		invoked++
		c.metrics.invoked.Add(1)

		err := invoke(ctx, r, self, payload)
		if err == nil {
			continue
		}

		cbErr := &CallbackError{Action: action, Err: err}
		c.metrics.failed.Add(1)
		c.notifyAsync(Event{Type: EventCallbackFailed, Action: action.Name(), Err: cbErr})

		if action == Exception {
			// Never re-dispatch a failing exception callback.
			cause, _ := payload.(error)
			return c.secondary(&SecondaryDispatchError{Cause: cause, Err: cbErr})
		}
		if ferr := c.Fire(ctx, Exception, cbErr); ferr != nil {
			var sde *SecondaryDispatchError
			if errors.As(ferr, &sde) {
				return ferr
			}
			return c.secondary(&SecondaryDispatchError{
				Cause: cbErr,
				Err:   &CallbackError{Action: Exception, Err: ferr},
			})
		}
	}

	c.notifyAsync(Event{
		Type:     EventFire,
		Action:   action.Name(),
		Invoked:  invoked,
		Duration: c.clock.Since(start),
	})
	return nil
}

func (c *Caller) secondary(err *SecondaryDispatchError) error {
	c.metrics.secondary.Add(1)
	c.notifyAsync(Event{Type: EventSecondaryFailure, Action: Exception.Name(), Err: err})
	return err
}

// invoke runs one registration. The registration already carries recovery;
// this guards panics raised by middlewares outside of it.
func invoke(ctx context.Context, r *registration, self Dispatcher, payload any) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Value: rec, Stack: debug.Stack()}
		}
	}()
	return r.cb(ctx, self, payload)
}

// Trigger fires payload at each action independently. A failure for one
// action does not prevent the next; failures are joined.
func (c *Caller) Trigger(ctx context.Context, payload any, actions ...Action) error {
	var errs []error
	for _, a := range actions {
		if a.IsZero() {
			continue
		}
		if err := c.Fire(ctx, a, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TriggerPattern resolves pattern over the known actions and fires payload
// at each selected action whose payload type accepts it.
func (c *Caller) TriggerPattern(ctx context.Context, pattern string, payload any) error {
	p, err := CompilePattern(pattern)
	if err != nil {
		return err
	}
	var errs []error
	for _, a := range c.registry.MatchPattern(p) {
		if !Accepts(a.Type(), payload) {
			continue
		}
		if err := c.Fire(ctx, a, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TriggerPatterns runs TriggerPattern for each pattern with the same payload.
func (c *Caller) TriggerPatterns(ctx context.Context, payload any, patterns ...string) error {
	var errs []error
	for _, p := range patterns {
		if err := c.TriggerPattern(ctx, p, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Notify records an event raised by a decorator and forwards it to observers.
func (c *Caller) Notify(e Event) {
	switch e.Type {
	case EventPost:
		c.metrics.posted.Add(1)
	case EventPostFailed:
		c.metrics.postFailed.Add(1)
	case EventMarshaledFailed:
		c.metrics.marshaledFailed.Add(1)
	}
	c.notifyAsync(e)
}

// Stats returns current dispatcher counters.
func (c *Caller) Stats() Stats {
	s := Stats{
		Fired:             c.metrics.fired.Load(),
		Invoked:           c.metrics.invoked.Load(),
		Failed:            c.metrics.failed.Load(),
		SecondaryFailures: c.metrics.secondary.Load(),
		Posted:            c.metrics.posted.Load(),
		PostFailed:        c.metrics.postFailed.Load(),
		MarshaledFailed:   c.metrics.marshaledFailed.Load(),
		Registrations:     len(c.snapshot()),
		KnownActions:      c.registry.Len(),
	}
	if c.observerPool != nil {
		s.EventsDropped = c.observerPool.Stats().Dropped
	}
	return s
}

// AddObserver registers an observer (thread-safe).
func (c *Caller) AddObserver(obs Observer) {
	if obs == nil {
		return
	}
	c.observersMu.Lock()
	c.observers = append(c.observers, obs)
	c.observersMu.Unlock()
}

// RemoveObserver removes an observer.
func (c *Caller) RemoveObserver(obs Observer) {
	if obs == nil {
		return
	}
	c.observersMu.Lock()
	defer c.observersMu.Unlock()

	for i, o := range c.observers {
		if o == obs {
			c.observers = append(c.observers[:i], c.observers[i+1:]...)
			break
		}
	}
}

// notifyAsync hands e to the observer pool, or to the observers directly
// when no pool is configured.
func (c *Caller) notifyAsync(e Event) {
	if c.closed.Load() {
		return
	}

	c.observersMu.RLock()
	if len(c.observers) == 0 {
		c.observersMu.RUnlock()
		return
	}
	observers := make([]Observer, len(c.observers))
	copy(observers, c.observers)
	c.observersMu.RUnlock()

	if c.observerPool != nil {
		c.observerPool.Notify(e, observers)
		return
	}
	for _, o := range observers {
		notifyObserver(o, e)
	}
}

// Close stops observer delivery. Registrations stay usable and Fire keeps
// working; only notifications stop.
func (c *Caller) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var closeErr error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if c.observerPool == nil {
			return
		}
		timeout := 5 * time.Second
		if dl, ok := ctx.Deadline(); ok {
			timeout = time.Until(dl)
		}
		if err := c.observerPool.Close(timeout); err != nil {
			c.logger.Warn().Err(err).Msg("xcaller: observer pool shutdown timeout")
			closeErr = err
		}
	})
	return closeErr
}
