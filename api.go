package xcaller

import (
	"context"
	"reflect"
)

// Callback handles one fired action. It runs on the goroutine that called
// Fire. Returning an error or panicking turns into an Exception event.
type Callback func(ctx context.Context, d Dispatcher, payload any) error

// TypedCallback is a Callback whose payload was already asserted to T.
type TypedCallback[T any] func(ctx context.Context, d Dispatcher, payload T) error

// Middleware composes concerns around a Callback.
type Middleware func(next Callback) Callback

// Selector decides which fired actions a registration reacts to.
// Action (exact identity) and *Pattern (names) implement it.
type Selector interface {
	Matches(a Action) bool
	String() string
}

// Observer receives dispatcher lifecycle events. Implementations should be non-blocking.
type Observer interface {
	OnEvent(e Event)
}

// Notifier is implemented by dispatchers that accept events from decorators
// layered on top of them.
type Notifier interface {
	Notify(e Event)
}

// Executor is a serial execution context: submitted work runs later, one
// unit at a time, in submission order.
type Executor interface {
	Post(fn func()) error
}

// Environment is an opaque application handle able to derive its default
// serial execution context.
type Environment interface {
	MainExecutor() Executor
}

// Dispatcher is the register/fire contract shared by Caller and by every
// type embedding one.
type Dispatcher interface {
	Register(sel Selector, filter reflect.Type, cb Callback) error
	On(action Action, cb Callback) error
	OnPattern(pattern string, cb Callback) error
	OnPatternOf(filter reflect.Type, pattern string, cb Callback) error
	OnActions(cb Callback, actions ...Action) error

	Fire(ctx context.Context, action Action, payload any) error
	Trigger(ctx context.Context, payload any, actions ...Action) error
	TriggerPattern(ctx context.Context, pattern string, payload any) error
	TriggerPatterns(ctx context.Context, payload any, patterns ...string) error
}

var (
	_ Dispatcher = (*Caller)(nil)
	_ Notifier   = (*Caller)(nil)
)
