package xcaller

import (
	"context"
	"sync"
)

var (
	defaultCaller   *Caller
	defaultCallerMu sync.Mutex
)

// Default returns the process-wide Caller, building it on first use.
func Default() *Caller {
	defaultCallerMu.Lock()
	defer defaultCallerMu.Unlock()

	if defaultCaller == nil {
		defaultCaller = NewCaller()
	}
	return defaultCaller
}

// SetDefault replaces the process-wide Caller.
func SetDefault(c *Caller) {
	if c == nil {
		panic("xcaller: SetDefault called with nil Caller")
	}
	defaultCallerMu.Lock()
	defaultCaller = c
	defaultCallerMu.Unlock()
}

// On is the Facade registering on the default Caller.
func On(action Action, cb Callback) error {
	return Default().On(action, cb)
}

// OnPattern is the Facade registering a pattern on the default Caller.
func OnPattern(pattern string, cb Callback) error {
	return Default().OnPattern(pattern, cb)
}

// Fire is the Facade firing on the default Caller.
func Fire(ctx context.Context, action Action, payload any) error {
	return Default().Fire(ctx, action, payload)
}

// Trigger is the Facade triggering on the default Caller.
func Trigger(ctx context.Context, payload any, actions ...Action) error {
	return Default().Trigger(ctx, payload, actions...)
}
