package xcaller

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument reports an absent or malformed argument.
	ErrInvalidArgument = errors.New("xcaller: invalid argument")
	// ErrUnsupportedMutation reports an attempt to replace a handle that is fixed.
	ErrUnsupportedMutation = errors.New("xcaller: unsupported mutation")
	// ErrObserverPoolShutdownTimeout is returned when queued observer events outlive Close.
	ErrObserverPoolShutdownTimeout = errors.New("xcaller: observer pool shutdown timeout")
)

// CallbackError wraps a failure escaping a callback. It is the payload of
// the Exception event fired for that failure.
type CallbackError struct {
	Action Action
	Err    error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("xcaller: callback for %q failed: %v", e.Action.Name(), e.Err)
}

func (e *CallbackError) Unwrap() error { return e.Err }

// Panicked reports whether the callback panicked rather than returned an error.
func (e *CallbackError) Panicked() bool {
	var pe *PanicError
	return errors.As(e.Err, &pe)
}

// PanicError carries a recovered panic value and the stack at recovery.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic recovered: %v", e.Value) }

// Unwrap exposes the panic value when it was an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// SecondaryDispatchError is returned by Fire when a callback of the
// Exception event fails while an earlier failure is being reported.
// Cause is the payload that was being reported; Err is the new failure.
type SecondaryDispatchError struct {
	Cause error
	Err   *CallbackError
}

func (e *SecondaryDispatchError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("xcaller: exception dispatch failed: %v", e.Err)
	}
	return fmt.Sprintf("xcaller: exception dispatch failed: %v (while reporting: %v)", e.Err, e.Cause)
}

func (e *SecondaryDispatchError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Err != nil {
		out = append(out, e.Err)
	}
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return out
}
