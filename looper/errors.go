package looper

import "errors"

var (
	// ErrClosed is returned by Post once Close has started.
	ErrClosed = errors.New("looper: closed")
	// ErrQueueFull is returned by Post when MaxPending tasks are already queued.
	ErrQueueFull = errors.New("looper: queue is full")
	// ErrNilTask is returned by Post for a nil function.
	ErrNilTask = errors.New("looper: nil task")
)
