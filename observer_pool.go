package xcaller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// delivery is one dispatcher event together with the observers registered
// on the Caller when it was raised.
type delivery struct {
	event Event
	to    []Observer
}

// ObserverPool moves observer notification off the goroutine that raised the
// event: a Fire, a failing callback or an xclient post. Notify never waits
// on an observer. When the queue is full the event is counted as dropped and
// surfaces in Stats.EventsDropped of the owning Caller.
type ObserverPool struct {
	queue     chan delivery
	workers   int
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closed    atomic.Bool
	dropped   atomic.Uint64
	processed atomic.Uint64
}

// NewObserverPool starts workers goroutines delivering events from a queue
// of bufferSize entries. Non-positive values fall back to 4 and 1000.
func NewObserverPool(ctx context.Context, workers, bufferSize int) *ObserverPool {
	if workers < 1 {
		workers = 4
	}
	if bufferSize < 1 {
		bufferSize = 1000
	}

	poolCtx, cancel := context.WithCancel(ctx)
	op := &ObserverPool{
		queue:   make(chan delivery, bufferSize),
		workers: workers,
		ctx:     poolCtx,
		cancel:  cancel,
	}
	op.wg.Add(workers)
	for range workers {
		go op.worker()
	}
	return op
}

// Notify queues e for observers. The slice is kept as is, so callers pass a
// copy of their observer list. Events raised after Close are ignored.
func (op *ObserverPool) Notify(e Event, observers []Observer) {
	if len(observers) == 0 || op.closed.Load() {
		return
	}
	select {
	case op.queue <- delivery{event: e, to: observers}:
	default:
		op.dropped.Add(1)
	}
}

func (op *ObserverPool) worker() {
	defer op.wg.Done()
	for {
		select {
		case d := <-op.queue:
			op.deliver(d)
		case <-op.ctx.Done():
			op.drain()
			return
		}
	}
}

// drain delivers what is still queued once the pool is stopping.
func (op *ObserverPool) drain() {
	for {
		select {
		case d := <-op.queue:
			op.deliver(d)
		default:
			return
		}
	}
}

func (op *ObserverPool) deliver(d delivery) {
	for _, obs := range d.to {
		if obs != nil {
			notifyObserver(obs, d.event)
		}
	}
	op.processed.Add(1)
}

// notifyObserver isolates a panicking observer from the worker and from Fire.
func notifyObserver(obs Observer, e Event) {
	defer func() {
		_ = recover()
	}()
	obs.OnEvent(e)
}

// Close stops accepting events and waits up to timeout for the workers to
// deliver what is queued. A second call returns nil at once.
func (op *ObserverPool) Close(timeout time.Duration) error {
	if op.closed.Swap(true) {
		return nil
	}
	op.cancel()

	done := make(chan struct{})
	go func() {
		op.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return ErrObserverPoolShutdownTimeout
	}
}

// Stats returns the pool counters.
func (op *ObserverPool) Stats() PoolStats {
	return PoolStats{
		Dropped:      op.dropped.Load(),
		Processed:    op.processed.Load(),
		ActiveEvents: len(op.queue),
		Workers:      op.workers,
		BufferSize:   cap(op.queue),
	}
}
