package looper

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/trickstertwo/xcaller"
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

var _ xcaller.Executor = (*Looper)(nil)

// Looper is a serial execution context: a single goroutine running posted
// functions one at a time in FIFO order. Post never blocks.
type Looper struct {
	cfg    Config
	logger *xlog.Logger
	clock  xclock.Clock

	mu      sync.Mutex
	queue   []func()
	closing bool
	wake    chan struct{}
	done    chan struct{}
	loopID  atomic.Uint64

	posted   atomic.Uint64
	executed atomic.Uint64
	panicked atomic.Uint64
	rejected atomic.Uint64
}

// Option configures a Looper.
type Option func(*Looper)

// WithLogger injects a custom xlog logger.
func WithLogger(l *xlog.Logger) Option {
	return func(lp *Looper) { lp.logger = l }
}

// WithClock injects a custom xclock clock.
func WithClock(c xclock.Clock) Option {
	return func(lp *Looper) { lp.clock = c }
}

// New validates cfg and starts the loop goroutine.
func New(cfg Config, opts ...Option) (*Looper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &Looper{
		cfg:  cfg,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	for _, o := range opts {
		if o != nil {
			o(l)
		}
	}
	if l.logger == nil {
		l.logger = xlog.Default()
	}
	if l.clock == nil {
		l.clock = xclock.Default()
	}
	l.logger = l.logger.With(xlog.Str("looper", cfg.Name))

	go l.loop()
	return l, nil
}

// Name returns the configured name.
func (l *Looper) Name() string { return l.cfg.Name }

// Post queues fn and returns immediately.
func (l *Looper) Post(fn func()) error {
	if fn == nil {
		return ErrNilTask
	}

	l.mu.Lock()
	if l.closing {
		l.mu.Unlock()
		l.rejected.Add(1)
		return ErrClosed
	}
	if l.cfg.MaxPending > 0 && len(l.queue) >= l.cfg.MaxPending {
		l.mu.Unlock()
		l.rejected.Add(1)
		return ErrQueueFull
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	l.posted.Add(1)
	l.signal()
	return nil
}

func (l *Looper) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Looper) loop() {
	defer close(l.done)
	l.loopID.Store(goid())
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		closing := l.closing
		l.mu.Unlock()

		if len(batch) == 0 {
			if closing {
				return
			}
			<-l.wake
			continue
		}
		for i, fn := range batch {
			l.run(fn)
			batch[i] = nil
		}
	}
}

// run executes one task; a panic is logged and the loop keeps going.
func (l *Looper) run(fn func()) {
	start := l.clock.Now()
	defer func() {
		l.executed.Add(1)
		if r := recover(); r != nil {
			l.panicked.Add(1)
			l.logger.Error().
				Str("panic", fmt.Sprint(r)).
				Str("stack", string(debug.Stack())).
				Msg("looper: task panic (recovered)")
			return
		}
		if l.cfg.SlowTask > 0 {
			if d := l.clock.Since(start); d > l.cfg.SlowTask {
				l.logger.With(xlog.Dur("duration", d)).Warn().Msg("looper: slow task")
			}
		}
	}()
	fn()
}

// Close stops accepting work, runs what is already queued and waits for
// the loop to exit or ctx to end. Calling it again waits the same way.
// Called from one of the looper's own tasks it returns nil at once; the
// loop finishes the queued work after that task and exits.
func (l *Looper) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	l.mu.Lock()
	l.closing = true
	l.mu.Unlock()
	l.signal()

	if l.onLoop() {
		return nil
	}
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// onLoop reports whether the caller is the loop goroutine.
func (l *Looper) onLoop() bool {
	id := l.loopID.Load()
	return id != 0 && id == goid()
}

// goid parses the calling goroutine's id from its stack header
// ("goroutine 42 [running]:").
func goid() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}

// IsClosed reports whether Close has been called.
func (l *Looper) IsClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closing
}

// Done is closed once the loop goroutine has exited.
func (l *Looper) Done() <-chan struct{} { return l.done }

// Stats is a snapshot of looper counters.
type Stats struct {
	Name     string
	Posted   uint64
	Executed uint64
	Panicked uint64
	Rejected uint64
	Pending  int
}

// Stats returns current counters.
func (l *Looper) Stats() Stats {
	l.mu.Lock()
	pending := len(l.queue)
	l.mu.Unlock()
	return Stats{
		Name:     l.cfg.Name,
		Posted:   l.posted.Load(),
		Executed: l.executed.Load(),
		Panicked: l.panicked.Load(),
		Rejected: l.rejected.Load(),
		Pending:  pending,
	}
}
