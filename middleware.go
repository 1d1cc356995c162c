package xcaller

import (
	"context"
	"math/rand"
	"runtime/debug"
	"time"
)

// RetryConfig controls RetryMiddleware.
type RetryConfig struct {
	// MaxAttempts counts the first run. Values below 1 mean a single run.
	MaxAttempts int
	// Backoff returns the wait after the given failed attempt. Nil retries at once.
	Backoff func(attempt int) time.Duration
	// RetryIf selects retryable errors. Nil retries every error.
	RetryIf func(err error) bool
	// Jitter adds a random wait in [0, Jitter) to each backoff.
	Jitter time.Duration
}

// RetryMiddleware re-runs a failing callback within the same Fire. Only the
// last error reaches the Caller and becomes an Exception. The backoff is
// spent on the firing goroutine and ends early when ctx is done.
func RetryMiddleware(cfg RetryConfig) Middleware {
	attempts := max(cfg.MaxAttempts, 1)
	retryable := cfg.RetryIf
	if retryable == nil {
		retryable = func(error) bool { return true }
	}
	return func(next Callback) Callback {
		return func(ctx context.Context, d Dispatcher, payload any) error {
			var err error
			for attempt := 1; ; attempt++ {
				if err = next(ctx, d, payload); err == nil {
					return nil
				}
				if attempt >= attempts || ctx.Err() != nil || !retryable(err) {
					return err
				}
				if cfg.Backoff == nil {
					continue
				}
				wait := cfg.Backoff(attempt)
				if cfg.Jitter > 0 {
					wait += time.Duration(rand.Int63n(int64(cfg.Jitter)))
				}
				select {
				case <-ctx.Done():
					return err
				case <-time.After(wait):
				}
			}
		}
	}
}

// RecoveryMiddleware turns a panicking callback into a *PanicError so the
// Caller reports it as an ordinary failure.
func RecoveryMiddleware() Middleware {
	return func(next Callback) Callback {
		return func(ctx context.Context, d Dispatcher, payload any) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &PanicError{Value: r, Stack: debug.Stack()}
				}
			}()
			return next(ctx, d, payload)
		}
	}
}

// Chain wraps cb so that mws[0] is the outermost layer. Nil entries are skipped.
func Chain(cb Callback, mws ...Middleware) Callback {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			cb = mws[i](cb)
		}
	}
	return cb
}
