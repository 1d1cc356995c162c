package xcaller

import (
	"context"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// ctxKey is the base for all context keys in xcaller (prevents collisions).
type ctxKey string

const dispatchCtxKey ctxKey = "xcaller:dispatch"

// dispatchInfo is attached once per Fire so callbacks can see which action
// selected them along with the dispatcher's logger and clock.
type dispatchInfo struct {
	action Action
	logger *xlog.Logger
	clock  xclock.Clock
}

func injectDispatch(ctx context.Context, action Action, l *xlog.Logger, c xclock.Clock) context.Context {
	return context.WithValue(ctx, dispatchCtxKey, &dispatchInfo{action: action, logger: l, clock: c})
}

func dispatchFromContext(ctx context.Context) (*dispatchInfo, bool) {
	if v := ctx.Value(dispatchCtxKey); v != nil {
		if di, ok := v.(*dispatchInfo); ok && di != nil {
			return di, true
		}
	}
	return nil, false
}

// ActionFromContext returns the action being dispatched. Pattern callbacks
// use it to tell which of the selected actions fired.
func ActionFromContext(ctx context.Context) (Action, bool) {
	if di, ok := dispatchFromContext(ctx); ok {
		return di.action, true
	}
	return Action{}, false
}

// LoggerFromContext returns the logger of the dispatcher running the callback.
func LoggerFromContext(ctx context.Context) (*xlog.Logger, bool) {
	if di, ok := dispatchFromContext(ctx); ok && di.logger != nil {
		return di.logger, true
	}
	return nil, false
}

// ClockFromContext returns the clock of the dispatcher running the callback.
func ClockFromContext(ctx context.Context) (xclock.Clock, bool) {
	if di, ok := dispatchFromContext(ctx); ok && di.clock != nil {
		return di.clock, true
	}
	return nil, false
}
