package xcaller

import "github.com/trickstertwo/xlog"

// ObserverFunc is an Adapter that lets a plain function satisfy Observer.
type ObserverFunc func(e Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// LoggingObserver is an Adapter that emits dispatcher events via xlog.
type LoggingObserver struct {
	Logger *xlog.Logger
}

func (o LoggingObserver) OnEvent(e Event) {
	if o.Logger == nil {
		return
	}
	ev := o.Logger.With(
		xlog.Str("type", string(e.Type)),
		xlog.Str("action", e.Action),
	)
	switch e.Type {
	case EventCallbackFailed, EventSecondaryFailure, EventPostFailed, EventMarshaledFailed:
		ev.Warn().Err(e.Err).Msg("xcaller event")
	default:
		if e.Duration > 0 {
			ev = ev.With(xlog.Dur("duration", e.Duration))
		}
		ev.Debug().Msg("xcaller event")
	}
}
