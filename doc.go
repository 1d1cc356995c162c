// Package xcaller is an action-keyed event dispatcher.
//
// A long-lived stateful object (a network client, a session) fires named,
// typed actions as its lifecycle progresses. Consumers register callbacks
// against an exact Action or against a "|"-separated list of regular
// expressions matched over action names:
//
//	connected := xcaller.NewAction[*Response]("connected")
//
//	c := xcaller.NewCaller()
//	_ = c.On(connected, func(ctx context.Context, d xcaller.Dispatcher, p any) error {
//	    return handle(p.(*Response))
//	})
//	_ = c.OnPattern("connected|disconnected", logEverything)
//	_ = c.Fire(ctx, connected, resp)
//
// Fire runs matching callbacks synchronously, in registration order, on the
// calling goroutine. A callback that returns an error or panics never breaks
// the dispatch: the failure is wrapped in a *CallbackError and fired as the
// Exception action. Only when an Exception callback fails in turn does Fire
// return an error (*SecondaryDispatchError).
//
// Running callbacks on a designated serial executor instead of inline is the
// job of the xclient decorator; looper provides such an executor.
package xcaller
