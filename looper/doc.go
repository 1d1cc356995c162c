// Package looper provides a serial execution context.
//
// A Looper runs posted functions on one goroutine, strictly one after the
// other, in the order they were posted, the way a UI event loop does.
// Post returns immediately; there is no cancellation of posted work.
//
//	env, _ := looper.NewEnvironment("app")
//	defer env.Close(ctx)
//	_ = env.MainLooper().Post(func() { render() })
package looper
