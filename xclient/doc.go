// Package xclient decorates an xcaller dispatcher so that chosen callbacks
// run on a serial execution context.
//
// A connector fires its actions from whatever goroutine does the work.
// Callbacks registered through the OnHandled family are not run there:
// they are posted to the Client's Executor (by default the environment's
// main looper) and run later, in posting order, with the Client itself as
// their dispatcher. Plain registrations made through the promoted On,
// OnPattern, ... methods still run inline.
//
//	env, _ := looper.NewEnvironment("app")
//	conn, _ := httpconn.New(httpconn.Defaults())
//	client, _ := xclient.New(env, conn)
//	_ = client.OnHandledPattern("connected|disconnected", func(ctx context.Context, c *xclient.Client, p any) error {
//		// runs on the main looper
//		return nil
//	})
//	_ = client.Connect(ctx)
package xclient
