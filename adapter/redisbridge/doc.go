// Package redisbridge carries fired actions between processes over a Redis
// stream.
//
// Forward publishes the actions a dispatcher fires; Listen fires, on a
// local dispatcher, the actions other processes published. Actions are
// matched by name against a registry, so both sides must declare the same
// action with the same payload type. Payloads go through an xcaller codec
// (json by default); error payloads arrive as *RemoteError.
//
// Config keys:
// - addr: "host:port" (default "127.0.0.1:6379")
// - stream: stream key (default "xcaller:actions")
// - group: consumer group, one per process (default derived from host and pid)
// - batch_size: XREADGROUP COUNT (default 64)
// - block: XREADGROUP BLOCK duration (default 2s)
// - max_len_approx: approximate stream trim length (default 10000)
// - codec: payload codec name (default "json")
//
//	bridge, _ := redisbridge.New(redisbridge.ConfigFromMap(map[string]any{"addr": "localhost:6379"}))
//	defer bridge.Close()
//	_ = bridge.Forward("order\\..*", caller)
//	sub, _ := bridge.Listen(ctx, caller, caller.Registry())
//	defer sub.Close()
package redisbridge
