package redisbridge

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xcaller"
)

var orderCreated = xcaller.NewAction[order]("order.created")

// redisClient returns a connected client or skips the test.
func redisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASSWORD")})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func testConfig(t *testing.T) Config {
	cfg := Defaults()
	cfg.Stream = "xcaller:test:" + uuid.NewString()
	cfg.Block = 100 * time.Millisecond
	return cfg
}

func cleanupStream(t *testing.T, client *redis.Client, stream string) {
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = client.Del(ctx, stream).Err()
	})
}

// TestBridge_ForwardListen checks an action fired in one process is fired
// in another with the decoded payload, and is not echoed back.
func TestBridge_ForwardListen(t *testing.T) {
	client := redisClient(t)
	cfg := testConfig(t)
	cleanupStream(t, client, cfg.Stream)

	producerCfg := cfg
	producerCfg.Group = "producer-" + uuid.NewString()
	consumerCfg := cfg
	consumerCfg.Group = "consumer-" + uuid.NewString()

	producer, err := NewWithClient(client, producerCfg)
	require.NoError(t, err)
	defer producer.Close()
	consumer, err := NewWithClient(client, consumerCfg)
	require.NoError(t, err)
	defer consumer.Close()

	local := xcaller.NewCaller()
	remote, _, err := xcaller.New(func(b *xcaller.CallerBuilder) { b.WithActions(orderCreated) })
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// The producer also listens so an echo would show up on local.
	psub, err := producer.Listen(ctx, local, local.Registry())
	require.NoError(t, err)
	defer psub.Close()
	csub, err := consumer.Listen(ctx, remote, remote.Registry())
	require.NoError(t, err)
	defer csub.Close()

	require.NoError(t, producer.Forward(`order\..*`, local))
	// Forward the consumer too: a remote fire must not go back out.
	require.NoError(t, consumer.Forward(`order\..*`, remote))

	got := make(chan order, 4)
	require.NoError(t, remote.On(orderCreated, func(ctx context.Context, _ xcaller.Dispatcher, p any) error {
		assert.True(t, FromRemote(ctx))
		got <- p.(order)
		return nil
	}))
	var localCount sync.Map
	require.NoError(t, local.On(orderCreated, func(ctx context.Context, _ xcaller.Dispatcher, p any) error {
		localCount.Store(FromRemote(ctx), true)
		return nil
	}))

	require.NoError(t, local.Fire(ctx, orderCreated, order{ID: "42", Amount: 12.5}))

	select {
	case o := <-got:
		assert.Equal(t, order{ID: "42", Amount: 12.5}, o)
	case <-ctx.Done():
		t.Fatal("timeout waiting for bridged action")
	}

	time.Sleep(300 * time.Millisecond)
	_, echoed := localCount.Load(true)
	assert.False(t, echoed, "action was echoed back to its origin")
	assert.Equal(t, uint64(1), producer.Stats().Forwarded)
	assert.Equal(t, uint64(0), consumer.Stats().Forwarded)
	assert.Equal(t, uint64(1), consumer.Stats().Received)
}

// TestBridge_UnknownActionDropped checks envelopes naming an unknown action
// are dropped without firing anything.
func TestBridge_UnknownActionDropped(t *testing.T) {
	client := redisClient(t)
	cfg := testConfig(t)
	cleanupStream(t, client, cfg.Stream)

	pub, err := NewWithClient(client, cfg)
	require.NoError(t, err)
	defer pub.Close()

	subCfg := cfg
	subCfg.Group = "sub-" + uuid.NewString()
	sub, err := NewWithClient(client, subCfg)
	require.NoError(t, err)
	defer sub.Close()

	d := xcaller.NewCaller()
	fired := make(chan struct{}, 1)
	require.NoError(t, d.OnPattern(".*", func(context.Context, xcaller.Dispatcher, any) error {
		fired <- struct{}{}
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := sub.Listen(ctx, d, xcaller.NewRegistry())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, pub.Publish(ctx, xcaller.NewAction[string]("nobody.knows"), "x"))

	require.Eventually(t, func() bool { return sub.Stats().Dropped == 1 }, 3*time.Second, 20*time.Millisecond)
	select {
	case <-fired:
		t.Fatal("unknown action was fired")
	default:
	}
}

// TestBridge_ErrorPayload checks error-typed actions arrive as *RemoteError.
func TestBridge_ErrorPayload(t *testing.T) {
	client := redisClient(t)
	cfg := testConfig(t)
	cleanupStream(t, client, cfg.Stream)

	pub, err := NewWithClient(client, cfg)
	require.NoError(t, err)
	defer pub.Close()
	subCfg := cfg
	subCfg.Group = "sub-" + uuid.NewString()
	sub, err := NewWithClient(client, subCfg)
	require.NoError(t, err)
	defer sub.Close()

	failed := xcaller.NewAction[error]("job.failed")
	d, _, err := xcaller.New(func(b *xcaller.CallerBuilder) { b.WithActions(failed) })
	require.NoError(t, err)

	got := make(chan error, 1)
	require.NoError(t, d.On(failed, func(_ context.Context, _ xcaller.Dispatcher, p any) error {
		got <- p.(error)
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := sub.Listen(ctx, d, d.Registry())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, pub.Publish(ctx, failed, errors.New("disk full")))

	select {
	case e := <-got:
		var re *RemoteError
		require.ErrorAs(t, e, &re)
		assert.Equal(t, "disk full", re.Error())
	case <-ctx.Done():
		t.Fatal("timeout")
	}
}

func TestBridge_Closed(t *testing.T) {
	client := redisClient(t)
	b, err := NewWithClient(client, testConfig(t))
	require.NoError(t, err)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	assert.Error(t, b.Publish(context.Background(), orderCreated, order{}))
	_, err = b.Listen(context.Background(), xcaller.NewCaller(), xcaller.NewRegistry())
	assert.Error(t, err)
	// Client is not owned by the bridge.
	assert.NoError(t, client.Ping(context.Background()).Err())
}
