package redisbridge

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/trickstertwo/xcaller"
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

type remoteCtxKey struct{}

// FromRemote reports whether ctx belongs to a Fire made by Listen.
func FromRemote(ctx context.Context) bool {
	v, _ := ctx.Value(remoteCtxKey{}).(bool)
	return v
}

// Bridge forwards fired actions to a Redis stream and fires the actions it
// reads back from it on a local dispatcher.
type Bridge struct {
	cfg        Config
	client     *redis.Client
	ownsClient bool
	origin     string
	codec      xcaller.Codec
	logger     *xlog.Logger
	clock      xclock.Clock

	closeOnce sync.Once
	closed    atomic.Bool
	subsMu    sync.Mutex
	subs      []*Subscription

	metrics bridgeMetrics
}

type bridgeMetrics struct {
	forwarded     atomic.Uint64
	received      atomic.Uint64
	dropped       atomic.Uint64
	publishErrors atomic.Uint64
	consumeErrors atomic.Uint64
}

// Stats is a snapshot of bridge counters.
type Stats struct {
	Forwarded     uint64
	Received      uint64
	Dropped       uint64
	PublishErrors uint64
	ConsumeErrors uint64
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger injects a custom xlog logger.
func WithLogger(l *xlog.Logger) Option {
	return func(b *Bridge) { b.logger = l }
}

// WithClock injects a custom xclock clock.
func WithClock(c xclock.Clock) Option {
	return func(b *Bridge) { b.clock = c }
}

// WithCodec overrides the codec named in Config.
func WithCodec(c xcaller.Codec) Option {
	return func(b *Bridge) { b.codec = c }
}

// New connects to Redis and returns a Bridge owning the client.
func New(cfg Config, opts ...Option) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ropts := &redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 2,
	}
	if cfg.TLS {
		ropts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: cfg.TLSServerName,
		}
	}

	client := redis.NewClient(ropts)
	if err := ping(client); err != nil {
		_ = client.Close()
		return nil, err
	}
	b, err := NewWithClient(client, cfg, opts...)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	b.ownsClient = true
	return b, nil
}

// NewWithClient builds a Bridge on an existing client. Close leaves the
// client open.
func NewWithClient(client *redis.Client, cfg Config, opts ...Option) (*Bridge, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: redis client is required", xcaller.ErrInvalidArgument)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Bridge{
		cfg:    cfg,
		client: client,
		origin: uuid.NewString(),
	}
	for _, o := range opts {
		if o != nil {
			o(b)
		}
	}
	if b.codec == nil {
		c, err := xcaller.NewCodec(cfg.Codec)
		if err != nil {
			return nil, err
		}
		b.codec = c
	}
	if b.logger == nil {
		b.logger = xlog.Default()
	}
	if b.clock == nil {
		b.clock = xclock.Default()
	}
	b.logger = b.logger.With(xlog.Str("stream", cfg.Stream), xlog.Str("origin", b.origin))
	return b, nil
}

// Origin is the id stamped on every envelope this bridge publishes.
func (b *Bridge) Origin() string { return b.origin }

// Publish encodes payload and appends it to the stream as action.
func (b *Bridge) Publish(ctx context.Context, action xcaller.Action, payload any) error {
	if b.closed.Load() {
		return fmt.Errorf("redisbridge: bridge closed")
	}
	if action.IsZero() {
		return fmt.Errorf("%w: action is required", xcaller.ErrInvalidArgument)
	}
	data, err := Encode(b.codec, payload)
	if err != nil {
		return fmt.Errorf("redisbridge: encode %q: %w", action.Name(), err)
	}
	env := Envelope{
		ID:         uuid.NewString(),
		Origin:     b.origin,
		Action:     action.Name(),
		Payload:    data,
		ProducedAt: b.clock.Now(),
	}
	args := &redis.XAddArgs{
		Stream: b.cfg.Stream,
		ID:     "*",
		Values: env.values(),
	}
	if b.cfg.MaxLenApprox > 0 {
		args.MaxLen = b.cfg.MaxLenApprox
		args.Approx = true
	}
	if err := b.client.XAdd(ctx, args).Err(); err != nil {
		b.metrics.publishErrors.Add(1)
		return fmt.Errorf("redisbridge: publish %q: %w", action.Name(), err)
	}
	b.metrics.forwarded.Add(1)
	return nil
}

// Forward registers a callback on d publishing every action whose name
// matches pattern. Actions fired by Listen are not sent back out.
func (b *Bridge) Forward(pattern string, d xcaller.Dispatcher) error {
	if d == nil {
		return fmt.Errorf("%w: dispatcher is required", xcaller.ErrInvalidArgument)
	}
	return d.OnPattern(pattern, func(ctx context.Context, _ xcaller.Dispatcher, payload any) error {
		if FromRemote(ctx) {
			return nil
		}
		action, ok := xcaller.ActionFromContext(ctx)
		if !ok {
			return nil
		}
		return b.Publish(ctx, action, payload)
	})
}

// Subscription is a running Listen loop.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Close stops the loop and waits for it to exit.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	<-s.done
	return nil
}

// Done is closed when the loop has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Listen reads envelopes from other processes and fires them on d. Names
// are resolved in reg; a name matching no action, or more than one, is
// dropped. Envelopes are fired one at a time in stream order.
func (b *Bridge) Listen(ctx context.Context, d xcaller.Dispatcher, reg *xcaller.Registry) (*Subscription, error) {
	if d == nil || reg == nil {
		return nil, fmt.Errorf("%w: dispatcher and registry are required", xcaller.ErrInvalidArgument)
	}
	if b.closed.Load() {
		return nil, fmt.Errorf("redisbridge: bridge closed")
	}
	if b.cfg.AutoCreate {
		err := b.client.XGroupCreateMkStream(ctx, b.cfg.Stream, b.cfg.Group, "$").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return nil, fmt.Errorf("redisbridge: create group: %w", err)
		}
	}

	innerCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		b.pollerLoop(innerCtx, d, reg)
	}()

	b.subsMu.Lock()
	b.subs = append(b.subs, sub)
	b.subsMu.Unlock()
	return sub, nil
}

func (b *Bridge) pollerLoop(ctx context.Context, d xcaller.Dispatcher, reg *xcaller.Registry) {
	xArgs := &redis.XReadGroupArgs{
		Group:    b.cfg.Group,
		Consumer: b.cfg.Consumer,
		Streams:  []string{b.cfg.Stream, ">"},
		Count:    int64(max(1, b.cfg.BatchSize)),
		Block:    b.cfg.Block,
	}

	backoff := 100 * time.Millisecond
	const maxBackoff = 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := b.client.XReadGroup(ctx, xArgs).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			if errors.Is(err, redis.Nil) {
				backoff = 100 * time.Millisecond
				continue
			}
			b.metrics.consumeErrors.Add(1)
			b.logger.Warn().Err(err).Msg("redisbridge: read failed")
			select {
			case <-time.After(backoff):
				backoff = min(backoff*2, maxBackoff)
			case <-ctx.Done():
				return
			}
			continue
		}
		backoff = 100 * time.Millisecond

		for _, stream := range res {
			for _, msg := range stream.Messages {
				b.deliver(ctx, d, reg, decodeEnvelope(msg.Values))
				if err := b.client.XAck(ctx, b.cfg.Stream, b.cfg.Group, msg.ID).Err(); err != nil && ctx.Err() == nil {
					b.logger.Warn().Err(err).Str("entry", msg.ID).Msg("redisbridge: ack failed")
				}
			}
		}
	}
}

func (b *Bridge) deliver(ctx context.Context, d xcaller.Dispatcher, reg *xcaller.Registry, env Envelope) {
	if env.Origin == b.origin {
		return
	}
	b.metrics.received.Add(1)

	candidates := reg.Lookup(env.Action)
	if len(candidates) != 1 {
		b.metrics.dropped.Add(1)
		b.logger.Warn().
			Str("action", env.Action).
			Str("envelope", env.ID).
			Str("candidates", strconv.Itoa(len(candidates))).
			Msg("redisbridge: unresolvable action dropped")
		return
	}
	action := candidates[0]

	payload, err := Decode(b.codec, env.Payload, action.Type())
	if err != nil {
		b.metrics.dropped.Add(1)
		b.logger.Warn().Err(err).Str("action", env.Action).Msg("redisbridge: payload decode failed")
		return
	}
	if err := d.Fire(context.WithValue(ctx, remoteCtxKey{}, true), action, payload); err != nil {
		b.logger.Warn().Err(err).Str("action", env.Action).Msg("redisbridge: fire failed")
	}
}

// Stats returns current counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Forwarded:     b.metrics.forwarded.Load(),
		Received:      b.metrics.received.Load(),
		Dropped:       b.metrics.dropped.Load(),
		PublishErrors: b.metrics.publishErrors.Load(),
		ConsumeErrors: b.metrics.consumeErrors.Load(),
	}
}

// Close stops every subscription and closes the client when the bridge owns it.
func (b *Bridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.closed.Store(true)

		b.subsMu.Lock()
		subs := b.subs
		b.subs = nil
		b.subsMu.Unlock()
		for _, s := range subs {
			_ = s.Close()
		}
		if b.ownsClient {
			err = b.client.Close()
		}
	})
	return err
}

func ping(c *redis.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := c.Ping(ctx).Result()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("redis ping timeout: %w", err)
		}
		return err
	}
	if strings.ToUpper(res) != "PONG" {
		return fmt.Errorf("unexpected redis ping result: %s", res)
	}
	return nil
}
