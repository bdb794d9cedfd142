// Package redisbus implements broadcast.Bus on Redis Streams.
//
// Each topic is a stream. Every subscriber owns a consumer group on each
// stream it subscribes to, so all subscribers see every entry (fanout)
// instead of competing for them. Groups are created at the stream tail,
// which means a subscriber never sees entries published before it joined.
// Unacknowledged entries stay in the group's pending list and are
// reclaimed with XAUTOCLAIM once they have been idle for the ack timeout.
//
// The subscriber ID is the consumer group name, and it is unique only
// within one Bus. Two processes subscribing with the same ID share the
// group and split its entries between them instead of each receiving
// all of them. Give every process its own subscriber IDs, for example by
// including a node ID.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	bus := redisbus.New(client)
//	sub, err := bus.Subscribe(ctx, "helper-1", broadcast.TopicJobs)
package redisbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/broadcast"
)

var _ broadcast.Bus = (*Bus)(nil)

const (
	keyPrefix  = "carenest:stream:"
	fieldEvent = "event"
)

// streamKey returns the stream key for a topic: carenest:stream:{topic}
func streamKey(topic string) string { return keyPrefix + topic }

// Option configures the Bus.
type Option func(*Bus)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// WithMaxLen caps each stream at roughly n entries. Zero disables trimming.
func WithMaxLen(n int64) Option {
	return func(b *Bus) { b.maxLen = n }
}

// WithBlock sets how long a read waits for new entries before checking
// for shutdown and overdue acknowledgements.
func WithBlock(d time.Duration) Option {
	return func(b *Bus) { b.block = d }
}

// WithAckTimeout sets how long an entry may stay unacknowledged before it
// is redelivered. Zero disables redelivery.
func WithAckTimeout(d time.Duration) Option {
	return func(b *Bus) { b.ackTimeout = d }
}

// Bus is a broadcast.Bus backed by Redis Streams. The caller owns the
// Redis client lifecycle.
type Bus struct {
	client     goredis.Cmdable
	logger     *slog.Logger
	maxLen     int64
	block      time.Duration
	ackTimeout time.Duration

	mu     sync.Mutex
	subs   map[string]*subscription
	closed bool
}

// New creates a Redis Streams bus.
func New(client goredis.Cmdable, opts ...Option) *Bus {
	b := &Bus{
		client:     client,
		logger:     slog.Default(),
		maxLen:     10_000,
		block:      time.Second,
		ackTimeout: broadcast.DefaultAckTimeout,
		subs:       make(map[string]*subscription),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Publish appends evt to its topic stream and to the firehose stream in
// one MULTI/EXEC block.
func (b *Bus) Publish(ctx context.Context, evt *broadcast.Event) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return carenest.ErrBusClosed
	}

	payload, err := msgpack.Marshal(evt)
	if err != nil {
		return fmt.Errorf("carenest/redisbus: encode event: %w", err)
	}

	topics := []string{broadcast.TopicFirehose}
	if evt.Topic != "" && evt.Topic != broadcast.TopicFirehose {
		topics = append(topics, evt.Topic)
	}

	_, err = b.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, t := range topics {
			pipe.XAdd(ctx, &goredis.XAddArgs{
				Stream: streamKey(t),
				MaxLen: b.maxLen,
				Approx: b.maxLen > 0,
				Values: map[string]any{fieldEvent: payload},
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("carenest/redisbus: publish: %w", err)
	}
	return nil
}

// Subscribe creates one consumer group per topic stream, named after the
// subscriber, and starts reading. A second Subscribe with the same ID on
// this Bus fails with ErrSubscriberExists; on another Bus it joins the
// existing group.
func (b *Bus) Subscribe(ctx context.Context, subscriberID string, topics ...string) (broadcast.Subscription, error) {
	if subscriberID == "" {
		return nil, fmt.Errorf("%w: empty subscriber id", carenest.ErrInvalidInput)
	}
	if len(topics) == 0 {
		topics = []string{broadcast.TopicJobs}
	}
	for _, t := range topics {
		if err := broadcast.ValidateTopic(t); err != nil {
			return nil, fmt.Errorf("%w: %w", carenest.ErrInvalidInput, err)
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, carenest.ErrBusClosed
	}
	if _, exists := b.subs[subscriberID]; exists {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", carenest.ErrSubscriberExists, subscriberID)
	}
	b.mu.Unlock()

	streams := make([]string, len(topics))
	for i, t := range topics {
		streams[i] = streamKey(t)
		err := b.client.XGroupCreateMkStream(ctx, streams[i], subscriberID, "$").Err()
		if err != nil && !isBusyGroup(err) {
			return nil, fmt.Errorf("carenest/redisbus: create group %s on %s: %w", subscriberID, streams[i], err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		bus:     b,
		id:      subscriberID,
		streams: streams,
		out:     make(chan *broadcast.Delivery),
		cancel:  cancel,
		done:    make(chan struct{}),

		attempts: make(map[string]int),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		cancel()
		return nil, carenest.ErrBusClosed
	}
	b.subs[subscriberID] = sub
	b.mu.Unlock()

	go sub.run(runCtx)
	return sub, nil
}

// Close ends every subscription. The Redis client is left open.
func (b *Bus) Close() error {
	b.mu.Lock()
	b.closed = true
	subs := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		_ = s.Close()
	}
	return nil
}

func (b *Bus) forget(subscriberID string) {
	b.mu.Lock()
	delete(b.subs, subscriberID)
	b.mu.Unlock()
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

// ──────────────────────────────────────────────────
// Subscription
// ──────────────────────────────────────────────────

type subscription struct {
	bus     *Bus
	id      string
	streams []string
	out     chan *broadcast.Delivery
	cancel  context.CancelFunc
	done    chan struct{}

	mu       sync.Mutex
	attempts map[string]int // entry ID → deliveries so far

	closeOnce sync.Once
}

func (s *subscription) ID() string                    { return s.id }
func (s *subscription) C() <-chan *broadcast.Delivery { return s.out }

// Close stops reading, waits for the reader to exit, and destroys this
// subscriber's consumer groups so their backlog is released.
func (s *subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		s.bus.forget(s.id)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		var errs []error
		for _, stream := range s.streams {
			if dErr := s.bus.client.XGroupDestroy(ctx, stream, s.id).Err(); dErr != nil {
				errs = append(errs, dErr)
			}
		}
		if len(errs) > 0 {
			err = fmt.Errorf("carenest/redisbus: destroy groups: %w", errors.Join(errs...))
		}
	})
	return err
}

// run reads new entries, and periodically reclaims entries that have sat
// unacknowledged for at least the ack timeout.
// When ctx ends without Close being called, it cleans up as Close would.
func (s *subscription) run(ctx context.Context) {
	defer func() {
		close(s.out)
		close(s.done)
		go s.Close() //nolint:errcheck // best-effort group cleanup
	}()

	scanEvery := s.bus.ackTimeout / 2
	lastPendingScan := time.Now()
	for ctx.Err() == nil {
		if s.bus.ackTimeout > 0 && time.Since(lastPendingScan) >= scanEvery {
			lastPendingScan = time.Now()
			if !s.reclaim(ctx) {
				return
			}
		}
		if !s.read(ctx) {
			return
		}
	}
}

// reclaim redelivers pending entries idle for at least the ack timeout.
// XAUTOCLAIM resets the idle clock of every entry it returns, so an entry
// is redelivered at most once per ack timeout.
func (s *subscription) reclaim(ctx context.Context) bool {
	for _, stream := range s.streams {
		start := "0-0"
		for {
			msgs, next, err := s.bus.client.XAutoClaim(ctx, &goredis.XAutoClaimArgs{
				Stream:   stream,
				Group:    s.id,
				Consumer: s.id,
				MinIdle:  s.bus.ackTimeout,
				Start:    start,
				Count:    64,
			}).Result()
			switch {
			case ctx.Err() != nil:
				return false
			case err != nil && !errors.Is(err, goredis.Nil):
				s.bus.logger.Warn("redisbus reclaim failed",
					slog.String("subscriber_id", s.id),
					slog.String("stream", stream),
					slog.String("error", err.Error()),
				)
				return true
			}
			for _, msg := range msgs {
				if !s.forward(ctx, stream, msg) {
					return false
				}
			}
			if next == "" || next == "0-0" {
				break
			}
			start = next
		}
	}
	return true
}

// read performs one XREADGROUP for new entries and forwards them.
// Returns false when the subscription should stop.
func (s *subscription) read(ctx context.Context) bool {
	args := make([]string, 0, 2*len(s.streams))
	args = append(args, s.streams...)
	for range s.streams {
		args = append(args, ">")
	}

	res, err := s.bus.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
		Group:    s.id,
		Consumer: s.id,
		Streams:  args,
		Count:    64,
		Block:    s.bus.block,
	}).Result()
	switch {
	case errors.Is(err, goredis.Nil):
		return true
	case ctx.Err() != nil:
		return false
	case err != nil:
		s.bus.logger.Warn("redisbus read failed",
			slog.String("subscriber_id", s.id),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Second):
			return true
		}
	}

	for _, stream := range res {
		for _, msg := range stream.Messages {
			if !s.forward(ctx, stream.Stream, msg) {
				return false
			}
		}
	}
	return true
}

func (s *subscription) forward(ctx context.Context, stream string, msg goredis.XMessage) bool {
	ack := func(ctx context.Context) error {
		s.mu.Lock()
		delete(s.attempts, msg.ID)
		s.mu.Unlock()
		if err := s.bus.client.XAck(ctx, stream, s.id, msg.ID).Err(); err != nil {
			return fmt.Errorf("carenest/redisbus: ack %s: %w", msg.ID, err)
		}
		return nil
	}

	evt, err := decode(msg)
	if err != nil {
		// Unreadable or trimmed entry: acknowledge it so it leaves the
		// pending list.
		s.bus.logger.Warn("redisbus dropping undecodable entry",
			slog.String("subscriber_id", s.id),
			slog.String("entry_id", msg.ID),
			slog.String("error", err.Error()),
		)
		_ = ack(ctx)
		return true
	}

	s.mu.Lock()
	s.attempts[msg.ID]++
	attempt := s.attempts[msg.ID]
	s.mu.Unlock()

	d := broadcast.NewDelivery(evt, attempt, ack)
	select {
	case s.out <- d:
		return true
	case <-ctx.Done():
		return false
	}
}

func decode(msg goredis.XMessage) (*broadcast.Event, error) {
	raw, ok := msg.Values[fieldEvent]
	if !ok {
		return nil, errors.New("missing event field")
	}
	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return nil, fmt.Errorf("unexpected event field type %T", raw)
	}
	var evt broadcast.Event
	if err := msgpack.Unmarshal(data, &evt); err != nil {
		return nil, err
	}
	return &evt, nil
}
