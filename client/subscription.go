package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gaurav-seth/carenest-helper/broadcast"
	"github.com/gaurav-seth/carenest-helper/dwp"
)

const (
	subscriptionBuffer = 64
	controlTimeout     = 5 * time.Second
)

// Subscribe opens a server-side subscription to topics (TopicJobs when
// none are given). subscriberID may be empty, in which case the server
// picks one. Each delivery must be acked; unacked deliveries are
// redelivered by the server's bus. The subscription ends when ctx is done
// or Close is called.
func (c *Client) Subscribe(ctx context.Context, subscriberID string, topics ...string) (broadcast.Subscription, error) {
	channel, topics, err := c.subscribe(ctx, subscriberID, topics)
	if err != nil {
		return nil, err
	}

	sub := &subscription{
		client:  c,
		channel: channel,
		topics:  topics,
		out:     make(chan *broadcast.Delivery, subscriptionBuffer),
		done:    make(chan struct{}),
	}
	if _, loaded := c.subs.LoadOrStore(channel, sub); loaded {
		return nil, fmt.Errorf("carenest/client: already subscribed as %q", channel)
	}

	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

func (c *Client) subscribe(ctx context.Context, subscriberID string, topics []string) (string, []string, error) {
	resp, err := c.request(ctx, dwp.MethodSubscribe, dwp.SubscribeRequest{
		SubscriberID: subscriberID,
		Topics:       topics,
	})
	if err != nil {
		return "", nil, fmt.Errorf("carenest/client: subscribe: %w", err)
	}
	var sr dwp.SubscribeResponse
	if err := decodeData(resp, &sr); err != nil {
		return "", nil, err
	}
	return sr.Channel, sr.Topics, nil
}

// resubscribe reopens every live subscription after a reconnect.
func (c *Client) resubscribe() {
	c.subs.Range(func(_, val any) bool {
		sub, ok := val.(*subscription)
		if !ok {
			return true
		}
		ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
		defer cancel()
		if _, _, err := c.subscribe(ctx, sub.channel, sub.topics); err != nil {
			c.logger.Warn("carenest client resubscribe failed",
				slog.String("channel", sub.channel),
				slog.String("error", err.Error()),
			)
		}
		return true
	})
}

func (c *Client) closeSubscriptions() {
	c.subs.Range(func(key, val any) bool {
		if sub, ok := val.(*subscription); ok {
			sub.shut()
		}
		c.subs.Delete(key)
		return true
	})
}

func (c *Client) ack(ctx context.Context, deliveryID string) error {
	_, err := c.request(ctx, dwp.MethodAck, dwp.AckRequest{DeliveryID: deliveryID})
	return err
}

// subscription is the client side of one server subscription.
type subscription struct {
	client  *Client
	channel string
	topics  []string
	out     chan *broadcast.Delivery
	done    chan struct{}

	mu     sync.Mutex
	closed bool
}

var _ broadcast.Subscription = (*subscription)(nil)

func (s *subscription) ID() string                    { return s.channel }
func (s *subscription) C() <-chan *broadcast.Delivery { return s.out }

// deliver hands an event frame to the consumer. If the consumer is
// behind the frame is dropped unacked and the server redelivers it.
func (s *subscription) deliver(frame *dwp.Frame) {
	var payload dwp.EventPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil || payload.Event == nil {
		s.client.logger.Warn("carenest client: bad event frame", slog.String("channel", s.channel))
		return
	}
	deliveryID := frame.ID
	d := broadcast.NewDelivery(payload.Event, payload.Attempt, func(ctx context.Context) error {
		return s.client.ack(ctx, deliveryID)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.out <- d:
	default:
		s.client.logger.Warn("carenest client: subscriber behind, dropping delivery",
			slog.String("channel", s.channel),
			slog.String("event_id", payload.Event.ID),
		)
	}
}

// Close unsubscribes on the server and closes C.
func (s *subscription) Close() error {
	if !s.shut() {
		return nil
	}
	s.client.subs.Delete(s.channel)
	ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
	defer cancel()
	_, err := s.client.request(ctx, dwp.MethodUnsubscribe, dwp.UnsubscribeRequest{Channel: s.channel})
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

// shut closes the local side once. It reports whether this call did it.
func (s *subscription) shut() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	close(s.out)
	close(s.done)
	return true
}
