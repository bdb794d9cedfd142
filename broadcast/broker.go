package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	carenest "github.com/gaurav-seth/carenest-helper"
)

var _ Bus = (*Broker)(nil)

// DefaultAckTimeout is how long a delivery may stay unacknowledged before
// the broker redelivers it.
const DefaultAckTimeout = 30 * time.Second

// Broker is the in-process Bus. Each subscriber gets its own unbounded
// queue, so Publish never blocks on a slow subscriber and never drops.
type Broker struct {
	topics *topicRegistry
	logger *slog.Logger

	mu          sync.Mutex
	subscribers map[string]*subscriber
	closed      bool

	totalPublished atomic.Int64
	totalEnqueued  atomic.Int64

	ackTimeout time.Duration
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithAckTimeout sets the redelivery timeout. Zero disables redelivery.
func WithAckTimeout(d time.Duration) BrokerOption {
	return func(b *Broker) { b.ackTimeout = d }
}

// NewBroker creates a new in-process broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broker{
		topics:      newTopicRegistry(),
		logger:      logger,
		subscribers: make(map[string]*subscriber),
		ackTimeout:  DefaultAckTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish enqueues evt for every subscriber bound to its topics.
func (b *Broker) Publish(ctx context.Context, evt *Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return carenest.ErrBusClosed
	}

	enqueued := 0
	for _, sub := range b.topics.targets(resolveTopics(evt)) {
		if sub.enqueue(evt) {
			enqueued++
		}
	}
	b.totalPublished.Add(1)
	b.totalEnqueued.Add(int64(enqueued))

	b.logger.Debug("event published",
		slog.String("event_id", evt.ID),
		slog.String("type", string(evt.Type)),
		slog.Int("subscribers", enqueued),
	)
	return nil
}

// Subscribe creates a subscription on topics.
func (b *Broker) Subscribe(ctx context.Context, subscriberID string, topics ...string) (Subscription, error) {
	if subscriberID == "" {
		return nil, fmt.Errorf("%w: empty subscriber id", carenest.ErrInvalidInput)
	}
	if len(topics) == 0 {
		topics = []string{TopicJobs}
	}
	for _, t := range topics {
		if err := ValidateTopic(t); err != nil {
			return nil, fmt.Errorf("%w: %w", carenest.ErrInvalidInput, err)
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, carenest.ErrBusClosed
	}
	if _, exists := b.subscribers[subscriberID]; exists {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", carenest.ErrSubscriberExists, subscriberID)
	}
	sub := newSubscriber(subscriberID, b.ackTimeout)
	b.subscribers[subscriberID] = sub
	for _, t := range topics {
		b.topics.subscribe(t, sub)
	}
	b.mu.Unlock()

	remove := func() { b.remove(subscriberID) }
	go sub.run(ctx, remove)

	b.logger.Debug("subscriber added",
		slog.String("subscriber_id", subscriberID),
		slog.Any("topics", topics),
	)
	return &subscription{sub: sub, remove: remove}, nil
}

func (b *Broker) remove(subscriberID string) {
	b.mu.Lock()
	sub, ok := b.subscribers[subscriberID]
	delete(b.subscribers, subscriberID)
	b.mu.Unlock()
	if !ok {
		return
	}
	b.topics.unsubscribeAll(subscriberID)
	sub.close()
}

// Close ends every subscription. Further publishes fail with ErrBusClosed.
func (b *Broker) Close() error {
	b.mu.Lock()
	b.closed = true
	subs := b.subscribers
	b.subscribers = make(map[string]*subscriber)
	b.mu.Unlock()

	for sid, sub := range subs {
		b.topics.unsubscribeAll(sid)
		sub.close()
	}
	return nil
}

// Stats returns broker statistics.
func (b *Broker) Stats() BrokerStats {
	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	st := BrokerStats{
		TopicCount:      b.topics.topicCount(),
		SubscriberCount: len(subs),
		JobSubscribers:  b.topics.subscriberCount(TopicJobs),
		TotalPublished:  b.totalPublished.Load(),
		TotalEnqueued:   b.totalEnqueued.Load(),
	}
	for _, s := range subs {
		st.Pending += s.depth()
		st.TotalRedelivered += s.redelivered.Load()
	}
	return st
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	TopicCount       int   `json:"topic_count"`
	SubscriberCount  int   `json:"subscriber_count"`
	JobSubscribers   int   `json:"job_subscribers"`
	TotalPublished   int64 `json:"total_published"`
	TotalEnqueued    int64 `json:"total_enqueued"`
	TotalRedelivered int64 `json:"total_redelivered"`
	Pending          int   `json:"pending"`
}
