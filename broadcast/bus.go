package broadcast

import (
	"context"
	"sync"
)

// Bus publishes events to every subscription bound to the event's topic.
type Bus interface {
	// Publish hands evt to the bus. It returns once the bus has accepted
	// the event; it never waits for subscribers to process it.
	Publish(ctx context.Context, evt *Event) error

	// Subscribe binds a new subscription to topics. The subscription ends
	// when ctx is done or Close is called. Subscribing with no topics
	// means TopicJobs.
	Subscribe(ctx context.Context, subscriberID string, topics ...string) (Subscription, error)

	// Close ends every subscription and rejects further publishes.
	Close() error
}

// Subscription is one subscriber's view of the bus.
type Subscription interface {
	ID() string
	// C yields deliveries until the subscription ends, then is closed.
	C() <-chan *Delivery
	Close() error
}

// Delivery is one attempt at handing an event to a subscription.
type Delivery struct {
	Event *Event
	// Attempt is 1 for the first delivery and increases on redelivery.
	Attempt int

	once sync.Once
	ack  func(ctx context.Context) error
	err  error
}

// NewDelivery returns a delivery whose Ack calls ack at most once.
func NewDelivery(evt *Event, attempt int, ack func(ctx context.Context) error) *Delivery {
	return &Delivery{Event: evt, Attempt: attempt, ack: ack}
}

// Ack confirms the delivery was processed. Repeated calls return the
// result of the first.
func (d *Delivery) Ack(ctx context.Context) error {
	d.once.Do(func() {
		if d.ack != nil {
			d.err = d.ack(ctx)
		}
	})
	return d.err
}
