package broadcast

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// pending is one event waiting for delivery or acknowledgement.
type pending struct {
	seq      uint64
	evt      *Event
	attempt  int
	deadline time.Time // zero until handed to the consumer
}

// subscriber owns an unbounded queue and a pump goroutine that moves
// events from the queue to the consumer channel. Publishing only appends
// to the queue, so a slow consumer never blocks the publisher and no
// event is dropped.
type subscriber struct {
	id         string
	out        chan *Delivery
	ackTimeout time.Duration

	mu       sync.Mutex
	queue    []*pending
	inflight map[uint64]*pending
	seq      uint64
	closed   bool

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	redelivered atomic.Int64
}

func newSubscriber(id string, ackTimeout time.Duration) *subscriber {
	return &subscriber{
		id:         id,
		out:        make(chan *Delivery),
		ackTimeout: ackTimeout,
		inflight:   make(map[uint64]*pending),
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// enqueue appends evt. Returns false if the subscriber is closed.
func (s *subscriber) enqueue(evt *Event) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.seq++
	s.queue = append(s.queue, &pending{seq: s.seq, evt: evt, attempt: 1})
	s.mu.Unlock()

	s.signal()
	return true
}

func (s *subscriber) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// next pops the queue head and registers it as in flight.
func (s *subscriber) next() *pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	p := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	if s.ackTimeout > 0 {
		s.inflight[p.seq] = p
	}
	return p
}

// sent starts the ack clock for p unless it was already acknowledged.
func (s *subscriber) sent(p *pending, now time.Time) {
	if s.ackTimeout <= 0 {
		return
	}
	s.mu.Lock()
	if cur, ok := s.inflight[p.seq]; ok {
		cur.deadline = now.Add(s.ackTimeout)
	}
	s.mu.Unlock()
}

func (s *subscriber) ack(seq uint64) {
	s.mu.Lock()
	delete(s.inflight, seq)
	s.mu.Unlock()
}

// requeueExpired moves deliveries whose ack deadline has passed back to
// the queue with an incremented attempt.
func (s *subscriber) requeueExpired(now time.Time) {
	s.mu.Lock()
	n := 0
	for seq, p := range s.inflight {
		if p.deadline.IsZero() || now.Before(p.deadline) {
			continue
		}
		delete(s.inflight, seq)
		s.queue = append(s.queue, &pending{seq: p.seq, evt: p.evt, attempt: p.attempt + 1})
		n++
	}
	s.mu.Unlock()

	if n > 0 {
		s.redelivered.Add(int64(n))
		s.signal()
	}
}

func (s *subscriber) delivery(p *pending) *Delivery {
	seq := p.seq
	return NewDelivery(p.evt, p.attempt, func(context.Context) error {
		s.ack(seq)
		return nil
	})
}

// depth returns queued plus unacknowledged events.
func (s *subscriber) depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue) + len(s.inflight)
}

// run pumps the queue until the subscriber is closed or ctx ends. It is
// the only writer to out and closes it on return.
func (s *subscriber) run(ctx context.Context, onCancel func()) {
	defer close(s.out)

	var tick <-chan time.Time
	if s.ackTimeout > 0 {
		t := time.NewTicker(max(s.ackTimeout/4, 5*time.Millisecond))
		defer t.Stop()
		tick = t.C
	}

	for {
		p := s.next()
		if p == nil {
			select {
			case <-s.wake:
			case now := <-tick:
				s.requeueExpired(now)
			case <-s.done:
				return
			case <-ctx.Done():
				onCancel()
				return
			}
			continue
		}

		d := s.delivery(p)
	send:
		for {
			select {
			case s.out <- d:
				s.sent(p, time.Now())
				break send
			case now := <-tick:
				s.requeueExpired(now)
			case <-s.done:
				return
			case <-ctx.Done():
				onCancel()
				return
			}
		}
	}
}

// close stops the pump. Safe to call multiple times.
func (s *subscriber) close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.queue = nil
		s.inflight = map[uint64]*pending{}
		s.mu.Unlock()
		close(s.done)
	})
}

// subscription is the Subscription handed to callers of Broker.Subscribe.
type subscription struct {
	sub    *subscriber
	remove func()
}

func (s *subscription) ID() string          { return s.sub.id }
func (s *subscription) C() <-chan *Delivery { return s.sub.out }
func (s *subscription) Close() error        { s.remove(); return nil }
