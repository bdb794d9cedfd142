package sink

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/backoff"
	"github.com/gaurav-seth/carenest-helper/broadcast"
	"github.com/gaurav-seth/carenest-helper/id"
	"github.com/gaurav-seth/carenest-helper/job"
)

// Source binds a subscriber to the bus. broadcast.Bus and the DWP client
// both satisfy it.
type Source interface {
	Subscribe(ctx context.Context, subscriberID string, topics ...string) (broadcast.Subscription, error)
}

// Claimer settles a claim. arbiter.Arbiter and the DWP client both
// satisfy it.
type Claimer interface {
	Claim(ctx context.Context, jobID id.JobID, workerRef string) (job.Outcome, error)
}

// Result reports what a listener did with one announcement.
type Result struct {
	WorkerRef string
	JobID     id.JobID
	Location  string
	Outcome   job.Outcome
	Skipped   bool
	Duplicate bool
	Attempts  int
	Err       error
}

// Option configures a Listener.
type Option func(*Listener)

// WithPolicy sets the claim policy. The default is AcceptAll.
func WithPolicy(p Policy) Option {
	return func(l *Listener) { l.policy = p }
}

// WithSubscriberID sets the bus subscriber id. The default is a fresh
// sub_ id, so every listener is its own fanout target.
func WithSubscriberID(subscriberID string) Option {
	return func(l *Listener) { l.subscriberID = subscriberID }
}

// WithRetry sets how transient claim failures are retried.
func WithRetry(s backoff.Strategy, maxAttempts int) Option {
	return func(l *Listener) {
		l.strategy = s
		l.maxAttempts = maxAttempts
	}
}

// WithRateLimit caps how many claims per second the listener issues.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(l *Listener) { l.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1)) }
}

// WithOnOutcome registers a callback invoked after every announcement is
// handled.
func WithOnOutcome(fn func(Result)) Option {
	return func(l *Listener) { l.onOutcome = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Listener) { l.logger = logger }
}

// Listener turns job.created deliveries into claims for one helper.
type Listener struct {
	workerRef    string
	subscriberID string
	source       Source
	claimer      Claimer
	policy       Policy
	strategy     backoff.Strategy
	maxAttempts  int
	limiter      *rate.Limiter
	onOutcome    func(Result)
	logger       *slog.Logger
	settled      *recentSet
}

// NewListener returns a listener claiming as workerRef.
func NewListener(workerRef string, source Source, claimer Claimer, opts ...Option) *Listener {
	l := &Listener{
		workerRef:    workerRef,
		subscriberID: id.NewSubscriberID().String(),
		source:       source,
		claimer:      claimer,
		policy:       AcceptAll,
		strategy:     backoff.ClaimStrategy(),
		maxAttempts:  5,
		logger:       slog.Default(),
		settled:      newRecentSet(1024),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// WorkerRef returns the identity this listener claims as.
func (l *Listener) WorkerRef() string { return l.workerRef }

// SubscriberID returns the bus subscriber id.
func (l *Listener) SubscriberID() string { return l.subscriberID }

// Run subscribes and handles deliveries until ctx is done or the
// subscription ends. Cancellation is not an error.
func (l *Listener) Run(ctx context.Context) error {
	sub, err := l.source.Subscribe(ctx, l.subscriberID, broadcast.TopicJobs)
	if err != nil {
		return fmt.Errorf("sink: subscribe %s: %w", l.subscriberID, err)
	}
	defer sub.Close()

	l.logger.Info("helper listening",
		slog.String("worker_ref", l.workerRef),
		slog.String("subscriber_id", l.subscriberID),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-sub.C():
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("sink: subscription %s ended: %w", l.subscriberID, carenest.ErrBusClosed)
			}
			l.handle(ctx, d)
		}
	}
}

func (l *Listener) handle(ctx context.Context, d *broadcast.Delivery) {
	ev, err := d.Event.JobCreatedData()
	if err != nil {
		l.logger.Warn("dropping undecodable delivery",
			slog.String("event_id", d.Event.ID),
			slog.String("error", err.Error()),
		)
		l.ack(ctx, d)
		return
	}

	res := l.process(ctx, ev, d.Attempt)
	l.ack(ctx, d)
	if l.onOutcome != nil {
		l.onOutcome(res)
	}
}

func (l *Listener) process(ctx context.Context, ev job.CreatedEvent, deliveryAttempt int) Result {
	res := Result{WorkerRef: l.workerRef, JobID: ev.JobID, Location: ev.Location}
	key := ev.JobID.String()

	l.logger.Info("job announced",
		slog.String("worker_ref", l.workerRef),
		slog.String("job_id", key),
		slog.String("location", ev.Location),
		slog.Int("delivery_attempt", deliveryAttempt),
	)

	if out, ok := l.settled.get(key); ok {
		res.Outcome = out
		res.Duplicate = true
		return res
	}
	if !l.policy.Accept(ctx, ev) {
		res.Skipped = true
		return res
	}

	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			res.Err = err
			return res
		}
	}

	res.Err = backoff.Retry(ctx, l.strategy, l.maxAttempts, carenest.IsRetryable, func(ctx context.Context) error {
		res.Attempts++
		out, err := l.claimer.Claim(ctx, ev.JobID, l.workerRef)
		res.Outcome = out
		return err
	})

	switch {
	case res.Err == nil:
		l.settled.put(key, res.Outcome)
		l.logger.Info("claim settled",
			slog.String("worker_ref", l.workerRef),
			slog.String("job_id", key),
			slog.String("outcome", string(res.Outcome)),
		)
	case carenest.IsNotFound(res.Err):
		l.settled.put(key, job.OutcomeNotFound)
		res.Outcome = job.OutcomeNotFound
	default:
		l.logger.Warn("claim failed",
			slog.String("worker_ref", l.workerRef),
			slog.String("job_id", key),
			slog.Int("attempts", res.Attempts),
			slog.String("error", res.Err.Error()),
		)
	}
	return res
}

func (l *Listener) ack(ctx context.Context, d *broadcast.Delivery) {
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := d.Ack(ackCtx); err != nil {
		l.logger.Warn("ack failed",
			slog.String("event_id", d.Event.ID),
			slog.String("error", err.Error()),
		)
	}
}

// recentSet remembers the outcome of the last n settled jobs so redelivered
// announcements do not trigger another claim.
type recentSet struct {
	mu    sync.Mutex
	limit int
	order []string
	seen  map[string]job.Outcome
}

func newRecentSet(n int) *recentSet {
	return &recentSet{limit: n, seen: make(map[string]job.Outcome, n)}
}

func (s *recentSet) get(key string) (job.Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, ok := s.seen[key]
	return out, ok
}

func (s *recentSet) put(key string, out job.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; ok {
		s.seen[key] = out
		return
	}
	if len(s.order) == s.limit {
		delete(s.seen, s.order[0])
		s.order = s.order[1:]
	}
	s.order = append(s.order, key)
	s.seen[key] = out
}
