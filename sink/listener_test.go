package sink_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/arbiter"
	"github.com/gaurav-seth/carenest-helper/backoff"
	"github.com/gaurav-seth/carenest-helper/broadcast"
	"github.com/gaurav-seth/carenest-helper/id"
	"github.com/gaurav-seth/carenest-helper/job"
	"github.com/gaurav-seth/carenest-helper/lifecycle"
	"github.com/gaurav-seth/carenest-helper/sink"
	"github.com/gaurav-seth/carenest-helper/store/memory"
)

// results collects listener outcomes across goroutines.
type results struct {
	mu  sync.Mutex
	all []sink.Result
	ch  chan sink.Result
}

func newResults() *results { return &results{ch: make(chan sink.Result, 64)} }

func (r *results) record(res sink.Result) {
	r.mu.Lock()
	r.all = append(r.all, res)
	r.mu.Unlock()
	r.ch <- res
}

func (r *results) wait(t *testing.T, n int) []sink.Result {
	t.Helper()
	out := make([]sink.Result, 0, n)
	for range n {
		select {
		case res := <-r.ch:
			out = append(out, res)
		case <-time.After(3 * time.Second):
			t.Fatalf("got %d results, want %d", len(out), n)
		}
	}
	return out
}

// runListener runs l until the test ends.
func runListener(t *testing.T, l *sink.Listener) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run: %v", err)
		}
	})
}

// waitSubscribers blocks until the broker has n job subscribers.
func waitSubscribers(t *testing.T, b *broadcast.Broker, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for b.Stats().JobSubscribers < n {
		if time.Now().After(deadline) {
			t.Fatalf("only %d subscribers bound", b.Stats().JobSubscribers)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestListeners_OneJobOneWinner(t *testing.T) {
	st := memory.New()
	bus := broadcast.NewBroker(slog.Default())
	t.Cleanup(func() { _ = bus.Close() })
	arb := arbiter.New(st)
	mgr := lifecycle.NewManager(st, bus)
	res := newResults()

	runListener(t, sink.NewListener("hlp-w1", bus, arb, sink.WithOnOutcome(res.record)))
	runListener(t, sink.NewListener("hlp-w2", bus, arb, sink.WithOnOutcome(res.record)))
	runListener(t, sink.NewListener("hlp-w3", bus, arb,
		sink.WithPolicy(sink.LocationPolicy("loc-B")),
		sink.WithOnOutcome(res.record),
	))
	waitSubscribers(t, bus, 3)

	j, err := mgr.CreateJob(context.Background(), "pat-r1", "loc-A")
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	var won, lost, skipped int
	for _, r := range res.wait(t, 3) {
		if r.JobID.String() != j.ID.String() {
			t.Fatalf("result for job %s, want %s", r.JobID, j.ID)
		}
		switch {
		case r.Skipped:
			skipped++
			if r.WorkerRef != "hlp-w3" {
				t.Errorf("%s skipped, want only hlp-w3", r.WorkerRef)
			}
		case r.Err != nil:
			t.Fatalf("%s: %v", r.WorkerRef, r.Err)
		case r.Outcome == job.OutcomeWon:
			won++
		case r.Outcome == job.OutcomeLost:
			lost++
		}
	}
	if won != 1 || lost != 1 || skipped != 1 {
		t.Fatalf("won=%d lost=%d skipped=%d, want 1/1/1", won, lost, skipped)
	}

	got, _ := mgr.GetJob(context.Background(), j.ID)
	if got.Status != job.StatusAssigned {
		t.Fatalf("job status = %s, want assigned", got.Status)
	}
}

// scriptedClaimer fails the first n calls with a transient error.
type scriptedClaimer struct {
	failures atomic.Int32
	calls    atomic.Int32
	outcome  job.Outcome
	err      error
}

func (c *scriptedClaimer) Claim(context.Context, id.JobID, string) (job.Outcome, error) {
	c.calls.Add(1)
	if c.failures.Add(-1) >= 0 {
		return job.OutcomeLost, carenest.ErrStoreUnavailable
	}
	return c.outcome, c.err
}

func publishJob(t *testing.T, bus broadcast.Bus, location string) id.JobID {
	t.Helper()
	j := job.New("pat-r1", location)
	evt, err := broadcast.JobCreated(job.CreatedEventOf(j))
	if err != nil {
		t.Fatalf("JobCreated: %v", err)
	}
	if err := bus.Publish(context.Background(), evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	return j.ID
}

func TestListener_RetriesTransientFailures(t *testing.T) {
	bus := broadcast.NewBroker(slog.Default())
	t.Cleanup(func() { _ = bus.Close() })
	claimer := &scriptedClaimer{outcome: job.OutcomeWon}
	claimer.failures.Store(2)
	res := newResults()

	runListener(t, sink.NewListener("hlp-w1", bus, claimer,
		sink.WithRetry(backoff.NewConstant(time.Millisecond), 5),
		sink.WithOnOutcome(res.record),
	))
	waitSubscribers(t, bus, 1)
	publishJob(t, bus, "loc-A")

	r := res.wait(t, 1)[0]
	if r.Err != nil || r.Outcome != job.OutcomeWon || r.Attempts != 3 {
		t.Fatalf("result = %+v, want won after 3 attempts", r)
	}
}

func TestListener_GivesUpAfterMaxAttempts(t *testing.T) {
	bus := broadcast.NewBroker(slog.Default())
	t.Cleanup(func() { _ = bus.Close() })
	claimer := &scriptedClaimer{outcome: job.OutcomeWon}
	claimer.failures.Store(100)
	res := newResults()

	runListener(t, sink.NewListener("hlp-w1", bus, claimer,
		sink.WithRetry(backoff.NewConstant(time.Millisecond), 3),
		sink.WithOnOutcome(res.record),
	))
	waitSubscribers(t, bus, 1)
	publishJob(t, bus, "loc-A")

	r := res.wait(t, 1)[0]
	if !errors.Is(r.Err, carenest.ErrStoreUnavailable) || r.Attempts != 3 {
		t.Fatalf("result = %+v, want ErrStoreUnavailable after 3 attempts", r)
	}
}

func TestListener_NotFoundIsNotRetried(t *testing.T) {
	bus := broadcast.NewBroker(slog.Default())
	t.Cleanup(func() { _ = bus.Close() })
	claimer := &scriptedClaimer{outcome: job.OutcomeNotFound, err: carenest.ErrJobNotFound}
	res := newResults()

	runListener(t, sink.NewListener("hlp-w1", bus, claimer, sink.WithOnOutcome(res.record)))
	waitSubscribers(t, bus, 1)
	publishJob(t, bus, "loc-A")

	r := res.wait(t, 1)[0]
	if r.Outcome != job.OutcomeNotFound || r.Attempts != 1 {
		t.Fatalf("result = %+v, want not_found after one attempt", r)
	}
}

func TestListener_DuplicateAnnouncementDoesNotReclaim(t *testing.T) {
	bus := broadcast.NewBroker(slog.Default())
	t.Cleanup(func() { _ = bus.Close() })
	claimer := &scriptedClaimer{outcome: job.OutcomeWon}
	res := newResults()

	runListener(t, sink.NewListener("hlp-w1", bus, claimer, sink.WithOnOutcome(res.record)))
	waitSubscribers(t, bus, 1)

	j := job.New("pat-r1", "loc-A")
	evt, _ := broadcast.JobCreated(job.CreatedEventOf(j))
	for range 2 {
		if err := bus.Publish(context.Background(), evt); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	rs := res.wait(t, 2)
	if rs[0].Duplicate || !rs[1].Duplicate || rs[1].Outcome != job.OutcomeWon {
		t.Fatalf("results = %+v", rs)
	}
	if claimer.calls.Load() != 1 {
		t.Fatalf("claims = %d, want 1", claimer.calls.Load())
	}
}

func TestListener_RunStopsOnCancel(t *testing.T) {
	bus := broadcast.NewBroker(slog.Default())
	t.Cleanup(func() { _ = bus.Close() })
	l := sink.NewListener("hlp-w1", bus, &scriptedClaimer{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	waitSubscribers(t, bus, 1)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestListener_RunReportsClosedBus(t *testing.T) {
	bus := broadcast.NewBroker(slog.Default())
	l := sink.NewListener("hlp-w1", bus, &scriptedClaimer{})

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()
	waitSubscribers(t, bus, 1)
	_ = bus.Close()

	select {
	case err := <-done:
		if !errors.Is(err, carenest.ErrBusClosed) {
			t.Fatalf("Run = %v, want ErrBusClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after bus close")
	}
}

func TestLocationPolicy(t *testing.T) {
	p := sink.LocationPolicy(" Koramangala ", "indiranagar")
	tests := []struct {
		loc  string
		want bool
	}{
		{"5th Block, KORAMANGALA", true},
		{"Indiranagar 100ft Rd", true},
		{"Whitefield", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := p.Accept(context.Background(), job.CreatedEvent{Location: tt.loc}); got != tt.want {
			t.Errorf("Accept(%q) = %v, want %v", tt.loc, got, tt.want)
		}
	}
	if sink.LocationPolicy().Accept(context.Background(), job.CreatedEvent{Location: "x"}) {
		t.Error("empty policy should accept nothing")
	}
	if !sink.AcceptAll.Accept(context.Background(), job.CreatedEvent{}) {
		t.Error("AcceptAll rejected")
	}
}
