package redisbus_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/broadcast"
	"github.com/gaurav-seth/carenest-helper/broadcast/redisbus"
	"github.com/gaurav-seth/carenest-helper/job"
)

func newBus(t *testing.T, opts ...redisbus.Option) (*redisbus.Bus, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	opts = append([]redisbus.Option{redisbus.WithBlock(50 * time.Millisecond)}, opts...)
	bus := redisbus.New(client, opts...)
	t.Cleanup(func() { _ = bus.Close() })
	return bus, mr
}

func jobCreated(t *testing.T, location string) *broadcast.Event {
	t.Helper()
	evt, err := broadcast.JobCreated(job.CreatedEventOf(job.New("+15550001", location)))
	if err != nil {
		t.Fatalf("JobCreated: %v", err)
	}
	return evt
}

func receive(t *testing.T, sub broadcast.Subscription) *broadcast.Delivery {
	t.Helper()
	select {
	case d, ok := <-sub.C():
		if !ok {
			t.Fatalf("subscription %s closed", sub.ID())
		}
		return d
	case <-time.After(3 * time.Second):
		t.Fatalf("subscription %s: timed out", sub.ID())
	}
	return nil
}

func TestBus_FanoutToEveryGroup(t *testing.T) {
	bus, _ := newBus(t)
	ctx := context.Background()

	subs := make([]broadcast.Subscription, 3)
	for i := range subs {
		s, err := bus.Subscribe(ctx, fmt.Sprintf("helper-%d", i), broadcast.TopicJobs)
		if err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
		subs[i] = s
	}

	evt := jobCreated(t, "loc-A")
	if err := bus.Publish(ctx, evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for _, s := range subs {
		d := receive(t, s)
		if d.Event.ID != evt.ID || d.Event.Type != broadcast.EventJobCreated {
			t.Errorf("%s got %+v", s.ID(), d.Event)
		}
		data, err := d.Event.JobCreatedData()
		if err != nil {
			t.Fatalf("JobCreatedData: %v", err)
		}
		if data.Location != "loc-A" {
			t.Errorf("location = %q", data.Location)
		}
		if err := d.Ack(ctx); err != nil {
			t.Fatalf("Ack: %v", err)
		}
	}
}

func TestBus_LateSubscriberMissesEarlierEntries(t *testing.T) {
	bus, _ := newBus(t)
	ctx := context.Background()

	if err := bus.Publish(ctx, jobCreated(t, "early")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	sub, err := bus.Subscribe(ctx, "late")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := bus.Publish(ctx, jobCreated(t, "later")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	d := receive(t, sub)
	data, err := d.Event.JobCreatedData()
	if err != nil {
		t.Fatalf("JobCreatedData: %v", err)
	}
	if data.Location != "later" {
		t.Errorf("first delivery location = %q, want later", data.Location)
	}
}

func TestBus_RedeliversUnacked(t *testing.T) {
	bus, _ := newBus(t, redisbus.WithAckTimeout(100*time.Millisecond))
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, "forgetful")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	evt := jobCreated(t, "loc")
	if err := bus.Publish(ctx, evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	first := receive(t, sub)
	second := receive(t, sub)
	if second.Event.ID != first.Event.ID {
		t.Fatalf("redelivered %s, want %s", second.Event.ID, first.Event.ID)
	}
	if second.Attempt < 2 {
		t.Errorf("attempt = %d, want >= 2", second.Attempt)
	}
}

func TestBus_RedeliveryWaitsForAckTimeout(t *testing.T) {
	const ackTimeout = 400 * time.Millisecond
	bus, _ := newBus(t, redisbus.WithAckTimeout(ackTimeout))
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, "slow")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	// Publish late in the first scan window so an entry handed out just
	// before a scan is not picked up by it.
	time.Sleep(3 * ackTimeout / 4)
	if err := bus.Publish(ctx, jobCreated(t, "loc")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	first := receive(t, sub)
	delivered := time.Now()
	select {
	case d := <-sub.C():
		t.Fatalf("redelivered after %v, before the ack timeout (attempt %d)", time.Since(delivered), d.Attempt)
	case <-time.After(ackTimeout / 2):
	}

	second := receive(t, sub)
	if second.Event.ID != first.Event.ID || second.Attempt != 2 {
		t.Errorf("second delivery = %s attempt %d, want %s attempt 2", second.Event.ID, second.Attempt, first.Event.ID)
	}
	if elapsed := time.Since(delivered); elapsed < ackTimeout {
		t.Errorf("redelivered after %v, want >= %v", elapsed, ackTimeout)
	}
}

func TestBus_SameIDOnTwoBusesSharesGroup(t *testing.T) {
	busA, mr := newBus(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	busB := redisbus.New(client, redisbus.WithBlock(50*time.Millisecond))
	t.Cleanup(func() { _ = busB.Close() })
	ctx := context.Background()

	subA, err := busA.Subscribe(ctx, "node-shared")
	if err != nil {
		t.Fatalf("Subscribe A: %v", err)
	}
	subB, err := busB.Subscribe(ctx, "node-shared")
	if err != nil {
		t.Fatalf("Subscribe B: %v", err)
	}

	const n = 4
	for i := range n {
		if err := busA.Publish(ctx, jobCreated(t, fmt.Sprintf("loc-%d", i))); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	// The group hands each entry to one of the two readers.
	seen := make(map[string]bool)
	deadline := time.After(3 * time.Second)
	for len(seen) < n {
		var d *broadcast.Delivery
		select {
		case d = <-subA.C():
		case d = <-subB.C():
		case <-deadline:
			t.Fatalf("received %d distinct entries, want %d", len(seen), n)
		}
		if seen[d.Event.ID] {
			t.Fatalf("entry %s delivered to both buses", d.Event.ID)
		}
		seen[d.Event.ID] = true
		_ = d.Ack(ctx)
	}

	select {
	case d := <-subA.C():
		t.Errorf("extra delivery %s on A", d.Event.ID)
	case d := <-subB.C():
		t.Errorf("extra delivery %s on B", d.Event.ID)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestBus_CloseReleasesSubscriberID(t *testing.T) {
	bus, _ := newBus(t)
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, "leaving", broadcast.TopicJobs)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := <-sub.C(); ok {
		t.Fatal("expected closed channel")
	}

	// The subscriber ID can be reused.
	again, err := bus.Subscribe(ctx, "leaving")
	if err != nil {
		t.Fatalf("re-Subscribe: %v", err)
	}
	_ = again.Close()
}

func TestBus_Validation(t *testing.T) {
	bus, _ := newBus(t)
	ctx := context.Background()

	if _, err := bus.Subscribe(ctx, ""); !errors.Is(err, carenest.ErrInvalidInput) {
		t.Errorf("empty id: got %v", err)
	}
	if _, err := bus.Subscribe(ctx, "x", "bogus"); !errors.Is(err, carenest.ErrInvalidInput) {
		t.Errorf("bad topic: got %v", err)
	}
	if _, err := bus.Subscribe(ctx, "dup"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := bus.Subscribe(ctx, "dup"); !errors.Is(err, carenest.ErrSubscriberExists) {
		t.Errorf("duplicate: got %v", err)
	}

	if err := bus.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := bus.Publish(ctx, jobCreated(t, "loc")); !errors.Is(err, carenest.ErrBusClosed) {
		t.Errorf("publish after close: got %v", err)
	}
}

func TestBus_PublishFailsWhenRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	bus := redisbus.New(client)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := bus.Publish(ctx, jobCreated(t, "loc")); err == nil {
		t.Fatal("expected publish error with redis down")
	}
}
