package audithook_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	carenest "github.com/gaurav-seth/carenest-helper"
	audithook "github.com/gaurav-seth/carenest-helper/audit_hook"
	"github.com/gaurav-seth/carenest-helper/broadcast"
	"github.com/gaurav-seth/carenest-helper/engine"
	"github.com/gaurav-seth/carenest-helper/id"
	"github.com/gaurav-seth/carenest-helper/job"
	"github.com/gaurav-seth/carenest-helper/participant"
	"github.com/gaurav-seth/carenest-helper/store/memory"
)

type captured struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (c *captured) Record(_ context.Context, evt *audithook.AuditEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *captured) actions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.Action
	}
	return out
}

func (c *captured) last() *audithook.AuditEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		return nil
	}
	return c.events[len(c.events)-1]
}

func TestHooks(t *testing.T) {
	ctx := context.Background()
	rec := &captured{}
	e := audithook.New(rec)
	j := job.New("+15550001", "Indiranagar")

	_ = e.OnJobCreated(ctx, j)
	if evt := rec.last(); evt.Action != audithook.ActionJobCreated || evt.ResourceID != j.ID.String() ||
		evt.Metadata["location"] != "Indiranagar" || evt.Severity != audithook.SeverityInfo {
		t.Errorf("created event = %+v", evt)
	}

	_ = e.OnBroadcastFailed(ctx, j, carenest.ErrBroadcastFailed)
	if evt := rec.last(); evt.Severity != audithook.SeverityWarning || evt.Reason == "" || evt.Outcome != audithook.OutcomeFailure {
		t.Errorf("broadcast failed event = %+v", evt)
	}

	_ = e.OnJobClaimed(ctx, j.ID, "+15557001", 40*time.Millisecond)
	if evt := rec.last(); evt.Action != audithook.ActionJobAssigned || evt.Metadata["worker_ref"] != "+15557001" ||
		evt.Metadata["elapsed_ms"] != int64(40) {
		t.Errorf("assigned event = %+v", evt)
	}

	_ = e.OnClaimFailed(ctx, id.NewJobID(), "+15557002", carenest.ErrStoreUnavailable)
	if evt := rec.last(); evt.Severity != audithook.SeverityCritical || evt.Category != audithook.CategoryClaim {
		t.Errorf("claim failed event = %+v", evt)
	}
}

func TestWithActions(t *testing.T) {
	ctx := context.Background()
	rec := &captured{}
	e := audithook.New(rec, audithook.WithActions(audithook.ActionClaimLost))
	j := job.New("+15550001", "Indiranagar")

	_ = e.OnJobCreated(ctx, j)
	_ = e.OnJobPublished(ctx, j)
	_ = e.OnClaimLost(ctx, j.ID, "+15557002")

	if got := rec.actions(); len(got) != 1 || got[0] != audithook.ActionClaimLost {
		t.Errorf("actions = %v, want only %s", got, audithook.ActionClaimLost)
	}
}

func TestRecorderErrorIsReturned(t *testing.T) {
	boom := errors.New("disk full")
	e := audithook.New(audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error { return boom }),
		audithook.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	err := e.OnClaimLost(context.Background(), id.NewJobID(), "+15557002")
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
}

func TestEngineIntegration(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h, err := carenest.New(
		carenest.WithLogger(logger),
		carenest.WithStore(memory.New()),
		carenest.WithBus(broadcast.NewBroker(logger)),
	)
	if err != nil {
		t.Fatal(err)
	}
	rec := &captured{}
	eng, err := engine.Build(h, engine.WithoutActivityFeed(), engine.WithExtension(audithook.New(rec)))
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Stop(ctx)

	if _, err := eng.Participants().RegisterPatient(ctx, participant.PatientRequest{
		Name: "Asha", PhoneNumber: "+15550001", Location: "Indiranagar",
	}); err != nil {
		t.Fatal(err)
	}
	j, err := eng.CreateJob(ctx, "+15550001", "Indiranagar")
	if err != nil {
		t.Fatal(err)
	}
	if out, _ := eng.Claim(ctx, j.ID, "+15557001"); out != job.OutcomeWon {
		t.Fatalf("first claim = %s", out)
	}
	if out, _ := eng.Claim(ctx, j.ID, "+15557002"); out != job.OutcomeLost {
		t.Fatalf("second claim = %s", out)
	}

	want := []string{
		audithook.ActionJobCreated,
		audithook.ActionJobPublished,
		audithook.ActionJobAssigned,
		audithook.ActionClaimLost,
	}
	got := rec.actions()
	if len(got) != len(want) {
		t.Fatalf("actions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("action[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}
