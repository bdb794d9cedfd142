package arbiter_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/arbiter"
	"github.com/gaurav-seth/carenest-helper/ext"
	"github.com/gaurav-seth/carenest-helper/id"
	"github.com/gaurav-seth/carenest-helper/job"
	mw "github.com/gaurav-seth/carenest-helper/middleware"
	"github.com/gaurav-seth/carenest-helper/store/memory"
)

func seedJob(t *testing.T, st job.Store) *job.Job {
	t.Helper()
	j := job.New("pat-r1", "loc-A")
	if err := st.CreateJob(context.Background(), j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return j
}

type claimCounter struct {
	claimed atomic.Int32
	lost    atomic.Int32
	failed  atomic.Int32
}

func (c *claimCounter) Name() string { return "counter" }

func (c *claimCounter) OnJobClaimed(context.Context, id.JobID, string, time.Duration) error {
	c.claimed.Add(1)
	return nil
}

func (c *claimCounter) OnClaimLost(context.Context, id.JobID, string) error {
	c.lost.Add(1)
	return nil
}

func (c *claimCounter) OnClaimFailed(context.Context, id.JobID, string, error) error {
	c.failed.Add(1)
	return nil
}

func newArbiter(st job.Store, opts ...arbiter.Option) (*arbiter.Arbiter, *claimCounter) {
	counter := &claimCounter{}
	reg := ext.NewRegistry(slog.Default())
	reg.Register(counter)
	return arbiter.New(st, append([]arbiter.Option{arbiter.WithExtensions(reg)}, opts...)...), counter
}

func TestClaim_ExactlyOneWinner(t *testing.T) {
	st := memory.New()
	j := seedJob(t, st)
	arb, counter := newArbiter(st)

	const workers = 32
	outcomes := make([]job.Outcome, workers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			out, err := arb.Claim(context.Background(), j.ID, fmt.Sprintf("hlp-%02d", i))
			if err != nil {
				t.Errorf("Claim worker %d: %v", i, err)
			}
			outcomes[i] = out
		}()
	}
	close(start)
	wg.Wait()

	winner := -1
	for i, out := range outcomes {
		switch out {
		case job.OutcomeWon:
			if winner >= 0 {
				t.Fatalf("workers %d and %d both won", winner, i)
			}
			winner = i
		case job.OutcomeLost:
		default:
			t.Fatalf("worker %d got %q", i, out)
		}
	}
	if winner < 0 {
		t.Fatal("nobody won")
	}

	got, err := st.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != job.StatusAssigned || got.AssignedWorkerRef != fmt.Sprintf("hlp-%02d", winner) {
		t.Fatalf("job = %s/%s, want assigned to the winner", got.Status, got.AssignedWorkerRef)
	}
	if counter.claimed.Load() != 1 || counter.lost.Load() != workers-1 {
		t.Fatalf("hooks claimed=%d lost=%d", counter.claimed.Load(), counter.lost.Load())
	}
}

func TestClaim_TwoHelpersRaceThenWinnerRetries(t *testing.T) {
	st := memory.New()
	j := seedJob(t, st)
	arb, _ := newArbiter(st)
	ctx := context.Background()

	var w1, w2 job.Outcome
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); w1, _ = arb.Claim(ctx, j.ID, "hlp-w1") }()
	go func() { defer wg.Done(); w2, _ = arb.Claim(ctx, j.ID, "hlp-w2") }()
	wg.Wait()

	if (w1 == job.OutcomeWon) == (w2 == job.OutcomeWon) {
		t.Fatalf("w1=%s w2=%s, want exactly one winner", w1, w2)
	}
	winner, loser := "hlp-w1", "hlp-w2"
	if w2 == job.OutcomeWon {
		winner, loser = loser, winner
	}

	for range 3 {
		if out, err := arb.Claim(ctx, j.ID, winner); err != nil || out != job.OutcomeWon {
			t.Fatalf("winner retry = %s, %v; want won", out, err)
		}
		if out, err := arb.Claim(ctx, j.ID, loser); err != nil || out != job.OutcomeLost {
			t.Fatalf("loser retry = %s, %v; want lost", out, err)
		}
	}

	got, _ := st.GetJob(ctx, j.ID)
	if got.AssignedWorkerRef != winner {
		t.Fatalf("owner = %s, want %s", got.AssignedWorkerRef, winner)
	}

	open, err := st.ListOpenJobs(ctx, job.ListOpts{})
	if err != nil {
		t.Fatalf("ListOpenJobs: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("claimed job still listed as open: %v", open)
	}
}

func TestClaim_UnknownJob(t *testing.T) {
	arb, counter := newArbiter(memory.New())

	out, err := arb.Claim(context.Background(), id.NewJobID(), "hlp-w1")
	if out != job.OutcomeNotFound || !errors.Is(err, carenest.ErrJobNotFound) {
		t.Fatalf("Claim = %s, %v; want not_found, ErrJobNotFound", out, err)
	}
	if carenest.IsRetryable(err) {
		t.Fatal("not found must not be retryable")
	}
	if counter.failed.Load() != 0 {
		t.Fatal("not found reported as a claim failure")
	}

	out, err = arb.Claim(context.Background(), id.JobID{}, "hlp-w1")
	if out != job.OutcomeNotFound || !errors.Is(err, carenest.ErrJobNotFound) {
		t.Fatalf("Claim(nil id) = %s, %v", out, err)
	}
}

func TestClaim_RequiresWorker(t *testing.T) {
	st := memory.New()
	j := seedJob(t, st)
	arb, _ := newArbiter(st)

	if _, err := arb.Claim(context.Background(), j.ID, "   "); !errors.Is(err, carenest.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	got, _ := st.GetJob(context.Background(), j.ID)
	if !got.IsOpen() {
		t.Fatal("rejected claim changed the job")
	}
}

// flakyStore fails the first n ClaimJob calls with a driver-style error.
type flakyStore struct {
	*memory.Store
	failures atomic.Int32
}

func (s *flakyStore) ClaimJob(ctx context.Context, jobID id.JobID, workerRef string) (job.ClaimResult, error) {
	if s.failures.Add(-1) >= 0 {
		return 0, errors.New("carenest/test: claim job: connection reset")
	}
	return s.Store.ClaimJob(ctx, jobID, workerRef)
}

func TestClaim_StoreFailureIsRetryable(t *testing.T) {
	st := &flakyStore{Store: memory.New()}
	st.failures.Store(1)
	j := seedJob(t, st)
	arb, counter := newArbiter(st)
	ctx := context.Background()

	out, err := arb.Claim(ctx, j.ID, "hlp-w1")
	if !errors.Is(err, carenest.ErrStoreUnavailable) || !carenest.IsRetryable(err) {
		t.Fatalf("err = %v, want retryable ErrStoreUnavailable", err)
	}
	if out == job.OutcomeWon {
		t.Fatal("failed claim reported as won")
	}
	if counter.failed.Load() != 1 {
		t.Fatalf("claim failed hooks = %d, want 1", counter.failed.Load())
	}

	out, err = arb.ClaimAttempt(ctx, j.ID, "hlp-w1", 2)
	if err != nil || out != job.OutcomeWon {
		t.Fatalf("retry = %s, %v; want won", out, err)
	}
}

func TestClaim_RunsMiddleware(t *testing.T) {
	st := memory.New()
	j := seedJob(t, st)

	var seen []string
	record := func(ctx context.Context, c *mw.Claim, next mw.Handler) error {
		err := next(ctx)
		seen = append(seen, fmt.Sprintf("%s#%d=%s", c.WorkerRef, c.Attempt, c.Result))
		return err
	}
	arb, _ := newArbiter(st, arbiter.WithMiddleware(record))

	_, _ = arb.ClaimAttempt(context.Background(), j.ID, "hlp-w1", 3)
	_, _ = arb.Claim(context.Background(), j.ID, "hlp-w2")

	want := []string{"hlp-w1#3=won", "hlp-w2#1=lost"}
	if len(seen) != len(want) || seen[0] != want[0] || seen[1] != want[1] {
		t.Fatalf("middleware saw %v, want %v", seen, want)
	}
}

func TestClaim_PanicInChainIsRecovered(t *testing.T) {
	st := memory.New()
	j := seedJob(t, st)
	boom := func(context.Context, *mw.Claim, mw.Handler) error { panic("boom") }
	arb, _ := newArbiter(st, arbiter.WithMiddleware(mw.Recover(slog.Default()), boom))

	if _, err := arb.Claim(context.Background(), j.ID, "hlp-w1"); !carenest.IsRetryable(err) {
		t.Fatalf("err = %v, want retryable", err)
	}
}

type helperSet map[string]bool

func (h helperSet) HelperExists(_ context.Context, ref string) (bool, error) { return h[ref], nil }

func TestClaim_HelperDirectory(t *testing.T) {
	st := memory.New()
	j := seedJob(t, st)
	arb, _ := newArbiter(st, arbiter.WithHelperDirectory(helperSet{"hlp-known": true}))
	ctx := context.Background()

	if _, err := arb.Claim(ctx, j.ID, "hlp-stranger"); !errors.Is(err, carenest.ErrHelperNotFound) {
		t.Fatalf("err = %v, want ErrHelperNotFound", err)
	}
	if out, err := arb.Claim(ctx, j.ID, "hlp-known"); err != nil || out != job.OutcomeWon {
		t.Fatalf("Claim = %s, %v; want won", out, err)
	}
}
