package middleware_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/id"
	"github.com/gaurav-seth/carenest-helper/job"
	"github.com/gaurav-seth/carenest-helper/middleware"
)

func newTestClaim() *middleware.Claim {
	return &middleware.Claim{JobID: id.NewJobID(), WorkerRef: "hlp-1", Attempt: 1}
}

func settle(r job.ClaimResult, c *middleware.Claim) middleware.Handler {
	return func(context.Context) error {
		c.Result = r
		return nil
	}
}

func TestChain_ExecutionOrder(t *testing.T) {
	var order []string
	mark := func(name string) middleware.Middleware {
		return func(ctx context.Context, _ *middleware.Claim, next middleware.Handler) error {
			order = append(order, name+"-before")
			err := next(ctx)
			order = append(order, name+"-after")
			return err
		}
	}

	chain := middleware.Chain(mark("mw1"), mark("mw2"))
	err := chain(context.Background(), newTestClaim(), func(context.Context) error {
		order = append(order, "handler")
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestChain_Empty(t *testing.T) {
	c := newTestClaim()
	err := middleware.Chain()(context.Background(), c, settle(job.ClaimWon, c))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Result != job.ClaimWon {
		t.Fatalf("Result = %v, want won", c.Result)
	}
}

func TestChain_ShortCircuit(t *testing.T) {
	stop := errors.New("stop")
	deny := func(context.Context, *middleware.Claim, middleware.Handler) error { return stop }

	called := false
	err := middleware.Chain(deny)(context.Background(), newTestClaim(), func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, stop) {
		t.Fatalf("err = %v, want %v", err, stop)
	}
	if called {
		t.Fatal("handler ran after short-circuit")
	}
}

func TestRecover_CatchesPanic(t *testing.T) {
	mw := middleware.Recover(slog.Default())
	err := mw(context.Background(), newTestClaim(), func(context.Context) error {
		panic("boom")
	})
	if !errors.Is(err, carenest.ErrStoreUnavailable) {
		t.Fatalf("err = %v, want ErrStoreUnavailable", err)
	}
	if !carenest.IsRetryable(err) {
		t.Fatal("recovered panic should be retryable")
	}
}

func TestRecover_PassesThrough(t *testing.T) {
	c := newTestClaim()
	if err := middleware.Recover(slog.Default())(context.Background(), c, settle(job.ClaimLost, c)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Result != job.ClaimLost {
		t.Fatalf("Result = %v, want lost", c.Result)
	}
}

func TestLogging_KeepsResultAndError(t *testing.T) {
	mw := middleware.Logging(slog.Default())

	c := newTestClaim()
	if err := mw(context.Background(), c, settle(job.ClaimAlreadyOwned, c)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Result != job.ClaimAlreadyOwned {
		t.Fatalf("Result = %v, want already_owned", c.Result)
	}

	err := mw(context.Background(), newTestClaim(), func(context.Context) error {
		return carenest.ErrJobNotFound
	})
	if !errors.Is(err, carenest.ErrJobNotFound) {
		t.Fatalf("err = %v, want ErrJobNotFound", err)
	}
}

func TestTimeout(t *testing.T) {
	t.Run("sets deadline", func(t *testing.T) {
		mw := middleware.Timeout(50 * time.Millisecond)
		err := mw(context.Background(), newTestClaim(), func(ctx context.Context) error {
			if _, ok := ctx.Deadline(); !ok {
				t.Error("expected a deadline")
			}
			<-ctx.Done()
			return ctx.Err()
		})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("err = %v, want DeadlineExceeded", err)
		}
	})

	t.Run("zero leaves context alone", func(t *testing.T) {
		mw := middleware.Timeout(0)
		err := mw(context.Background(), newTestClaim(), func(ctx context.Context) error {
			if _, ok := ctx.Deadline(); ok {
				t.Error("unexpected deadline")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}
