package backoff_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gaurav-seth/carenest-helper/backoff"
)

func TestConstant(t *testing.T) {
	c := backoff.NewConstant(5 * time.Second)
	for attempt := 1; attempt <= 5; attempt++ {
		if got := c.Delay(attempt); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want 5s", attempt, got)
		}
	}
}

func TestExponential(t *testing.T) {
	e := backoff.NewExponential(time.Second, 10*time.Second)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{40, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponentialWithJitter_StaysInBounds(t *testing.T) {
	e := backoff.NewExponentialWithJitter(100*time.Millisecond, time.Second)
	for attempt := 1; attempt <= 10; attempt++ {
		bound := backoff.NewExponential(100*time.Millisecond, time.Second).Delay(attempt)
		for range 50 {
			got := e.Delay(attempt)
			if got < 0 || got > bound {
				t.Fatalf("Delay(%d) = %v, outside [0, %v]", attempt, got, bound)
			}
		}
	}
}

var errTransient = errors.New("transient")

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := backoff.Retry(context.Background(), backoff.NewConstant(time.Millisecond), 5, nil,
		func(context.Context) error {
			calls++
			if calls < 3 {
				return errTransient
			}
			return nil
		})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetry_StopsAtMaxAttempts(t *testing.T) {
	calls := 0
	err := backoff.Retry(context.Background(), backoff.NewConstant(time.Millisecond), 4, nil,
		func(context.Context) error {
			calls++
			return errTransient
		})
	if !errors.Is(err, errTransient) {
		t.Fatalf("got %v, want errTransient", err)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
}

func TestRetry_DoesNotRetryPermanentErrors(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	err := backoff.Retry(context.Background(), backoff.NewConstant(time.Millisecond), 5,
		func(err error) bool { return errors.Is(err, errTransient) },
		func(context.Context) error {
			calls++
			return permanent
		})
	if !errors.Is(err, permanent) || calls != 1 {
		t.Fatalf("got err=%v calls=%d, want permanent after 1 call", err, calls)
	}
}

func TestRetry_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := backoff.Retry(ctx, backoff.NewConstant(time.Hour), 5, nil,
		func(context.Context) error {
			calls++
			cancel()
			return errTransient
		})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
