package observability_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	gu "github.com/xraph/go-utils/metrics"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/ext"
	"github.com/gaurav-seth/carenest-helper/id"
	"github.com/gaurav-seth/carenest-helper/job"
	"github.com/gaurav-seth/carenest-helper/observability"
)

func newTestExtension() *observability.MetricsExtension {
	return observability.NewMetricsExtensionWithFactory(gu.NewMetricsCollector("test"))
}

func TestMetricsExtension_Name(t *testing.T) {
	e := newTestExtension()
	if e.Name() != "observability-metrics" {
		t.Errorf("Name = %q, want observability-metrics", e.Name())
	}
}

func TestMetricsExtension_Hooks(t *testing.T) {
	ctx := context.Background()
	j := job.New("+15550001", "loc-A")

	tests := []struct {
		name    string
		counter func(e *observability.MetricsExtension) gu.Counter
		fire    func(e *observability.MetricsExtension) error
	}{
		{"created", func(e *observability.MetricsExtension) gu.Counter { return e.JobCreated }, func(e *observability.MetricsExtension) error {
			return e.OnJobCreated(ctx, j)
		}},
		{"published", func(e *observability.MetricsExtension) gu.Counter { return e.JobPublished }, func(e *observability.MetricsExtension) error {
			return e.OnJobPublished(ctx, j)
		}},
		{"broadcast failed", func(e *observability.MetricsExtension) gu.Counter { return e.BroadcastFailed }, func(e *observability.MetricsExtension) error {
			return e.OnBroadcastFailed(ctx, j, errors.New("bus down"))
		}},
		{"claimed", func(e *observability.MetricsExtension) gu.Counter { return e.JobClaimed }, func(e *observability.MetricsExtension) error {
			return e.OnJobClaimed(ctx, j.ID, "W1", 3*time.Millisecond)
		}},
		{"lost", func(e *observability.MetricsExtension) gu.Counter { return e.ClaimLost }, func(e *observability.MetricsExtension) error {
			return e.OnClaimLost(ctx, j.ID, "W2")
		}},
		{"failed", func(e *observability.MetricsExtension) gu.Counter { return e.ClaimFailed }, func(e *observability.MetricsExtension) error {
			return e.OnClaimFailed(ctx, j.ID, "W3", carenest.ErrStoreUnavailable)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestExtension()
			if err := tt.fire(e); err != nil {
				t.Fatalf("hook: %v", err)
			}
			if err := tt.fire(e); err != nil {
				t.Fatalf("hook: %v", err)
			}
			if got := tt.counter(e).Value(); got != 2 {
				t.Errorf("%s = %v, want 2", tt.name, got)
			}
		})
	}
}

func TestMetricsExtension_ThroughRegistry(t *testing.T) {
	ctx := context.Background()
	e := newTestExtension()

	reg := ext.NewRegistry(slog.Default())
	reg.Register(e)

	jobID := id.NewJobID()
	reg.EmitJobClaimed(ctx, jobID, "W1", time.Millisecond)
	reg.EmitClaimLost(ctx, jobID, "W2")
	reg.EmitClaimLost(ctx, jobID, "W3")

	if got := e.JobClaimed.Value(); got != 1 {
		t.Errorf("claimed = %v, want 1", got)
	}
	if got := e.ClaimLost.Value(); got != 2 {
		t.Errorf("lost = %v, want 2", got)
	}
}
