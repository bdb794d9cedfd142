package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/id"
	"github.com/gaurav-seth/carenest-helper/job"
	"github.com/gaurav-seth/carenest-helper/observability"
)

func TestPrometheusExtension(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	p := observability.NewPrometheusExtension(reg)

	j := job.New("+15550001", "loc-A")
	_ = p.OnJobCreated(ctx, j)
	_ = p.OnJobPublished(ctx, j)
	_ = p.OnJobClaimed(ctx, j.ID, "W1", 2*time.Millisecond)
	_ = p.OnClaimLost(ctx, j.ID, "W2")
	_ = p.OnClaimLost(ctx, j.ID, "W3")
	_ = p.OnClaimFailed(ctx, id.NewJobID(), "W4", carenest.ErrJobNotFound)
	_ = p.OnClaimFailed(ctx, j.ID, "W5", carenest.ErrStoreUnavailable)

	checks := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"created", p.Jobs.WithLabelValues("created"), 1},
		{"published", p.Jobs.WithLabelValues("published"), 1},
		{"broadcast_failed", p.Jobs.WithLabelValues("broadcast_failed"), 0},
		{"won", p.Claims.WithLabelValues("won"), 1},
		{"lost", p.Claims.WithLabelValues("lost"), 2},
		{"not_found", p.Claims.WithLabelValues("not_found"), 1},
		{"error", p.Claims.WithLabelValues("error"), 1},
	}
	for _, c := range checks {
		if got := testutil.ToFloat64(c.c); got != c.want {
			t.Errorf("%s = %v, want %v", c.name, got, c.want)
		}
	}

	if n := testutil.CollectAndCount(p.ClaimLatency); n != 1 {
		t.Errorf("latency series = %d, want 1", n)
	}
}

func TestPrometheusExtension_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	observability.NewPrometheusExtension(reg)

	defer func() {
		if recover() == nil {
			t.Error("second registration on the same registerer did not panic")
		}
	}()
	observability.NewPrometheusExtension(reg)
}
