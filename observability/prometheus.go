package observability

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/ext"
	"github.com/gaurav-seth/carenest-helper/id"
	"github.com/gaurav-seth/carenest-helper/job"
)

var (
	_ ext.Extension       = (*PrometheusExtension)(nil)
	_ ext.JobCreated      = (*PrometheusExtension)(nil)
	_ ext.JobPublished    = (*PrometheusExtension)(nil)
	_ ext.BroadcastFailed = (*PrometheusExtension)(nil)
	_ ext.JobClaimed      = (*PrometheusExtension)(nil)
	_ ext.ClaimLost       = (*PrometheusExtension)(nil)
	_ ext.ClaimFailed     = (*PrometheusExtension)(nil)
)

// PrometheusExtension exposes job and claim counters as Prometheus
// collectors.
type PrometheusExtension struct {
	Jobs         *prometheus.CounterVec // event: created, published, broadcast_failed
	Claims       *prometheus.CounterVec // outcome: won, lost, not_found, error
	ClaimLatency prometheus.Histogram
}

// NewPrometheusExtension registers its collectors on reg. Pass
// prometheus.DefaultRegisterer to expose them on the default /metrics.
func NewPrometheusExtension(reg prometheus.Registerer) *PrometheusExtension {
	f := promauto.With(reg)
	return &PrometheusExtension{
		Jobs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carenest",
			Name:      "jobs_total",
			Help:      "Job lifecycle events by kind.",
		}, []string{"event"}),
		Claims: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carenest",
			Name:      "claims_total",
			Help:      "Claim results by outcome.",
		}, []string{"outcome"}),
		ClaimLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "carenest",
			Name:      "claim_won_seconds",
			Help:      "Latency of winning claims.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
	}
}

// Name implements ext.Extension.
func (p *PrometheusExtension) Name() string { return "observability-prometheus" }

// OnJobCreated implements ext.JobCreated.
func (p *PrometheusExtension) OnJobCreated(context.Context, *job.Job) error {
	p.Jobs.WithLabelValues("created").Inc()
	return nil
}

// OnJobPublished implements ext.JobPublished.
func (p *PrometheusExtension) OnJobPublished(context.Context, *job.Job) error {
	p.Jobs.WithLabelValues("published").Inc()
	return nil
}

// OnBroadcastFailed implements ext.BroadcastFailed.
func (p *PrometheusExtension) OnBroadcastFailed(context.Context, *job.Job, error) error {
	p.Jobs.WithLabelValues("broadcast_failed").Inc()
	return nil
}

// OnJobClaimed implements ext.JobClaimed.
func (p *PrometheusExtension) OnJobClaimed(_ context.Context, _ id.JobID, _ string, elapsed time.Duration) error {
	p.Claims.WithLabelValues(string(job.OutcomeWon)).Inc()
	p.ClaimLatency.Observe(elapsed.Seconds())
	return nil
}

// OnClaimLost implements ext.ClaimLost.
func (p *PrometheusExtension) OnClaimLost(context.Context, id.JobID, string) error {
	p.Claims.WithLabelValues(string(job.OutcomeLost)).Inc()
	return nil
}

// OnClaimFailed implements ext.ClaimFailed.
func (p *PrometheusExtension) OnClaimFailed(_ context.Context, _ id.JobID, _ string, err error) error {
	outcome := "error"
	if errors.Is(err, carenest.ErrJobNotFound) {
		outcome = string(job.OutcomeNotFound)
	}
	p.Claims.WithLabelValues(outcome).Inc()
	return nil
}
