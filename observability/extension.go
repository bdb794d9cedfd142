package observability

import (
	"context"
	"time"

	gu "github.com/xraph/go-utils/metrics"

	"github.com/gaurav-seth/carenest-helper/ext"
	"github.com/gaurav-seth/carenest-helper/id"
	"github.com/gaurav-seth/carenest-helper/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension       = (*MetricsExtension)(nil)
	_ ext.JobCreated      = (*MetricsExtension)(nil)
	_ ext.JobPublished    = (*MetricsExtension)(nil)
	_ ext.BroadcastFailed = (*MetricsExtension)(nil)
	_ ext.JobClaimed      = (*MetricsExtension)(nil)
	_ ext.ClaimLost       = (*MetricsExtension)(nil)
	_ ext.ClaimFailed     = (*MetricsExtension)(nil)
)

// MetricsExtension records hub-wide job and claim counters via a go-utils
// MetricFactory. Claim latency is recorded by the claim metrics middleware.
type MetricsExtension struct {
	JobCreated      gu.Counter
	JobPublished    gu.Counter
	BroadcastFailed gu.Counter
	JobClaimed      gu.Counter
	ClaimLost       gu.Counter
	ClaimFailed     gu.Counter
}

// NewMetricsExtension creates a MetricsExtension using a default metrics collector.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithFactory(gu.NewMetricsCollector("carenest/observability"))
}

// NewMetricsExtensionWithFactory creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtensionWithFactory(factory gu.MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		JobCreated:      factory.Counter("carenest.job.created"),
		JobPublished:    factory.Counter("carenest.job.published"),
		BroadcastFailed: factory.Counter("carenest.job.broadcast_failed"),
		JobClaimed:      factory.Counter("carenest.job.claimed"),
		ClaimLost:       factory.Counter("carenest.claim.lost"),
		ClaimFailed:     factory.Counter("carenest.claim.failed"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Job hooks ───────────────────────────────────────

// OnJobCreated implements ext.JobCreated.
func (m *MetricsExtension) OnJobCreated(_ context.Context, _ *job.Job) error {
	m.JobCreated.Inc()
	return nil
}

// OnJobPublished implements ext.JobPublished.
func (m *MetricsExtension) OnJobPublished(_ context.Context, _ *job.Job) error {
	m.JobPublished.Inc()
	return nil
}

// OnBroadcastFailed implements ext.BroadcastFailed.
func (m *MetricsExtension) OnBroadcastFailed(_ context.Context, _ *job.Job, _ error) error {
	m.BroadcastFailed.Inc()
	return nil
}

// ── Claim hooks ─────────────────────────────────────

// OnJobClaimed implements ext.JobClaimed.
func (m *MetricsExtension) OnJobClaimed(_ context.Context, _ id.JobID, _ string, _ time.Duration) error {
	m.JobClaimed.Inc()
	return nil
}

// OnClaimLost implements ext.ClaimLost.
func (m *MetricsExtension) OnClaimLost(_ context.Context, _ id.JobID, _ string) error {
	m.ClaimLost.Inc()
	return nil
}

// OnClaimFailed implements ext.ClaimFailed.
func (m *MetricsExtension) OnClaimFailed(_ context.Context, _ id.JobID, _ string, _ error) error {
	m.ClaimFailed.Inc()
	return nil
}
