package middleware_test

import (
	"context"
	"errors"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/gaurav-seth/carenest-helper/job"
	mw "github.com/gaurav-seth/carenest-helper/middleware"
)

func setupTestMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// attemptsByOutcome sums the attempts counter per outcome attribute.
func attemptsByOutcome(t *testing.T, rm metricdata.ResourceMetrics) map[string]int64 {
	t.Helper()
	m := findMetric(rm, "carenest.claim.attempts")
	if m == nil {
		t.Fatal("carenest.claim.attempts not found")
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", m.Data)
	}
	out := make(map[string]int64)
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value("outcome")
		out[v.AsString()] += dp.Value
	}
	return out
}

func TestMetrics_CountsByOutcome(t *testing.T) {
	reader, mp := setupTestMeter()
	m := mw.MetricsWithMeter(mp.Meter("test"))
	ctx := context.Background()

	for _, r := range []job.ClaimResult{job.ClaimWon, job.ClaimLost, job.ClaimLost, job.ClaimAlreadyOwned} {
		c := newTestClaim()
		if err := m(ctx, c, settle(r, c)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	_ = m(ctx, newTestClaim(), func(context.Context) error { return errors.New("conn reset") })

	got := attemptsByOutcome(t, collectMetrics(t, reader))
	want := map[string]int64{"won": 1, "lost": 2, "already_owned": 1, "error": 1}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("attempts[%s] = %d, want %d", k, got[k], v)
		}
	}
}

func TestMetrics_RecordsDuration(t *testing.T) {
	reader, mp := setupTestMeter()
	c := newTestClaim()
	_ = mw.MetricsWithMeter(mp.Meter("test"))(context.Background(), c, settle(job.ClaimWon, c))

	m := findMetric(collectMetrics(t, reader), "carenest.claim.duration")
	if m == nil {
		t.Fatal("carenest.claim.duration not found")
	}
	hist, ok := m.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("unexpected data type %T", m.Data)
	}
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
		t.Fatalf("unexpected data points: %+v", hist.DataPoints)
	}
}

func TestMetrics_DefaultNoopSafe(t *testing.T) {
	c := newTestClaim()
	if err := mw.Metrics()(context.Background(), c, settle(job.ClaimWon, c)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
