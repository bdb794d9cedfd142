package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for carenest metrics.
const meterName = "github.com/gaurav-seth/carenest-helper"

// Metrics records claim metrics on the global MeterProvider. Without a
// configured provider the instruments are noops.
//
// Instruments:
//   - carenest.claim.duration (Float64Histogram, seconds) by outcome
//   - carenest.claim.attempts (Int64Counter) by outcome
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter records claim metrics on the given meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// The OTel API hands back noop instruments alongside any error.
	duration, _ := meter.Float64Histogram(
		"carenest.claim.duration",
		metric.WithDescription("Duration of a claim's conditional write in seconds"),
		metric.WithUnit("s"),
	)
	attempts, _ := meter.Int64Counter(
		"carenest.claim.attempts",
		metric.WithDescription("Claim attempts by outcome"),
		metric.WithUnit("{attempt}"),
	)

	return func(ctx context.Context, c *Claim, next Handler) error {
		start := time.Now()
		err := next(ctx)

		attrs := metric.WithAttributes(attribute.String("outcome", outcomeLabel(c, err)))
		duration.Record(ctx, time.Since(start).Seconds(), attrs)
		attempts.Add(ctx, 1, attrs)
		return err
	}
}
