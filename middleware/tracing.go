package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for carenest tracing.
const tracerName = "github.com/gaurav-seth/carenest-helper"

// Tracing wraps each claim in a span using the global TracerProvider.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer wraps each claim in a "carenest.job.claim" span. The
// span carries the job id, the worker and, once settled, the outcome.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, c *Claim, next Handler) error {
		ctx, span := tracer.Start(ctx, "carenest.job.claim",
			trace.WithAttributes(
				attribute.String("carenest.job.id", c.JobID.String()),
				attribute.String("carenest.worker_ref", c.WorkerRef),
				attribute.Int("carenest.claim.attempt", c.Attempt),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		span.SetAttributes(attribute.String("carenest.claim.outcome", outcomeLabel(c, err)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return err
	}
}
