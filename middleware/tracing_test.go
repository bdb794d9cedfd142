package middleware_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/job"
	mw "github.com/gaurav-seth/carenest-helper/middleware"
)

func setupTestTracer() (*tracetest.SpanRecorder, trace.Tracer) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return sr, tp.Tracer("test")
}

func spanAttrs(s sdktrace.ReadOnlySpan) map[string]any {
	out := make(map[string]any)
	for _, a := range s.Attributes() {
		switch a.Value.Type() {
		case attribute.STRING:
			out[string(a.Key)] = a.Value.AsString()
		case attribute.INT64:
			out[string(a.Key)] = a.Value.AsInt64()
		}
	}
	return out
}

func TestTracing_SpanForWonClaim(t *testing.T) {
	sr, tracer := setupTestTracer()
	c := newTestClaim()

	if err := mw.TracingWithTracer(tracer)(context.Background(), c, settle(job.ClaimWon, c)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if got := spans[0].Name(); got != "carenest.job.claim" {
		t.Errorf("span name = %q", got)
	}
	if spans[0].Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", spans[0].Status().Code)
	}

	want := map[string]any{
		"carenest.job.id":        c.JobID.String(),
		"carenest.worker_ref":    "hlp-1",
		"carenest.claim.attempt": int64(1),
		"carenest.claim.outcome": "won",
	}
	got := spanAttrs(spans[0])
	for k, v := range want {
		if got[k] != v {
			t.Errorf("attribute %q = %v, want %v", k, got[k], v)
		}
	}
}

func TestTracing_ErrorStatus(t *testing.T) {
	sr, tracer := setupTestTracer()

	err := mw.TracingWithTracer(tracer)(context.Background(), newTestClaim(), func(context.Context) error {
		return carenest.ErrJobNotFound
	})
	if !errors.Is(err, carenest.ErrJobNotFound) {
		t.Fatalf("err = %v", err)
	}

	span := sr.Ended()[0]
	if span.Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", span.Status().Code)
	}
	if got := spanAttrs(span)["carenest.claim.outcome"]; got != "not_found" {
		t.Errorf("outcome = %v, want not_found", got)
	}
	if len(span.Events()) == 0 {
		t.Error("expected the error to be recorded as a span event")
	}
}

func TestTracing_DefaultNoopSafe(t *testing.T) {
	c := newTestClaim()
	if err := mw.Tracing()(context.Background(), c, settle(job.ClaimLost, c)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
