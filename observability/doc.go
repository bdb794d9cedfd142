// Package observability provides extensions that turn job and claim hooks
// into metrics. MetricsExtension counts through a go-utils MetricFactory and
// PrometheusExtension registers Prometheus collectors; register either (or
// both) on the hub's extension registry.
//
// Per-claim spans and latency live in the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
