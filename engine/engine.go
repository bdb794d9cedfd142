package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	gu "github.com/xraph/go-utils/metrics"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/arbiter"
	"github.com/gaurav-seth/carenest-helper/backoff"
	"github.com/gaurav-seth/carenest-helper/broadcast"
	"github.com/gaurav-seth/carenest-helper/ext"
	"github.com/gaurav-seth/carenest-helper/id"
	"github.com/gaurav-seth/carenest-helper/job"
	"github.com/gaurav-seth/carenest-helper/lifecycle"
	mw "github.com/gaurav-seth/carenest-helper/middleware"
	"github.com/gaurav-seth/carenest-helper/observability"
	"github.com/gaurav-seth/carenest-helper/participant"
	"github.com/gaurav-seth/carenest-helper/sink"
	"github.com/gaurav-seth/carenest-helper/store"
	"github.com/gaurav-seth/carenest-helper/worker"
)

const instrumentationName = "github.com/gaurav-seth/carenest-helper"

// Engine wraps a Hub with typed subsystem access.
// Use Build() to create one from a Hub.
type Engine struct {
	hub          *carenest.Hub
	store        store.Store
	bus          broadcast.Bus
	extensions   *ext.Registry
	participants *participant.Registry
	lifecycle    *lifecycle.Manager
	arbiter      *arbiter.Arbiter
	pool         *worker.Pool
	logger       *slog.Logger

	mws        []mw.Middleware
	bo         backoff.Strategy
	sender     participant.OTPSender
	promReg    prometheus.Registerer
	noActivity bool
	metrics    gu.MetricFactory

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware appends middleware after the default claim chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithBackoff sets the retry strategy for embedded helpers' claims.
// Defaults to backoff.ClaimStrategy().
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) {
		eng.bo = b
	}
}

// WithOTPSender sets how helper OTPs are delivered. Defaults to logging
// them.
func WithOTPSender(s participant.OTPSender) Option {
	return func(eng *Engine) {
		eng.sender = s
	}
}

// WithPrometheus registers a PrometheusExtension on reg.
func WithPrometheus(reg prometheus.Registerer) Option {
	return func(eng *Engine) {
		eng.promReg = reg
	}
}

// WithoutActivityFeed stops claim results from being published on the
// activity topic.
func WithoutActivityFeed() Option {
	return func(eng *Engine) {
		eng.noActivity = true
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the claim
// tracing middleware. If not set, the global provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the claim metrics
// middleware. If not set, the global provider is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// WithMetricFactory sets the go-utils MetricFactory backing the hub-wide
// job and claim counters. If not set, a default collector is used.
func WithMetricFactory(f gu.MetricFactory) Option {
	return func(eng *Engine) {
		eng.metrics = f
	}
}

// Build creates an Engine from an existing Hub. The hub's store must
// implement store.Store and its bus must implement broadcast.Bus.
func Build(h *carenest.Hub, opts ...Option) (*Engine, error) {
	logger := h.Logger()
	cfg := h.Config()

	if h.Store() == nil {
		return nil, carenest.ErrNoStore
	}
	st, ok := h.Store().(store.Store)
	if !ok {
		return nil, fmt.Errorf("carenest: store %T does not implement store.Store", h.Store())
	}
	if h.Bus() == nil {
		return nil, carenest.ErrNoBus
	}
	bus, ok := h.Bus().(broadcast.Bus)
	if !ok {
		return nil, fmt.Errorf("carenest: bus %T does not implement broadcast.Bus", h.Bus())
	}

	eng := &Engine{
		hub:        h,
		store:      st,
		bus:        bus,
		extensions: ext.NewRegistry(logger),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(eng)
	}
	if eng.bo == nil {
		eng.bo = backoff.ClaimStrategy()
	}
	if eng.sender == nil {
		eng.sender = participant.LogSender{Logger: logger}
	}

	// Observability extensions.
	if eng.metrics != nil {
		eng.extensions.Register(observability.NewMetricsExtensionWithFactory(eng.metrics))
	} else {
		eng.extensions.Register(observability.NewMetricsExtension())
	}
	if eng.promReg != nil {
		eng.extensions.Register(observability.NewPrometheusExtension(eng.promReg))
	}
	if !eng.noActivity {
		eng.extensions.Register(broadcast.NewActivity(bus))
	}

	eng.participants = participant.NewRegistry(st,
		participant.WithOTPExpiry(cfg.OTPExpiry),
		participant.WithSender(eng.sender),
		participant.WithLogger(logger),
	)

	eng.lifecycle = lifecycle.NewManager(st, bus,
		lifecycle.WithDirectory(eng.participants),
		lifecycle.WithExtensions(eng.extensions),
		lifecycle.WithLogger(logger),
		lifecycle.WithBroadcastRetries(cfg.BroadcastRetries),
		lifecycle.WithPublishBackoff(backoff.PublishStrategy()),
	)

	// Default claim chain: recover → tracing → metrics → logging → timeout.
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	} else {
		tracingMw = mw.Tracing()
	}
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
	} else {
		metricsMw = mw.Metrics()
	}
	chain := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Timeout(cfg.ClaimTimeout),
	}
	chain = append(chain, eng.mws...)

	arbOpts := []arbiter.Option{
		arbiter.WithMiddleware(chain...),
		arbiter.WithExtensions(eng.extensions),
		arbiter.WithLogger(logger),
	}
	if cfg.RequireKnownHelpers {
		arbOpts = append(arbOpts, arbiter.WithHelperDirectory(eng.participants))
	}
	eng.arbiter = arbiter.New(st, arbOpts...)

	eng.pool = worker.NewPool(logger, worker.WithRestart(eng.bo))

	// Wire back into the Hub.
	h.SetPool(eng.pool)
	h.SetExtensions(eng.extensions)

	return eng, nil
}

// ── Jobs ─────────────────────────────────────────────

// CreateJob stores an open job and announces it to every helper.
func (eng *Engine) CreateJob(ctx context.Context, requesterRef, location string) (*job.Job, error) {
	return eng.lifecycle.CreateJob(ctx, requesterRef, location)
}

// GetJob returns the current state of a job.
func (eng *Engine) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return eng.lifecycle.GetJob(ctx, jobID)
}

// ListOpenJobs returns every open job, oldest first.
func (eng *Engine) ListOpenJobs(ctx context.Context) ([]*job.Job, error) {
	return eng.lifecycle.ListOpenJobs(ctx)
}

// Claim attempts to assign the job to workerRef.
func (eng *Engine) Claim(ctx context.Context, jobID id.JobID, workerRef string) (job.Outcome, error) {
	return eng.arbiter.Claim(ctx, jobID, workerRef)
}

// Subscribe binds a subscription on the engine's bus.
func (eng *Engine) Subscribe(ctx context.Context, subscriberID string, topics ...string) (broadcast.Subscription, error) {
	return eng.bus.Subscribe(ctx, subscriberID, topics...)
}

// ── Helpers ──────────────────────────────────────────

// AddHelper runs a listener for workerRef inside the engine's pool. Claims
// go through the engine's arbiter, so they pass the same middleware and
// hooks as remote claims.
func (eng *Engine) AddHelper(workerRef string, opts ...sink.Option) *sink.Listener {
	defaults := []sink.Option{
		sink.WithRetry(eng.bo, eng.hub.Config().ClaimMaxAttempts),
		sink.WithLogger(eng.logger),
	}
	l := sink.NewListener(workerRef, eng.bus, eng.arbiter, append(defaults, opts...)...)
	eng.pool.Add("helper:"+workerRef, l)
	return l
}

// ── Stats ────────────────────────────────────────────

// Stats is a point-in-time summary of the hub.
type Stats struct {
	OpenJobs     int64                  `json:"open_jobs"`
	AssignedJobs int64                  `json:"assigned_jobs"`
	Helpers      int                    `json:"embedded_helpers"`
	Broker       *broadcast.BrokerStats `json:"broker,omitempty"`
}

// Stats reports job counts and, for the in-process broker, bus counters.
func (eng *Engine) Stats(ctx context.Context) (Stats, error) {
	open, assigned, err := eng.lifecycle.Counts(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{OpenJobs: open, AssignedJobs: assigned, Helpers: eng.pool.Size()}
	if b, ok := eng.bus.(*broadcast.Broker); ok {
		bs := b.Stats()
		st.Broker = &bs
	}
	return st, nil
}

// ── Lifecycle ────────────────────────────────────────

// Start starts the embedded helpers.
func (eng *Engine) Start(ctx context.Context) error {
	return eng.hub.Start(ctx)
}

// Stop stops the helpers, emits the shutdown hook, then closes the bus and
// the store.
func (eng *Engine) Stop(ctx context.Context) error {
	return eng.hub.Stop(ctx)
}

// ── Accessors ────────────────────────────────────────

// Hub returns the underlying Hub.
func (eng *Engine) Hub() *carenest.Hub { return eng.hub }

// Store returns the composite store.
func (eng *Engine) Store() store.Store { return eng.store }

// Bus returns the event bus.
func (eng *Engine) Bus() broadcast.Bus { return eng.bus }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Participants returns the patient and helper registry.
func (eng *Engine) Participants() *participant.Registry { return eng.participants }

// Lifecycle returns the job lifecycle manager.
func (eng *Engine) Lifecycle() *lifecycle.Manager { return eng.lifecycle }

// Arbiter returns the claim arbiter.
func (eng *Engine) Arbiter() *arbiter.Arbiter { return eng.arbiter }

// Pool returns the embedded helper pool.
func (eng *Engine) Pool() *worker.Pool { return eng.pool }

// Logger returns the engine's logger.
func (eng *Engine) Logger() *slog.Logger { return eng.logger }
