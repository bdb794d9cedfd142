// Package engine wires the CareNest subsystems together: the extension
// registry, the participant registry, the lifecycle manager, the claim
// arbiter with its middleware chain, and the pool of embedded helpers.
//
// The root carenest package defines Entity and the sentinel errors that
// every subsystem imports, so it cannot import them back. Engine sits above
// all subsystem packages and below the transports and the CLI.
//
// # Building an Engine
//
//	h, err := carenest.New(
//	    carenest.WithStore(pgStore),
//	    carenest.WithBus(broadcast.NewBroker(logger)),
//	)
//
//	eng, err := engine.Build(h,
//	    engine.WithExtension(myExtension),
//	    engine.WithMiddleware(middleware.Logging(logger)),
//	    engine.WithPrometheus(prometheus.DefaultRegisterer),
//	)
//
// # Jobs and claims
//
//	j, err := eng.CreateJob(ctx, "+15550001", "loc-A")
//	outcome, err := eng.Claim(ctx, j.ID, "W1")
//
// # Embedded helpers
//
//	eng.AddHelper("W1", sink.WithPolicy(sink.LocationPolicy("loc-A")))
//	eng.Start(ctx)
//
// # Options
//
//   - [WithExtension]: register a lifecycle extension
//   - [WithMiddleware]: append a middleware to the claim chain
//   - [WithBackoff]: set the retry strategy for claims and publishes
//   - [WithOTPSender]: deliver helper OTPs
//   - [WithPrometheus]: export hook counters to a Prometheus registerer
//   - [WithMetricFactory]: back the hub-wide counters with a go-utils factory
//   - [WithTracerProvider], [WithMeterProvider]: OpenTelemetry providers
package engine
