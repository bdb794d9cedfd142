// Package middleware provides composable wrappers around a single claim
// attempt.
//
// The arbiter builds one chain at construction time and runs every claim
// through it. The terminal handler performs the store's conditional write
// and stores the result on [Claim.Result], so wrappers that run after next
// can see whether the attempt won, found the job already owned, or lost.
//
//	chain := middleware.Chain(
//	    middleware.Recover(logger),
//	    middleware.Tracing(),
//	    middleware.Metrics(),
//	    middleware.Logging(logger),
//	    middleware.Timeout(5*time.Second),
//	)
//
// # Built-in Middleware
//
//   - [Logging] logs each settled claim
//   - [Recover] turns a panic into a retryable error
//   - [Timeout] bounds the conditional write
//   - [Tracing] opens a "carenest.job.claim" span
//   - [Metrics] records duration and attempt counters by outcome
package middleware
