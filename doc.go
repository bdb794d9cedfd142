// Package carenest distributes care jobs to a pool of independent helpers
// and guarantees that exactly one helper ends up owning each job.
//
// A patient creates a job. The job is persisted as open and a job.created
// event is fanned out to every subscribed helper. Helpers race to claim it;
// the store performs a single atomic open→assigned transition so exactly one
// claim wins and every other claim observes a loss.
//
// # Quick Start
//
//	h, err := carenest.New(
//	    carenest.WithStore(pgStore),
//	    carenest.WithBus(bus),
//	)
//
// # Architecture
//
// Each subsystem (job, participant) defines its own store interface and a
// single backend implements all of them (see package store). The lifecycle
// package owns job creation and publication, the arbiter package owns claims,
// and the sink package turns broadcast deliveries into claim attempts.
//
// All entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based
// identifiers such as "job_01h455vb4pex5vsknk084sn02q".
package carenest
