// Package job defines the care job entity, its two-state lifecycle, the
// claim outcome vocabulary, and the store interface.
//
// # Job Entity
//
// A [Job] is created open and moves to assigned exactly once:
//
//	open → assigned
//
// There is no way back. RequesterRef, Location, and CreatedAt are fixed at
// creation; AssignedWorkerRef is written by the same store operation that
// performs the transition.
//
// # Claiming
//
// [Store.ClaimJob] is the only mutation of a job's status. Every backend
// implements it as a single conditional write (compare-and-set on the open
// status), so concurrent claims for the same job produce exactly one
// [ClaimWon]. A repeated claim by the winner reports [ClaimAlreadyOwned];
// every other worker sees [ClaimLost].
//
// Callers above the store speak in [Outcome] values: Won, Lost, NotFound.
package job
