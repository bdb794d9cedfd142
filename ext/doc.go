// Package ext defines the extension system for CareNest.
//
// Extensions are notified of job and claim events and can react to them,
// for example by recording metrics or forwarding activity to a feed. Each
// hook is a separate interface so extensions opt in only to the events
// they care about.
//
// # Implementing an Extension
//
//	type Auditor struct{}
//
//	func (a *Auditor) Name() string { return "auditor" }
//
//	func (a *Auditor) OnJobClaimed(ctx context.Context, jobID id.JobID, workerRef string, elapsed time.Duration) error {
//	    log.Printf("job %s assigned to %s", jobID, workerRef)
//	    return nil
//	}
//
// # Job Hooks
//
//   - [JobCreated]: the job was durably stored as open
//   - [JobPublished]: the job.created event was handed to the bus
//   - [BroadcastFailed]: publication failed after every retry
//
// # Claim Hooks
//
//   - [JobClaimed]: a claim won (including a winner's repeat claim)
//   - [ClaimLost]: the job was already owned by another worker
//   - [ClaimFailed]: the claim could not be evaluated (not found, store down)
//
// # Other Hooks
//
//   - [Shutdown]: the hub is shutting down gracefully
//
// The [Registry] fans out each event to every registered extension that
// implements the corresponding hook. Hook errors are logged, never
// returned to the caller.
package ext
