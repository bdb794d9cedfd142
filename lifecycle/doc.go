// Package lifecycle owns job creation and the read side of the job model.
//
// [Manager.CreateJob] validates the request, confirms the requester with a
// [RequesterDirectory], persists the job as open and only then publishes a
// single job.created event on the bus. A subscriber that reacts to the
// event can therefore always read the job back. If the bus keeps failing
// after the configured retries the stored job is still returned together
// with an error wrapping carenest.ErrBroadcastFailed; the job remains
// visible through [Manager.ListOpenJobs].
//
// The manager never changes a job's status. Assignment is the arbiter's
// job and goes through job.Store.ClaimJob.
package lifecycle
