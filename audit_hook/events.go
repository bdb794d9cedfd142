package audithook

// Audit actions, one per engine hook.
const (
	ActionJobCreated      = "job.created"
	ActionJobPublished    = "job.published"
	ActionBroadcastFailed = "job.broadcast_failed"
	ActionJobAssigned     = "job.assigned"
	ActionClaimLost       = "claim.lost"
	ActionClaimFailed     = "claim.failed"
)

// Categories.
const (
	CategoryJob   = "carenest.job"
	CategoryClaim = "carenest.claim"
)

// ResourceJob is the Resource of every event; ResourceID is the job ID.
const ResourceJob = "job"

// AllActions returns every action the extension can record.
func AllActions() []string {
	return []string{
		ActionJobCreated,
		ActionJobPublished,
		ActionBroadcastFailed,
		ActionJobAssigned,
		ActionClaimLost,
		ActionClaimFailed,
	}
}
