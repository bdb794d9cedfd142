package ext

import (
	"context"
	"time"

	"github.com/gaurav-seth/carenest-helper/id"
	"github.com/gaurav-seth/carenest-helper/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job hooks
// ──────────────────────────────────────────────────

// JobCreated is called after a job is durably stored.
type JobCreated interface {
	OnJobCreated(ctx context.Context, j *job.Job) error
}

// JobPublished is called after the job.created event is accepted by the bus.
type JobPublished interface {
	OnJobPublished(ctx context.Context, j *job.Job) error
}

// BroadcastFailed is called when a stored job could not be published.
type BroadcastFailed interface {
	OnBroadcastFailed(ctx context.Context, j *job.Job, err error) error
}

// ──────────────────────────────────────────────────
// Claim hooks
// ──────────────────────────────────────────────────

// JobClaimed is called when a claim returns Won.
type JobClaimed interface {
	OnJobClaimed(ctx context.Context, jobID id.JobID, workerRef string, elapsed time.Duration) error
}

// ClaimLost is called when a claim returns Lost.
type ClaimLost interface {
	OnClaimLost(ctx context.Context, jobID id.JobID, workerRef string) error
}

// ClaimFailed is called when a claim returns an error.
type ClaimFailed interface {
	OnClaimFailed(ctx context.Context, jobID id.JobID, workerRef string, err error) error
}

// ──────────────────────────────────────────────────
// Other hooks
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
