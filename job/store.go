package job

import (
	"context"

	"github.com/gaurav-seth/carenest-helper/id"
)

// ListOpts controls pagination for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
}

// CountOpts controls filtering for job count queries.
type CountOpts struct {
	// Status filters by job status. Empty means all statuses.
	Status Status
}

// Store defines the persistence contract for jobs. ClaimJob is the only
// operation that changes a job after creation.
type Store interface {
	// CreateJob durably persists a new open job. Returns
	// carenest.ErrJobAlreadyExists if the ID is taken.
	CreateJob(ctx context.Context, j *Job) error

	// GetJob retrieves a job by ID. Returns carenest.ErrJobNotFound if
	// it does not exist.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// ListOpenJobs returns a snapshot of open jobs, oldest first.
	ListOpenJobs(ctx context.Context, opts ListOpts) ([]*Job, error)

	// ClaimJob atomically moves the job from open to assigned with
	// workerRef as owner. If the job is no longer open it reports
	// ClaimAlreadyOwned or ClaimLost without modifying it. Returns
	// carenest.ErrJobNotFound for unknown IDs.
	ClaimJob(ctx context.Context, jobID id.JobID, workerRef string) (ClaimResult, error)

	// CountJobs returns the number of jobs matching the given options.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)
}
