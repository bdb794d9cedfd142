package job

import (
	"time"

	"github.com/gaurav-seth/carenest-helper/id"
)

// CreatedEvent is the immutable notification fanned out when a job is
// stored. JobID always equals the persisted job's ID.
type CreatedEvent struct {
	JobID        id.JobID  `json:"job_id"`
	RequesterRef string    `json:"requester_ref"`
	Location     string    `json:"location"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreatedEventOf snapshots j into a CreatedEvent.
func CreatedEventOf(j *Job) CreatedEvent {
	return CreatedEvent{
		JobID:        j.ID,
		RequesterRef: j.RequesterRef,
		Location:     j.Location,
		CreatedAt:    j.CreatedAt,
	}
}

// AssignedEvent reports that a job has been claimed. It is published on the
// activity topic and is informational only.
type AssignedEvent struct {
	JobID     id.JobID  `json:"job_id"`
	WorkerRef string    `json:"worker_ref"`
	At        time.Time `json:"at"`
}
