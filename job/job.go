package job

import (
	"time"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/id"
)

// Status represents the lifecycle state of a job.
type Status string

const (
	// StatusOpen means the job is waiting for a helper to claim it.
	StatusOpen Status = "open"
	// StatusAssigned means exactly one helper owns the job. Terminal.
	StatusAssigned Status = "assigned"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusOpen || s == StatusAssigned
}

// Job is a unit of care work created by a requester and owned by at most
// one helper.
type Job struct {
	carenest.Entity

	ID                id.JobID   `json:"id"`
	RequesterRef      string     `json:"requester_ref"`
	Location          string     `json:"location"`
	Status            Status     `json:"status"`
	AssignedWorkerRef string     `json:"assigned_worker_ref,omitempty"`
	AssignedAt        *time.Time `json:"assigned_at,omitempty"`
}

// New returns an open job with a fresh ID.
func New(requesterRef, location string) *Job {
	return &Job{
		Entity:       carenest.NewEntity(),
		ID:           id.NewJobID(),
		RequesterRef: requesterRef,
		Location:     location,
		Status:       StatusOpen,
	}
}

// IsOpen reports whether the job can still be claimed.
func (j *Job) IsOpen() bool { return j.Status == StatusOpen }

// Clone returns a deep copy, so store snapshots never alias live records.
func (j *Job) Clone() *Job {
	cp := *j
	if j.AssignedAt != nil {
		t := *j.AssignedAt
		cp.AssignedAt = &t
	}
	return &cp
}

// Assign applies the open→assigned transition in memory. Backends call it
// only after they have won the conditional write.
func (j *Job) Assign(workerRef string, at time.Time) {
	j.Status = StatusAssigned
	j.AssignedWorkerRef = workerRef
	j.AssignedAt = &at
	j.UpdatedAt = at
}

// ──────────────────────────────────────────────────
// Claim results
// ──────────────────────────────────────────────────

// ClaimResult is what a store reports for a conditional claim.
type ClaimResult int

const (
	// ClaimWon means this call performed the open→assigned transition.
	ClaimWon ClaimResult = iota + 1
	// ClaimAlreadyOwned means the job was already assigned to the same worker.
	ClaimAlreadyOwned
	// ClaimLost means the job is assigned to a different worker.
	ClaimLost
)

// Classify decides the result for a job that could not be transitioned
// because it is no longer open.
func Classify(assignedTo, workerRef string) ClaimResult {
	if assignedTo == workerRef {
		return ClaimAlreadyOwned
	}
	return ClaimLost
}

// Outcome is the caller-facing answer to a claim.
type Outcome string

const (
	OutcomeWon      Outcome = "won"
	OutcomeLost     Outcome = "lost"
	OutcomeNotFound Outcome = "not_found"
)

// Outcome maps a store result onto the caller-facing vocabulary. A winner
// retrying its own claim still observes Won.
func (r ClaimResult) Outcome() Outcome {
	switch r {
	case ClaimWon, ClaimAlreadyOwned:
		return OutcomeWon
	default:
		return OutcomeLost
	}
}

func (r ClaimResult) String() string {
	switch r {
	case ClaimWon:
		return "won"
	case ClaimAlreadyOwned:
		return "already_owned"
	case ClaimLost:
		return "lost"
	default:
		return "unknown"
	}
}
