package broadcast

import (
	"context"
	"time"

	"github.com/gaurav-seth/carenest-helper/ext"
	"github.com/gaurav-seth/carenest-helper/id"
	"github.com/gaurav-seth/carenest-helper/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension  = (*Activity)(nil)
	_ ext.JobClaimed = (*Activity)(nil)
	_ ext.ClaimLost  = (*Activity)(nil)
)

// ClaimLostData is the payload of a job.claim_lost event.
type ClaimLostData struct {
	JobID     string `json:"job_id"`
	WorkerRef string `json:"worker_ref"`
}

// Activity is an extension that mirrors claim results onto the activity
// topic, feeding dashboards and the SSE activity stream.
type Activity struct {
	bus Bus
}

// NewActivity returns an Activity publishing on bus.
func NewActivity(bus Bus) *Activity {
	return &Activity{bus: bus}
}

// Name implements ext.Extension.
func (a *Activity) Name() string { return "broadcast-activity" }

// OnJobClaimed implements ext.JobClaimed.
func (a *Activity) OnJobClaimed(ctx context.Context, jobID id.JobID, workerRef string, _ time.Duration) error {
	evt, err := NewEvent(EventJobAssigned, TopicActivity, job.AssignedEvent{
		JobID:     jobID,
		WorkerRef: workerRef,
		At:        time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return a.bus.Publish(ctx, evt)
}

// OnClaimLost implements ext.ClaimLost.
func (a *Activity) OnClaimLost(ctx context.Context, jobID id.JobID, workerRef string) error {
	evt, err := NewEvent(EventClaimLost, TopicActivity, ClaimLostData{
		JobID:     jobID.String(),
		WorkerRef: workerRef,
	})
	if err != nil {
		return err
	}
	return a.bus.Publish(ctx, evt)
}
