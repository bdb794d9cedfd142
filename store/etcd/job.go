package etcd

import (
	"context"
	"fmt"
	"sort"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/id"
	"github.com/gaurav-seth/carenest-helper/job"
)

type jobRecord struct {
	ID                string     `msgpack:"id"`
	RequesterRef      string     `msgpack:"requester_ref"`
	Location          string     `msgpack:"location"`
	Status            string     `msgpack:"status"`
	AssignedWorkerRef string     `msgpack:"assigned_worker_ref,omitempty"`
	AssignedAt        *time.Time `msgpack:"assigned_at,omitempty"`
	CreatedAt         time.Time  `msgpack:"created_at"`
	UpdatedAt         time.Time  `msgpack:"updated_at"`
}

func toJobRecord(j *job.Job) *jobRecord {
	return &jobRecord{
		ID:                j.ID.String(),
		RequesterRef:      j.RequesterRef,
		Location:          j.Location,
		Status:            string(j.Status),
		AssignedWorkerRef: j.AssignedWorkerRef,
		AssignedAt:        j.AssignedAt,
		CreatedAt:         j.CreatedAt,
		UpdatedAt:         j.UpdatedAt,
	}
}

func (r *jobRecord) toJob() (*job.Job, error) {
	jID, err := id.ParseJobID(r.ID)
	if err != nil {
		return nil, fmt.Errorf("carenest/etcd: parse job id %q: %w", r.ID, err)
	}
	j := &job.Job{
		Entity:            carenest.Entity{CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC()},
		ID:                jID,
		RequesterRef:      r.RequesterRef,
		Location:          r.Location,
		Status:            job.Status(r.Status),
		AssignedWorkerRef: r.AssignedWorkerRef,
	}
	if r.AssignedAt != nil {
		t := r.AssignedAt.UTC()
		j.AssignedAt = &t
	}
	return j, nil
}

func jobKey(jobID string) string { return jobsPrefix + jobID }

// CreateJob writes the job only if its key does not exist yet.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	val, err := encode(toJobRecord(j))
	if err != nil {
		return fmt.Errorf("carenest/etcd: encode job: %w", err)
	}
	key := jobKey(j.ID.String())
	resp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, val)).
		Commit()
	if err != nil {
		return fmt.Errorf("carenest/etcd: create job: %w", err)
	}
	if !resp.Succeeded {
		return carenest.ErrJobAlreadyExists
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	rec, _, err := s.getJob(ctx, jobKey(jobID.String()))
	if err != nil {
		return nil, err
	}
	return rec.toJob()
}

func (s *Store) getJob(ctx context.Context, key string) (*jobRecord, int64, error) {
	resp, err := s.client.Get(ctx, key)
	if err != nil {
		return nil, 0, fmt.Errorf("carenest/etcd: get job: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, 0, carenest.ErrJobNotFound
	}
	var rec jobRecord
	if err := decode(resp.Kvs[0].Value, &rec); err != nil {
		return nil, 0, fmt.Errorf("carenest/etcd: decode job: %w", err)
	}
	return &rec, resp.Kvs[0].ModRevision, nil
}

// ListOpenJobs returns open jobs, oldest first. etcd has no secondary
// indexes, so this scans the job prefix.
func (s *Store) ListOpenJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	all, err := s.scanJobs(ctx)
	if err != nil {
		return nil, err
	}

	open := make([]*job.Job, 0, len(all))
	for _, j := range all {
		if j.IsOpen() {
			open = append(open, j)
		}
	}
	sort.Slice(open, func(a, b int) bool {
		if !open[a].CreatedAt.Equal(open[b].CreatedAt) {
			return open[a].CreatedAt.Before(open[b].CreatedAt)
		}
		return open[a].ID.String() < open[b].ID.String()
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(open) {
			return []*job.Job{}, nil
		}
		open = open[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(open) {
		open = open[:opts.Limit]
	}
	return open, nil
}

// ClaimJob assigns the job to workerRef if and only if it is still open.
func (s *Store) ClaimJob(ctx context.Context, jobID id.JobID, workerRef string) (job.ClaimResult, error) {
	key := jobKey(jobID.String())
	rec, rev, err := s.getJob(ctx, key)
	if err != nil {
		return 0, err
	}

	// Assigned is terminal.
	if rec.Status != string(job.StatusOpen) {
		return job.Classify(rec.AssignedWorkerRef, workerRef), nil
	}

	t := time.Now().UTC()
	rec.Status = string(job.StatusAssigned)
	rec.AssignedWorkerRef = workerRef
	rec.AssignedAt = &t
	rec.UpdatedAt = t
	val, err := encode(rec)
	if err != nil {
		return 0, fmt.Errorf("carenest/etcd: encode job: %w", err)
	}

	resp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(key), "=", rev)).
		Then(clientv3.OpPut(key, val)).
		Else(clientv3.OpGet(key)).
		Commit()
	if err != nil {
		return 0, fmt.Errorf("carenest/etcd: claim job: %w", err)
	}
	if resp.Succeeded {
		return job.ClaimWon, nil
	}

	// Only a claim rewrites a job, so a failed compare means another
	// worker committed first.
	kvs := resp.Responses[0].GetResponseRange().Kvs
	if len(kvs) == 0 {
		return 0, carenest.ErrJobNotFound
	}
	var current jobRecord
	if err := decode(kvs[0].Value, &current); err != nil {
		return 0, fmt.Errorf("carenest/etcd: decode job: %w", err)
	}
	return job.Classify(current.AssignedWorkerRef, workerRef), nil
}

// CountJobs counts jobs, optionally filtered by status.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	if opts.Status == "" {
		resp, err := s.client.Get(ctx, jobsPrefix, clientv3.WithPrefix(), clientv3.WithCountOnly())
		if err != nil {
			return 0, fmt.Errorf("carenest/etcd: count jobs: %w", err)
		}
		return resp.Count, nil
	}

	all, err := s.scanJobs(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, j := range all {
		if j.Status == opts.Status {
			n++
		}
	}
	return n, nil
}

func (s *Store) scanJobs(ctx context.Context) ([]*job.Job, error) {
	resp, err := s.client.Get(ctx, jobsPrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("carenest/etcd: scan jobs: %w", err)
	}
	out := make([]*job.Job, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var rec jobRecord
		if err := decode(kv.Value, &rec); err != nil {
			return nil, fmt.Errorf("carenest/etcd: decode job %s: %w", kv.Key, err)
		}
		j, err := rec.toJob()
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}
