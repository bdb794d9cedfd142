package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/id"
	"github.com/gaurav-seth/carenest-helper/job"
)

// KEYS: job hash, open zset, assigned set, id set.
// ARGV: id, score, status, then field/value pairs.
var createJobScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 4))
if ARGV[3] == 'open' then
  redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
else
  redis.call('SADD', KEYS[3], ARGV[1])
end
redis.call('SADD', KEYS[4], ARGV[1])
return 1
`)

// KEYS: job hash, open zset, assigned set.
// ARGV: id, worker ref, now.
// Returns -1 if the job is missing, 1 if this call won, otherwise the
// current owner.
var claimJobScript = goredis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then
  return -1
end
if status == 'open' then
  redis.call('HSET', KEYS[1],
    'status', 'assigned',
    'assigned_worker_ref', ARGV[2],
    'assigned_at', ARGV[3],
    'updated_at', ARGV[3])
  redis.call('ZREM', KEYS[2], ARGV[1])
  redis.call('SADD', KEYS[3], ARGV[1])
  return 1
end
return redis.call('HGET', KEYS[1], 'assigned_worker_ref') or ''
`)

// CreateJob stores the job Hash and indexes it.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	args := []any{jID, score(j.CreatedAt), string(j.Status)}
	for k, v := range jobToMap(j) {
		args = append(args, k, v)
	}

	n, err := createJobScript.Run(ctx, s.client,
		[]string{jobKey(jID), openJobsKey, assignedJobsKey, jobIDsKey}, args...,
	).Int()
	if err != nil {
		return fmt.Errorf("carenest/redis: create job: %w", err)
	}
	if n == 0 {
		return carenest.ErrJobAlreadyExists
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	vals, err := s.client.HGetAll(ctx, jobKey(jobID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("carenest/redis: get job: %w", err)
	}
	if len(vals) == 0 {
		return nil, carenest.ErrJobNotFound
	}
	return mapToJob(vals)
}

// ListOpenJobs returns open jobs, oldest first.
func (s *Store) ListOpenJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	start := int64(max(opts.Offset, 0))
	stop := int64(-1)
	if opts.Limit > 0 {
		stop = start + int64(opts.Limit) - 1
	}
	ids, err := s.client.ZRange(ctx, openJobsKey, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("carenest/redis: list open jobs: %w", err)
	}
	if len(ids) == 0 {
		return []*job.Job{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	for i, jID := range ids {
		cmds[i] = pipe.HGetAll(ctx, jobKey(jID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("carenest/redis: list open jobs: %w", err)
	}

	jobs := make([]*job.Job, 0, len(ids))
	for _, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) == 0 {
			continue
		}
		j, err := mapToJob(vals)
		if err != nil {
			return nil, err
		}
		// Claimed between ZRANGE and HGETALL.
		if !j.IsOpen() {
			continue
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// ClaimJob runs the claim script, which flips status only if still open.
func (s *Store) ClaimJob(ctx context.Context, jobID id.JobID, workerRef string) (job.ClaimResult, error) {
	jID := jobID.String()
	res, err := claimJobScript.Run(ctx, s.client,
		[]string{jobKey(jID), openJobsKey, assignedJobsKey},
		jID, workerRef, formatTime(time.Now()),
	).Result()
	if err != nil {
		return 0, fmt.Errorf("carenest/redis: claim job: %w", err)
	}

	switch v := res.(type) {
	case int64:
		if v == 1 {
			return job.ClaimWon, nil
		}
		return 0, carenest.ErrJobNotFound
	case string:
		return job.Classify(v, workerRef), nil
	default:
		return 0, fmt.Errorf("carenest/redis: claim job: unexpected reply %T", res)
	}
}

// CountJobs counts jobs from the index sets.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	var cmd *goredis.IntCmd
	switch opts.Status {
	case job.StatusOpen:
		cmd = s.client.ZCard(ctx, openJobsKey)
	case job.StatusAssigned:
		cmd = s.client.SCard(ctx, assignedJobsKey)
	default:
		cmd = s.client.SCard(ctx, jobIDsKey)
	}
	n, err := cmd.Result()
	if err != nil {
		return 0, fmt.Errorf("carenest/redis: count jobs: %w", err)
	}
	return n, nil
}

// ── helpers ──

func jobToMap(j *job.Job) map[string]any {
	return map[string]any{
		"id":                  j.ID.String(),
		"requester_ref":       j.RequesterRef,
		"location":            j.Location,
		"status":              string(j.Status),
		"assigned_worker_ref": j.AssignedWorkerRef,
		"assigned_at":         formatTimePtr(j.AssignedAt),
		"created_at":          formatTime(j.CreatedAt),
		"updated_at":          formatTime(j.UpdatedAt),
	}
}

func mapToJob(m map[string]string) (*job.Job, error) {
	jID, err := id.ParseJobID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("carenest/redis: parse job id: %w", err)
	}
	return &job.Job{
		Entity: carenest.Entity{
			CreatedAt: parseTime(m["created_at"]),
			UpdatedAt: parseTime(m["updated_at"]),
		},
		ID:                jID,
		RequesterRef:      m["requester_ref"],
		Location:          m["location"],
		Status:            job.Status(m["status"]),
		AssignedWorkerRef: m["assigned_worker_ref"],
		AssignedAt:        parseTimePtr(m["assigned_at"]),
	}, nil
}
