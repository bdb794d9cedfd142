package bunstore

import (
	"context"
	"fmt"
	"time"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/id"
	"github.com/gaurav-seth/carenest-helper/job"
)

// CreateJob persists a new open job.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	if _, err := s.db.NewInsert().Model(toJobModel(j)).Exec(ctx); err != nil {
		if isDuplicateKey(err) {
			return carenest.ErrJobAlreadyExists
		}
		return fmt.Errorf("carenest/bun: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	m := new(jobModel)
	err := s.db.NewSelect().Model(m).Where("id = ?", jobID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, carenest.ErrJobNotFound
		}
		return nil, fmt.Errorf("carenest/bun: get job: %w", err)
	}
	return fromJobModel(m)
}

// ListOpenJobs returns open jobs, oldest first.
func (s *Store) ListOpenJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	var models []jobModel
	q := s.db.NewSelect().Model(&models).
		Where("status = ?", string(job.StatusOpen)).
		OrderExpr("created_at ASC, id ASC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("carenest/bun: list open jobs: %w", err)
	}

	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, err := fromJobModel(&models[i])
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// ClaimJob assigns the job to workerRef if and only if it is still open.
func (s *Store) ClaimJob(ctx context.Context, jobID id.JobID, workerRef string) (job.ClaimResult, error) {
	now := time.Now().UTC()
	res, err := s.db.NewUpdate().Model((*jobModel)(nil)).
		Set("status = ?", string(job.StatusAssigned)).
		Set("assigned_worker_ref = ?", workerRef).
		Set("assigned_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", jobID.String()).
		Where("status = ?", string(job.StatusOpen)).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("carenest/bun: claim job: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return 0, fmt.Errorf("carenest/bun: claim job: %w", err)
	} else if n == 1 {
		return job.ClaimWon, nil
	}

	m := new(jobModel)
	err = s.db.NewSelect().Model(m).Column("assigned_worker_ref").Where("id = ?", jobID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return 0, carenest.ErrJobNotFound
		}
		return 0, fmt.Errorf("carenest/bun: classify claim: %w", err)
	}
	return job.Classify(m.AssignedWorkerRef, workerRef), nil
}

// CountJobs counts jobs, optionally filtered by status.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	q := s.db.NewSelect().Model((*jobModel)(nil))
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	n, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("carenest/bun: count jobs: %w", err)
	}
	return int64(n), nil
}
