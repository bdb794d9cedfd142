package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/id"
	"github.com/gaurav-seth/carenest-helper/job"
)

const jobColumns = `id, requester_ref, location, status, assigned_worker_ref, assigned_at, created_at, updated_at`

// CreateJob persists a new open job.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO carenest_jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		j.ID.String(), j.RequesterRef, j.Location, string(j.Status),
		nullString(j.AssignedWorkerRef), j.AssignedAt, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return carenest.ErrJobAlreadyExists
		}
		return fmt.Errorf("carenest/postgres: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM carenest_jobs WHERE id = $1`, jobID.String())
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, carenest.ErrJobNotFound
		}
		return nil, fmt.Errorf("carenest/postgres: get job: %w", err)
	}
	return j, nil
}

// ListOpenJobs returns open jobs, oldest first.
func (s *Store) ListOpenJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM carenest_jobs
		WHERE status = 'open'
		ORDER BY created_at ASC, id ASC`
	args := []any{}
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("carenest/postgres: list open jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*job.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("carenest/postgres: scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("carenest/postgres: list open jobs: %w", err)
	}
	return jobs, nil
}

// ClaimJob assigns the job to workerRef if and only if it is still open.
// When the guarded UPDATE touches no row the job is either missing or
// already assigned; assigned is terminal, so the follow-up read is stable.
func (s *Store) ClaimJob(ctx context.Context, jobID id.JobID, workerRef string) (job.ClaimResult, error) {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE carenest_jobs
		SET status = 'assigned', assigned_worker_ref = $2, assigned_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'open'`,
		jobID.String(), workerRef, now,
	)
	if err != nil {
		return 0, fmt.Errorf("carenest/postgres: claim job: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return job.ClaimWon, nil
	}

	var owner *string
	err = s.pool.QueryRow(ctx,
		`SELECT assigned_worker_ref FROM carenest_jobs WHERE id = $1`, jobID.String(),
	).Scan(&owner)
	if err != nil {
		if isNoRows(err) {
			return 0, carenest.ErrJobNotFound
		}
		return 0, fmt.Errorf("carenest/postgres: classify claim: %w", err)
	}
	return job.Classify(deref(owner), workerRef), nil
}

// CountJobs counts jobs, optionally filtered by status.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	var n int64
	var err error
	if opts.Status != "" {
		err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM carenest_jobs WHERE status = $1`, string(opts.Status)).Scan(&n)
	} else {
		err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM carenest_jobs`).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("carenest/postgres: count jobs: %w", err)
	}
	return n, nil
}

func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		rawID  string
		status string
		owner  *string
		j      job.Job
	)
	if err := row.Scan(&rawID, &j.RequesterRef, &j.Location, &status, &owner,
		&j.AssignedAt, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := id.ParseJobID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse job id %q: %w", rawID, err)
	}
	j.ID = parsed
	j.Status = job.Status(status)
	j.AssignedWorkerRef = deref(owner)
	return &j, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
