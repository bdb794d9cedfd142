package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/id"
	"github.com/gaurav-seth/carenest-helper/job"
)

const jobColumns = `id, requester_ref, location, status, assigned_worker_ref, assigned_at, created_at, updated_at`

// CreateJob persists a new open job.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO carenest_jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID.String(), j.RequesterRef, j.Location, string(j.Status),
		nullString(j.AssignedWorkerRef), nullTimePtr(j.AssignedAt),
		j.CreatedAt.UTC(), j.UpdatedAt.UTC(),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return carenest.ErrJobAlreadyExists
		}
		return fmt.Errorf("carenest/sqlite: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM carenest_jobs WHERE id = ?`, jobID.String())
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, carenest.ErrJobNotFound
		}
		return nil, fmt.Errorf("carenest/sqlite: get job: %w", err)
	}
	return j, nil
}

// ListOpenJobs returns open jobs, oldest first.
func (s *Store) ListOpenJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	limit := -1
	if opts.Limit > 0 {
		limit = opts.Limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM carenest_jobs
		WHERE status = 'open'
		ORDER BY created_at ASC, id ASC
		LIMIT ? OFFSET ?`, limit, max(opts.Offset, 0))
	if err != nil {
		return nil, fmt.Errorf("carenest/sqlite: list open jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*job.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("carenest/sqlite: scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("carenest/sqlite: list open jobs: %w", err)
	}
	return jobs, nil
}

// ClaimJob assigns the job to workerRef if and only if it is still open.
func (s *Store) ClaimJob(ctx context.Context, jobID id.JobID, workerRef string) (job.ClaimResult, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE carenest_jobs
		SET status = 'assigned', assigned_worker_ref = ?, assigned_at = ?, updated_at = ?
		WHERE id = ? AND status = 'open'`,
		workerRef, now, now, jobID.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("carenest/sqlite: claim job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("carenest/sqlite: claim job: %w", err)
	}
	if n == 1 {
		return job.ClaimWon, nil
	}

	var owner sql.NullString
	err = s.db.QueryRowContext(ctx,
		`SELECT assigned_worker_ref FROM carenest_jobs WHERE id = ?`, jobID.String(),
	).Scan(&owner)
	if err != nil {
		if isNoRows(err) {
			return 0, carenest.ErrJobNotFound
		}
		return 0, fmt.Errorf("carenest/sqlite: classify claim: %w", err)
	}
	return job.Classify(owner.String, workerRef), nil
}

// CountJobs counts jobs, optionally filtered by status.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	query, args := `SELECT COUNT(*) FROM carenest_jobs`, []any{}
	if opts.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(opts.Status))
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("carenest/sqlite: count jobs: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*job.Job, error) {
	var (
		rawID, status string
		owner         sql.NullString
		assignedAt    sql.NullTime
		j             job.Job
	)
	if err := row.Scan(&rawID, &j.RequesterRef, &j.Location, &status, &owner,
		&assignedAt, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := id.ParseJobID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse job id %q: %w", rawID, err)
	}
	j.ID = parsed
	j.Status = job.Status(status)
	j.AssignedWorkerRef = owner.String
	if assignedAt.Valid {
		t := assignedAt.Time.UTC()
		j.AssignedAt = &t
	}
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	return &j, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}
