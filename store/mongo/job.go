package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/id"
	"github.com/gaurav-seth/carenest-helper/job"
)

// CreateJob persists a new job.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	if _, err := s.db.Collection(colJobs).InsertOne(ctx, toJobModel(j)); err != nil {
		if isDuplicateKey(err) {
			return carenest.ErrJobAlreadyExists
		}
		return fmt.Errorf("carenest/mongo: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var m jobModel
	err := s.db.Collection(colJobs).FindOne(ctx, bson.M{"_id": jobID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, carenest.ErrJobNotFound
		}
		return nil, fmt.Errorf("carenest/mongo: get job: %w", err)
	}
	return fromJobModel(&m)
}

// ListOpenJobs returns open jobs, oldest first.
func (s *Store) ListOpenJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	findOpts := options.Find().SetSort(bson.D{
		{Key: "created_at", Value: 1},
		{Key: "_id", Value: 1},
	})
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	cursor, err := s.db.Collection(colJobs).Find(ctx, bson.M{"status": string(job.StatusOpen)}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("carenest/mongo: list open jobs: %w", err)
	}
	var models []jobModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("carenest/mongo: list open jobs: %w", err)
	}

	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, err := fromJobModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("carenest/mongo: list open jobs: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// ClaimJob assigns the job to workerRef if and only if it is still open.
func (s *Store) ClaimJob(ctx context.Context, jobID id.JobID, workerRef string) (job.ClaimResult, error) {
	col := s.db.Collection(colJobs)
	t := now()

	res, err := col.UpdateOne(ctx,
		bson.M{"_id": jobID.String(), "status": string(job.StatusOpen)},
		bson.M{"$set": bson.M{
			"status":              string(job.StatusAssigned),
			"assigned_worker_ref": workerRef,
			"assigned_at":         t,
			"updated_at":          t,
		}},
	)
	if err != nil {
		return 0, fmt.Errorf("carenest/mongo: claim job: %w", err)
	}
	if res.MatchedCount == 1 {
		return job.ClaimWon, nil
	}

	var owner struct {
		AssignedWorkerRef string `bson:"assigned_worker_ref"`
	}
	err = col.FindOne(ctx, bson.M{"_id": jobID.String()},
		options.FindOne().SetProjection(bson.M{"assigned_worker_ref": 1}),
	).Decode(&owner)
	if err != nil {
		if isNoDocuments(err) {
			return 0, carenest.ErrJobNotFound
		}
		return 0, fmt.Errorf("carenest/mongo: classify claim: %w", err)
	}
	return job.Classify(owner.AssignedWorkerRef, workerRef), nil
}

// CountJobs counts jobs, optionally filtered by status.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	n, err := s.db.Collection(colJobs).CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("carenest/mongo: count jobs: %w", err)
	}
	return n, nil
}
