package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/dwp"
	"github.com/gaurav-seth/carenest-helper/id"
	"github.com/gaurav-seth/carenest-helper/job"
)

func decodeData(resp *dwp.Frame, v any) error {
	if err := json.Unmarshal(resp.Data, v); err != nil {
		return fmt.Errorf("carenest/client: decode %s response: %w", resp.CorrelID, err)
	}
	return nil
}

// CreateJob creates a job for requesterRef. When the server stored the
// job but could not announce it, the job is returned together with an
// error wrapping carenest.ErrBroadcastFailed.
func (c *Client) CreateJob(ctx context.Context, requesterRef, location string) (*job.Job, error) {
	resp, err := c.request(ctx, dwp.MethodJobCreate, dwp.JobCreateRequest{
		RequesterRef: requesterRef,
		Location:     location,
	})
	if err != nil {
		return nil, err
	}
	var out dwp.JobCreateResponse
	if err := decodeData(resp, &out); err != nil {
		return nil, err
	}
	if out.Warning != "" {
		return out.Job, fmt.Errorf("%w: %s", carenest.ErrBroadcastFailed, out.Warning)
	}
	return out.Job, nil
}

// GetJob returns the job with jobID.
func (c *Client) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	resp, err := c.request(ctx, dwp.MethodJobGet, dwp.JobGetRequest{JobID: jobID.String()})
	if err != nil {
		return nil, err
	}
	var j job.Job
	if err := decodeData(resp, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// ListOpenJobs returns the jobs still waiting for a helper.
func (c *Client) ListOpenJobs(ctx context.Context) ([]*job.Job, error) {
	resp, err := c.request(ctx, dwp.MethodJobListOpen, nil)
	if err != nil {
		return nil, err
	}
	var jobs []*job.Job
	if err := decodeData(resp, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// Claim asks the server to assign jobID to workerRef. A lost race is
// job.OutcomeLost with a nil error. An unknown job is OutcomeNotFound
// with an error wrapping carenest.ErrJobNotFound.
func (c *Client) Claim(ctx context.Context, jobID id.JobID, workerRef string) (job.Outcome, error) {
	resp, err := c.request(ctx, dwp.MethodJobClaim, dwp.JobClaimRequest{
		JobID:     jobID.String(),
		WorkerRef: workerRef,
	})
	if err != nil {
		if errors.Is(err, carenest.ErrJobNotFound) {
			return job.OutcomeNotFound, err
		}
		return "", err
	}
	var out dwp.JobClaimResponse
	if err := decodeData(resp, &out); err != nil {
		return "", err
	}
	return out.Outcome, nil
}

// Stats returns the server's job counts and session count.
func (c *Client) Stats(ctx context.Context) (*dwp.StatsResponse, error) {
	resp, err := c.request(ctx, dwp.MethodStats, nil)
	if err != nil {
		return nil, err
	}
	var st dwp.StatsResponse
	if err := decodeData(resp, &st); err != nil {
		return nil, err
	}
	return &st, nil
}
