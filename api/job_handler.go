package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/id"
	"github.com/gaurav-seth/carenest-helper/job"
)

// CreateJobRequest is the body of POST /api/patients/create-job.
type CreateJobRequest struct {
	PatientPhoneNumber string `json:"patient_phone_number"`
	Location           string `json:"location"`
}

// CreateJobResponse carries the stored job. Warning is set when the job was
// stored but its announcement failed; helpers can still find it through
// the available-jobs list.
type CreateJobResponse struct {
	Job     *job.Job `json:"job"`
	Warning string   `json:"warning,omitempty"`
}

// AcceptJobResponse is the body of a settled claim.
type AcceptJobResponse struct {
	JobID       string      `json:"job_id"`
	HelperPhone string      `json:"helper_phone"`
	Outcome     job.Outcome `json:"outcome"`
	Message     string      `json:"message"`
}

func (a *API) createJob(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %w", carenest.ErrInvalidInput, err))
		return
	}

	j, err := a.eng.CreateJob(c.Request.Context(), req.PatientPhoneNumber, req.Location)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, CreateJobResponse{Job: j})
	case errors.Is(err, carenest.ErrBroadcastFailed) && j != nil:
		c.JSON(http.StatusAccepted, CreateJobResponse{Job: j, Warning: err.Error()})
	default:
		writeError(c, err)
	}
}

func (a *API) getJob(c *gin.Context) {
	jobID, err := parseJobID(c.Param("jobId"))
	if err != nil {
		writeError(c, err)
		return
	}
	j, err := a.eng.GetJob(c.Request.Context(), jobID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

func (a *API) listAvailableJobs(c *gin.Context) {
	jobs, err := a.eng.ListOpenJobs(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, jobs)
}

func (a *API) acceptJob(c *gin.Context) {
	jobID, err := parseJobID(c.Param("jobId"))
	if err != nil {
		writeError(c, err)
		return
	}
	helperPhone := strings.TrimSpace(c.Query("helperPhone"))
	if helperPhone == "" {
		writeError(c, fmt.Errorf("%w: helperPhone is required", carenest.ErrInvalidInput))
		return
	}

	outcome, err := a.eng.Claim(c.Request.Context(), jobID, helperPhone)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := AcceptJobResponse{JobID: jobID.String(), HelperPhone: helperPhone, Outcome: outcome}
	if outcome == job.OutcomeWon {
		resp.Message = "job assigned to " + helperPhone
		c.JSON(http.StatusOK, resp)
		return
	}
	resp.Message = "job already taken by another helper"
	c.JSON(http.StatusConflict, resp)
}

func parseJobID(raw string) (id.JobID, error) {
	jobID, err := id.ParseJobID(raw)
	if err != nil {
		return id.JobID{}, fmt.Errorf("%w: job id %q", carenest.ErrInvalidInput, raw)
	}
	return jobID, nil
}
