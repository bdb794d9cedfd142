package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/backoff"
	"github.com/gaurav-seth/carenest-helper/broadcast"
	"github.com/gaurav-seth/carenest-helper/ext"
	"github.com/gaurav-seth/carenest-helper/id"
	"github.com/gaurav-seth/carenest-helper/job"
)

// RequesterDirectory answers whether a requester reference is known.
// participant.Registry satisfies it.
type RequesterDirectory interface {
	RequesterExists(ctx context.Context, ref string) (bool, error)
}

// DefaultBroadcastRetries is how many times a failed publish is retried.
const DefaultBroadcastRetries = 3

// Option configures a Manager.
type Option func(*Manager)

// WithDirectory sets the requester directory. Without one every
// requester reference is accepted.
func WithDirectory(d RequesterDirectory) Option {
	return func(m *Manager) { m.directory = d }
}

// WithExtensions sets the registry notified of job creation and publish
// results.
func WithExtensions(r *ext.Registry) Option {
	return func(m *Manager) { m.extensions = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithBroadcastRetries sets how many times a failed publish is retried.
func WithBroadcastRetries(n int) Option {
	return func(m *Manager) { m.retries = max(n, 0) }
}

// WithPublishBackoff sets the delay strategy between publish retries.
func WithPublishBackoff(s backoff.Strategy) Option {
	return func(m *Manager) { m.backoff = s }
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager creates jobs and serves job reads.
type Manager struct {
	store      job.Store
	bus        broadcast.Bus
	directory  RequesterDirectory
	extensions *ext.Registry
	logger     *slog.Logger
	retries    int
	backoff    backoff.Strategy
	now        func() time.Time
}

// NewManager returns a Manager persisting to store and publishing on bus.
func NewManager(store job.Store, bus broadcast.Bus, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		bus:     bus,
		logger:  slog.Default(),
		retries: DefaultBroadcastRetries,
		backoff: backoff.PublishStrategy(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.extensions == nil {
		m.extensions = ext.NewRegistry(m.logger)
	}
	return m
}

// CreateJob stores a new open job and announces it to every subscriber.
func (m *Manager) CreateJob(ctx context.Context, requesterRef, location string) (*job.Job, error) {
	requesterRef = strings.TrimSpace(requesterRef)
	location = strings.TrimSpace(location)
	switch {
	case requesterRef == "":
		return nil, fmt.Errorf("%w: requester reference is required", carenest.ErrInvalidInput)
	case location == "":
		return nil, fmt.Errorf("%w: location is required", carenest.ErrInvalidInput)
	}

	if m.directory != nil {
		ok, err := m.directory.RequesterExists(ctx, requesterRef)
		if err != nil {
			return nil, fmt.Errorf("lifecycle: look up requester: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", carenest.ErrRequesterNotFound, requesterRef)
		}
	}

	j := job.New(requesterRef, location)
	if m.now != nil {
		j.CreatedAt = m.now().UTC()
		j.UpdatedAt = j.CreatedAt
	}

	if err := m.store.CreateJob(ctx, j); err != nil {
		return nil, fmt.Errorf("lifecycle: store job: %w", err)
	}
	m.extensions.EmitJobCreated(ctx, j)
	m.logger.Info("job created",
		slog.String("job_id", j.ID.String()),
		slog.String("requester_ref", j.RequesterRef),
		slog.String("location", j.Location),
	)

	if err := m.publish(ctx, j); err != nil {
		m.extensions.EmitBroadcastFailed(ctx, j, err)
		m.logger.Error("job stored but not broadcast",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return j, fmt.Errorf("%w: job %s: %w", carenest.ErrBroadcastFailed, j.ID, err)
	}
	m.extensions.EmitJobPublished(ctx, j)
	return j, nil
}

// publish sends exactly one job.created envelope, retrying the same
// envelope so a consumer that dedupes by event id sees one notification.
func (m *Manager) publish(ctx context.Context, j *job.Job) error {
	evt, err := broadcast.JobCreated(job.CreatedEventOf(j))
	if err != nil {
		return err
	}
	notClosed := func(err error) bool { return !errors.Is(err, carenest.ErrBusClosed) }
	return backoff.Retry(ctx, m.backoff, m.retries+1, notClosed, func(ctx context.Context) error {
		return m.bus.Publish(ctx, evt)
	})
}

// GetJob returns the current snapshot of a job, including its owner once
// assigned.
func (m *Manager) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return m.store.GetJob(ctx, jobID)
}

// ListOpenJobs returns every open job, oldest first.
func (m *Manager) ListOpenJobs(ctx context.Context) ([]*job.Job, error) {
	return m.store.ListOpenJobs(ctx, job.ListOpts{})
}

// ListOpenJobsPage returns one page of open jobs, oldest first.
func (m *Manager) ListOpenJobsPage(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	return m.store.ListOpenJobs(ctx, opts)
}

// Counts reports how many jobs are open and how many are assigned.
func (m *Manager) Counts(ctx context.Context) (open, assigned int64, err error) {
	if open, err = m.store.CountJobs(ctx, job.CountOpts{Status: job.StatusOpen}); err != nil {
		return 0, 0, err
	}
	if assigned, err = m.store.CountJobs(ctx, job.CountOpts{Status: job.StatusAssigned}); err != nil {
		return 0, 0, err
	}
	return open, assigned, nil
}
