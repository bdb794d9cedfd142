package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/gaurav-seth/carenest-helper/id"
	"github.com/gaurav-seth/carenest-helper/job"
)

// entry pairs a hook implementation with the extension name captured at
// registration time.
type entry[H any] struct {
	name string
	hook H
}

// Registry holds registered extensions and dispatches events to them. It
// type-caches extensions at registration time so emit calls iterate only
// over extensions that implement the relevant hook. Register every
// extension before the first Emit call.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	jobCreated      []entry[JobCreated]
	jobPublished    []entry[JobPublished]
	broadcastFailed []entry[BroadcastFailed]
	jobClaimed      []entry[JobClaimed]
	claimLost       []entry[ClaimLost]
	claimFailed     []entry[ClaimFailed]
	shutdown        []entry[Shutdown]
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and caches it under every hook it implements.
// Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(JobCreated); ok {
		r.jobCreated = append(r.jobCreated, entry[JobCreated]{name, h})
	}
	if h, ok := e.(JobPublished); ok {
		r.jobPublished = append(r.jobPublished, entry[JobPublished]{name, h})
	}
	if h, ok := e.(BroadcastFailed); ok {
		r.broadcastFailed = append(r.broadcastFailed, entry[BroadcastFailed]{name, h})
	}
	if h, ok := e.(JobClaimed); ok {
		r.jobClaimed = append(r.jobClaimed, entry[JobClaimed]{name, h})
	}
	if h, ok := e.(ClaimLost); ok {
		r.claimLost = append(r.claimLost, entry[ClaimLost]{name, h})
	}
	if h, ok := e.(ClaimFailed); ok {
		r.claimFailed = append(r.claimFailed, entry[ClaimFailed]{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, entry[Shutdown]{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Job emitters
// ──────────────────────────────────────────────────

// EmitJobCreated notifies all extensions that implement JobCreated.
func (r *Registry) EmitJobCreated(ctx context.Context, j *job.Job) {
	for _, e := range r.jobCreated {
		if err := e.hook.OnJobCreated(ctx, j); err != nil {
			r.logHookError("OnJobCreated", e.name, err)
		}
	}
}

// EmitJobPublished notifies all extensions that implement JobPublished.
func (r *Registry) EmitJobPublished(ctx context.Context, j *job.Job) {
	for _, e := range r.jobPublished {
		if err := e.hook.OnJobPublished(ctx, j); err != nil {
			r.logHookError("OnJobPublished", e.name, err)
		}
	}
}

// EmitBroadcastFailed notifies all extensions that implement BroadcastFailed.
func (r *Registry) EmitBroadcastFailed(ctx context.Context, j *job.Job, pubErr error) {
	for _, e := range r.broadcastFailed {
		if err := e.hook.OnBroadcastFailed(ctx, j, pubErr); err != nil {
			r.logHookError("OnBroadcastFailed", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Claim emitters
// ──────────────────────────────────────────────────

// EmitJobClaimed notifies all extensions that implement JobClaimed.
func (r *Registry) EmitJobClaimed(ctx context.Context, jobID id.JobID, workerRef string, elapsed time.Duration) {
	for _, e := range r.jobClaimed {
		if err := e.hook.OnJobClaimed(ctx, jobID, workerRef, elapsed); err != nil {
			r.logHookError("OnJobClaimed", e.name, err)
		}
	}
}

// EmitClaimLost notifies all extensions that implement ClaimLost.
func (r *Registry) EmitClaimLost(ctx context.Context, jobID id.JobID, workerRef string) {
	for _, e := range r.claimLost {
		if err := e.hook.OnClaimLost(ctx, jobID, workerRef); err != nil {
			r.logHookError("OnClaimLost", e.name, err)
		}
	}
}

// EmitClaimFailed notifies all extensions that implement ClaimFailed.
func (r *Registry) EmitClaimFailed(ctx context.Context, jobID id.JobID, workerRef string, claimErr error) {
	for _, e := range r.claimFailed {
		if err := e.hook.OnClaimFailed(ctx, jobID, workerRef, claimErr); err != nil {
			r.logHookError("OnClaimFailed", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other emitters
// ──────────────────────────────────────────────────

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a hook returns an error. Hook errors
// never reach the caller of the operation that fired the hook.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
