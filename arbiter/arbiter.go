// Package arbiter decides who gets a job.
//
// Every claim becomes one conditional write in the store: set the job to
// assigned with this worker, but only while it is still open. The store
// evaluates that condition atomically, so among any number of concurrent
// claimers from any number of processes exactly one observes
// [job.OutcomeWon]. The arbiter never reads a job and then writes it.
package arbiter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/ext"
	"github.com/gaurav-seth/carenest-helper/id"
	"github.com/gaurav-seth/carenest-helper/job"
	mw "github.com/gaurav-seth/carenest-helper/middleware"
)

// HelperDirectory answers whether a worker reference belongs to a known
// helper. participant.Registry satisfies it.
type HelperDirectory interface {
	HelperExists(ctx context.Context, ref string) (bool, error)
}

// Option configures an Arbiter.
type Option func(*Arbiter)

// WithMiddleware appends middleware to the claim chain. The first one
// added is the outermost.
func WithMiddleware(m ...mw.Middleware) Option {
	return func(a *Arbiter) { a.mws = append(a.mws, m...) }
}

// WithExtensions sets the registry notified of claim results.
func WithExtensions(r *ext.Registry) Option {
	return func(a *Arbiter) { a.extensions = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Arbiter) { a.logger = l }
}

// WithHelperDirectory rejects claims from workers the directory does not
// know with carenest.ErrHelperNotFound.
func WithHelperDirectory(d HelperDirectory) Option {
	return func(a *Arbiter) { a.helpers = d }
}

// Arbiter settles claims. It is safe for concurrent use.
type Arbiter struct {
	store      job.Store
	helpers    HelperDirectory
	extensions *ext.Registry
	logger     *slog.Logger
	mws        []mw.Middleware
	chain      mw.Middleware
}

// New returns an Arbiter claiming through store.
func New(store job.Store, opts ...Option) *Arbiter {
	a := &Arbiter{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.extensions == nil {
		a.extensions = ext.NewRegistry(a.logger)
	}
	a.chain = mw.Chain(a.mws...)
	return a
}

// Claim attempts to assign jobID to workerRef.
//
//   - Won: this worker owns the job, either by this call or an earlier one.
//   - Lost: someone else owns it. The owner is not disclosed.
//   - NotFound: no such job; the error wraps carenest.ErrJobNotFound.
//
// A failure to evaluate the conditional write returns an error wrapping
// carenest.ErrStoreUnavailable. The caller may retry; a retry is safe
// because a repeated claim by the winner still reports Won.
func (a *Arbiter) Claim(ctx context.Context, jobID id.JobID, workerRef string) (job.Outcome, error) {
	return a.claim(ctx, jobID, workerRef, 1)
}

// ClaimAttempt is Claim with the caller's attempt number recorded on the
// claim for logs, spans and metrics.
func (a *Arbiter) ClaimAttempt(ctx context.Context, jobID id.JobID, workerRef string, attempt int) (job.Outcome, error) {
	return a.claim(ctx, jobID, workerRef, max(attempt, 1))
}

func (a *Arbiter) claim(ctx context.Context, jobID id.JobID, workerRef string, attempt int) (job.Outcome, error) {
	workerRef = strings.TrimSpace(workerRef)
	if workerRef == "" {
		return job.OutcomeLost, fmt.Errorf("%w: worker reference is required", carenest.ErrInvalidInput)
	}
	if jobID.IsNil() {
		return job.OutcomeNotFound, fmt.Errorf("%w: empty job id", carenest.ErrJobNotFound)
	}
	if a.helpers != nil {
		ok, err := a.helpers.HelperExists(ctx, workerRef)
		if err != nil {
			return job.OutcomeLost, fmt.Errorf("arbiter: look up helper: %w", err)
		}
		if !ok {
			return job.OutcomeLost, fmt.Errorf("%w: %s", carenest.ErrHelperNotFound, workerRef)
		}
	}

	c := &mw.Claim{JobID: jobID, WorkerRef: workerRef, Attempt: attempt}
	start := time.Now()
	err := a.chain(ctx, c, func(ctx context.Context) error {
		res, err := a.store.ClaimJob(ctx, jobID, workerRef)
		if err != nil {
			return err
		}
		c.Result = res
		return nil
	})
	elapsed := time.Since(start)

	switch {
	case err == nil:
	case errors.Is(err, carenest.ErrJobNotFound):
		return job.OutcomeNotFound, err
	case errors.Is(err, carenest.ErrStoreUnavailable):
		a.extensions.EmitClaimFailed(ctx, jobID, workerRef, err)
		return job.OutcomeLost, err
	default:
		err = fmt.Errorf("%w: %w", carenest.ErrStoreUnavailable, err)
		a.extensions.EmitClaimFailed(ctx, jobID, workerRef, err)
		return job.OutcomeLost, err
	}

	switch c.Result {
	case job.ClaimWon:
		a.extensions.EmitJobClaimed(ctx, jobID, workerRef, elapsed)
	case job.ClaimLost:
		a.extensions.EmitClaimLost(ctx, jobID, workerRef)
	}
	return c.Result.Outcome(), nil
}
