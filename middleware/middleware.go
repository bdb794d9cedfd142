package middleware

import (
	"context"

	"github.com/gaurav-seth/carenest-helper/id"
	"github.com/gaurav-seth/carenest-helper/job"
)

// Claim describes one claim attempt travelling through the chain. The
// terminal handler records the store's answer in Result.
type Claim struct {
	JobID     id.JobID
	WorkerRef string
	Attempt   int
	Result    job.ClaimResult
}

// Handler is the terminal function that performs the conditional write.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic. It MUST call next
// to continue the chain unless it short-circuits with an error.
type Middleware func(ctx context.Context, c *Claim, next Handler) error

// Chain composes middleware so that the first one in the list is the
// outermost wrapper.
//
//	Chain(logging, recover, tracing) → logging → recover → tracing → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, c *Claim, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			inner := h
			h = func(ctx context.Context) error {
				return mw(ctx, c, inner)
			}
		}
		return h(ctx)
	}
}
