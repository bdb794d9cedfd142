package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	carenest "github.com/gaurav-seth/carenest-helper"
)

// Recover converts a panic inside the chain into ErrStoreUnavailable so the
// caller sees a retryable failure instead of a crashed goroutine.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, c *Claim, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("claim handler panicked",
					slog.String("job_id", c.JobID.String()),
					slog.String("worker_ref", c.WorkerRef),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				retErr = fmt.Errorf("panic claiming job %s: %v: %w", c.JobID, r, carenest.ErrStoreUnavailable)
			}
		}()
		return next(ctx)
	}
}
