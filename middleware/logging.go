package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/gaurav-seth/carenest-helper/job"
)

// Logging returns middleware that logs every claim with its outcome.
// Lost claims are routine and logged at Debug.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, c *Claim, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		attrs := []any{
			slog.String("job_id", c.JobID.String()),
			slog.String("worker_ref", c.WorkerRef),
			slog.Int("attempt", c.Attempt),
			slog.String("outcome", outcomeLabel(c, err)),
			slog.Duration("elapsed", elapsed),
		}

		switch {
		case err != nil:
			logger.Warn("claim failed", append(attrs, slog.String("error", err.Error()))...)
		case c.Result == job.ClaimLost:
			logger.Debug("claim lost", attrs...)
		default:
			logger.Info("claim settled", attrs...)
		}
		return err
	}
}
