package middleware

import (
	"context"
	"time"
)

// Timeout bounds each claim attempt. A zero duration leaves the caller's
// context untouched.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, _ *Claim, next Handler) error {
		if d <= 0 {
			return next(ctx)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next(ctx)
	}
}
