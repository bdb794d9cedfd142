package middleware

import (
	"errors"

	carenest "github.com/gaurav-seth/carenest-helper"
)

// outcomeLabel names what happened to a claim for logs, spans and metrics.
func outcomeLabel(c *Claim, err error) string {
	switch {
	case err == nil && c.Result != 0:
		return c.Result.String()
	case err == nil:
		return "unknown"
	case errors.Is(err, carenest.ErrJobNotFound):
		return "not_found"
	default:
		return "error"
	}
}
