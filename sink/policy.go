package sink

import (
	"context"
	"strings"

	"github.com/gaurav-seth/carenest-helper/job"
)

// Policy decides whether a helper wants to claim an announced job.
type Policy interface {
	Accept(ctx context.Context, ev job.CreatedEvent) bool
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(ctx context.Context, ev job.CreatedEvent) bool

// Accept implements Policy.
func (f PolicyFunc) Accept(ctx context.Context, ev job.CreatedEvent) bool { return f(ctx, ev) }

// AcceptAll claims every announced job.
var AcceptAll Policy = PolicyFunc(func(context.Context, job.CreatedEvent) bool { return true })

// LocationPolicy accepts jobs whose location contains any of the given
// areas, ignoring case. With no areas it accepts nothing.
func LocationPolicy(areas ...string) Policy {
	folded := make([]string, 0, len(areas))
	for _, a := range areas {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			folded = append(folded, a)
		}
	}
	return PolicyFunc(func(_ context.Context, ev job.CreatedEvent) bool {
		loc := strings.ToLower(ev.Location)
		for _, a := range folded {
			if strings.Contains(loc, a) {
				return true
			}
		}
		return false
	})
}
