package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gaurav-seth/carenest-helper/ext"
	"github.com/gaurav-seth/carenest-helper/id"
	"github.com/gaurav-seth/carenest-helper/job"
)

var (
	_ ext.Extension       = (*Extension)(nil)
	_ ext.JobCreated      = (*Extension)(nil)
	_ ext.JobPublished    = (*Extension)(nil)
	_ ext.BroadcastFailed = (*Extension)(nil)
	_ ext.JobClaimed      = (*Extension)(nil)
	_ ext.ClaimLost       = (*Extension)(nil)
	_ ext.ClaimFailed     = (*Extension)(nil)
)

// Recorder persists audit events.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one entry in the trail.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record calls f.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// NewLogRecorder writes every event as one structured log line.
func NewLogRecorder(logger *slog.Logger) Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return RecorderFunc(func(ctx context.Context, evt *AuditEvent) error {
		level := slog.LevelInfo
		switch evt.Severity {
		case SeverityWarning:
			level = slog.LevelWarn
		case SeverityCritical:
			level = slog.LevelError
		}
		attrs := []slog.Attr{
			slog.String("action", evt.Action),
			slog.String("category", evt.Category),
			slog.String("job_id", evt.ResourceID),
			slog.String("outcome", evt.Outcome),
		}
		if evt.Reason != "" {
			attrs = append(attrs, slog.String("reason", evt.Reason))
		}
		for k, v := range evt.Metadata {
			attrs = append(attrs, slog.Any(k, v))
		}
		logger.LogAttrs(ctx, level, "audit", attrs...)
		return nil
	})
}

// Extension turns engine hooks into audit events.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil records everything
	logger   *slog.Logger
}

// New creates an audit extension that records through r.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{recorder: r, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// OnJobCreated implements ext.JobCreated.
func (e *Extension) OnJobCreated(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobCreated, CategoryJob, SeverityInfo, OutcomeSuccess, j.ID.String(), nil, jobMeta(j))
}

// OnJobPublished implements ext.JobPublished.
func (e *Extension) OnJobPublished(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobPublished, CategoryJob, SeverityInfo, OutcomeSuccess, j.ID.String(), nil, jobMeta(j))
}

// OnBroadcastFailed implements ext.BroadcastFailed.
func (e *Extension) OnBroadcastFailed(ctx context.Context, j *job.Job, err error) error {
	return e.record(ctx, ActionBroadcastFailed, CategoryJob, SeverityWarning, OutcomeFailure, j.ID.String(), err, jobMeta(j))
}

// OnJobClaimed implements ext.JobClaimed.
func (e *Extension) OnJobClaimed(ctx context.Context, jobID id.JobID, workerRef string, elapsed time.Duration) error {
	return e.record(ctx, ActionJobAssigned, CategoryClaim, SeverityInfo, OutcomeSuccess, jobID.String(), nil, map[string]any{
		"worker_ref": workerRef,
		"elapsed_ms": elapsed.Milliseconds(),
	})
}

// OnClaimLost implements ext.ClaimLost.
func (e *Extension) OnClaimLost(ctx context.Context, jobID id.JobID, workerRef string) error {
	return e.record(ctx, ActionClaimLost, CategoryClaim, SeverityWarning, OutcomeFailure, jobID.String(), nil, map[string]any{
		"worker_ref": workerRef,
	})
}

// OnClaimFailed implements ext.ClaimFailed.
func (e *Extension) OnClaimFailed(ctx context.Context, jobID id.JobID, workerRef string, err error) error {
	return e.record(ctx, ActionClaimFailed, CategoryClaim, SeverityCritical, OutcomeFailure, jobID.String(), err, map[string]any{
		"worker_ref": workerRef,
	})
}

func (e *Extension) record(ctx context.Context, action, category, severity, outcome, resourceID string, cause error, meta map[string]any) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}
	evt := &AuditEvent{
		Action:     action,
		Resource:   ResourceJob,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
	}
	if cause != nil {
		evt.Reason = cause.Error()
	}
	if err := e.recorder.Record(ctx, evt); err != nil {
		e.logger.Warn("audit record failed",
			slog.String("action", action),
			slog.String("job_id", resourceID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("audithook: record %s: %w", action, err)
	}
	return nil
}

func jobMeta(j *job.Job) map[string]any {
	return map[string]any{
		"requester_ref": j.RequesterRef,
		"location":      j.Location,
	}
}
