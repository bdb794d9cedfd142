// Package audithook records an audit trail of job and claim activity.
//
// The extension listens to the engine's lifecycle hooks and turns each one
// into an [AuditEvent] handed to a [Recorder]. Normal activity is recorded
// at info severity; lost claims and broadcast failures at warning; claim
// errors as critical.
//
//	eng, _ := engine.Build(hub,
//	    engine.WithExtension(audithook.New(audithook.NewLogRecorder(logger))),
//	)
//
// Restrict the trail to selected actions with [WithActions]:
//
//	audithook.New(recorder,
//	    audithook.WithActions(audithook.ActionJobAssigned, audithook.ActionClaimFailed),
//	)
package audithook
