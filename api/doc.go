// Package api exposes the engine over HTTP with gin.
//
// Routes:
//
//	POST /api/patients/register
//	GET  /api/patients/all
//	POST /api/patients/create-job
//	POST /api/helpers/register
//	POST /api/helpers/verify
//	GET  /api/helpers/all
//	GET  /api/helpers/jobs/available
//	POST /api/helpers/accept-job/:jobId?helperPhone=
//	GET  /api/helpers/stream?helperPhone=      (SSE, job.created)
//	GET  /api/jobs/:jobId
//	GET  /api/activity/stream                  (SSE, claim results)
//	GET  /api/stats
//	GET  /healthz
//	GET  /metrics
//
// Errors are JSON bodies of the form {"error": "..."}.
package api
