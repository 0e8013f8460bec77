// Package http implements the local API of the desktop backend.
//
// Handlers are thin: they bind and validate the request, call the license
// validator or the job queue, and render the result with go-chi/render.
// Failures are rendered as RFC 7807 problem details by the shared
// errors.ErrorHandler, with an error_code extension the UI can switch on.
//
// Routes:
//
//	GET  /api/health
//	GET  /api/license/status
//	POST /api/license/validate
//	POST /api/license/activate
//	POST /api/license/deactivate
//	PUT  /api/license/offline
//	POST /api/jobs
//	POST /api/jobs/batch
//	GET  /api/jobs
//	GET  /api/jobs/stats
//	GET  /api/jobs/export?format=csv|xlsx
//	POST /api/jobs/retry
//	GET  /api/jobs/{id}
//	GET  /ws
//	GET  /metrics
package http
