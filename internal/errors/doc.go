// Package errors defines the failure vocabulary shared by the license trust
// subsystem and the job queue: stable codes, the typed LicenseError value and
// their RFC 7807 rendering for HTTP callers.
package errors
