// Package operations implements the license-aware job queue.
//
// Jobs wait in priority bands (critical, high, normal, low) and are taken
// first-in first-out within a band. Before a job runs, the license gate
// checks the latest license snapshot pushed by the validator: a missing or
// invalid license, a revoked, suspended or expired one, a missing feature or
// a full concurrency tier all divert the job to blocked instead of failing
// it. Blocked jobs are re-checked at the start of every cycle and return to
// pending on their own once the gate would pass.
//
// Every licensing decision emits LICENSE_CHECKED before the JOB_BLOCKED or
// JOB_STARTED event that follows it.
package operations
