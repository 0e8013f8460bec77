package http

import (
	"context"

	"licensegate/internal/license"
	"licensegate/internal/operations"
)

// LicenseService is the part of license.Validator the API uses
type LicenseService interface {
	Current() *license.ValidationResult
	GraceStatus() license.GracePeriodStatus
	ConfiguredKey() string
	Validate(ctx context.Context, key string) *license.ValidationResult
	Activate(ctx context.Context, key string) *license.ValidationResult
	Deactivate(ctx context.Context) error
	SetOffline(offline bool)
	IsOffline() bool
}

// JobService is the part of operations.Queue the API uses
type JobService interface {
	Enqueue(ctx context.Context, req operations.EnqueueRequest) (*operations.Job, error)
	EnqueueBatch(ctx context.Context, reqs []operations.EnqueueRequest) ([]*operations.Job, error)
	Get(id string) (*operations.Job, error)
	List(filter operations.JobFilter) []*operations.Job
	Stats() operations.Stats
	RetryFailedJobs(ctx context.Context) int
	SetOfflineMode(offline bool)
}

var (
	_ LicenseService = (*license.Validator)(nil)
	_ JobService     = (*operations.Queue)(nil)
)
