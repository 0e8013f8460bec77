package operations

import (
	"errors"
	"slices"
	"time"

	apperrors "licensegate/internal/errors"
	"licensegate/internal/license"
)

// TierLimits are the fixed per-tier queue limits. Zero means unlimited.
type TierLimits struct {
	Concurrency int
	BatchSize   int
}

var tierLimits = map[license.Type]TierLimits{
	license.TypeTrial:        {Concurrency: 1, BatchSize: 5},
	license.TypeStandard:     {Concurrency: 3, BatchSize: 25},
	license.TypeProfessional: {Concurrency: 10, BatchSize: 100},
	license.TypeEnterprise:   {},
}

// LimitsFor returns the limits of tier t; unknown tiers get the trial limits
func LimitsFor(t license.Type) TierLimits {
	if l, ok := tierLimits[t]; ok {
		return l
	}
	return tierLimits[license.TypeTrial]
}

// DefaultFeatureRequirements maps job types to the feature they need when
// the submitter does not name one.
var DefaultFeatureRequirements = map[string]string{
	"batch-process": "batch",
}

// Decision is the outcome of the license gate for one job
type Decision struct {
	Allowed bool
	Code    apperrors.Code
	Message string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(err error) Decision {
	d := Decision{Code: apperrors.CodeOf(err), Message: err.Error()}
	var le *apperrors.LicenseError
	if errors.As(err, &le) {
		d.Message = le.Message
	}
	if d.Code == "" {
		d.Code = apperrors.CodeLicenseInvalid
	}
	return d
}

// CheckLicense applies the license part of the gate, in order: a license
// snapshot exists, it is valid, its license is still usable at now, and it
// grants the job's required feature. Concurrency is checked by the queue.
func CheckLicense(snap *license.ValidationResult, job *Job, now time.Time) Decision {
	if snap == nil {
		return deny(apperrors.ErrNoLicense)
	}
	if !snap.Valid {
		return deny(snap.Err())
	}
	if snap.License == nil {
		return deny(apperrors.ErrNoLicense)
	}
	if err := license.CheckStatus(snap.License, now); err != nil {
		return deny(err)
	}
	if job.RequiredFeature != "" && !license.HasFeature(snap.License, job.RequiredFeature) {
		return deny(apperrors.Newf(apperrors.CodeFeatureNotAvailable, "feature %q is not included in the license", job.RequiredFeature))
	}
	return allow()
}

// sameVerdict reports whether two snapshots gate jobs identically
func sameVerdict(a, b *license.ValidationResult) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Valid != b.Valid || a.ErrorCode != b.ErrorCode {
		return false
	}
	la, lb := a.License, b.License
	if la == nil || lb == nil {
		return la == lb
	}
	return la.Key == lb.Key &&
		la.Type == lb.Type &&
		la.Status == lb.Status &&
		slices.Equal(la.Features, lb.Features) &&
		sameTime(la.ExpiresAt, lb.ExpiresAt)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
