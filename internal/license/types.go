package license

import (
	"time"

	apperrors "licensegate/internal/errors"
	"licensegate/pkg/contracts/domain"
)

// License is the entitlement record shared with the issuing server
type License = domain.License

// Type is the license tier
type Type = domain.LicenseType

// Status is the stored license status
type Status = domain.LicenseStatus

const (
	TypeTrial        = domain.LicenseTypeTrial
	TypeStandard     = domain.LicenseTypeStandard
	TypeProfessional = domain.LicenseTypeProfessional
	TypeEnterprise   = domain.LicenseTypeEnterprise

	StatusPending   = domain.LicenseStatusPending
	StatusActive    = domain.LicenseStatusActive
	StatusSuspended = domain.LicenseStatusSuspended
	StatusRevoked   = domain.LicenseStatusRevoked
	StatusExpired   = domain.LicenseStatusExpired

	// FeatureUnlimited grants every feature
	FeatureUnlimited = domain.FeatureUnlimited
)

const day = 24 * time.Hour

var gracePeriodDays = map[Type]int{
	TypeTrial:        3,
	TypeStandard:     7,
	TypeProfessional: 14,
	TypeEnterprise:   30,
}

// GracePeriodDays returns the offline grace length for a tier. Unknown tiers
// get the trial length.
func GracePeriodDays(t Type) int {
	if d, ok := gracePeriodDays[t]; ok {
		return d
	}
	return gracePeriodDays[TypeTrial]
}

// RemainingDays returns ceil((expiresAt-now)/24h) floored at zero, or nil for
// a perpetual license.
func RemainingDays(expiresAt *time.Time, now time.Time) *int {
	if expiresAt == nil {
		return nil
	}
	days := ceilDays(expiresAt.Sub(now))
	return &days
}

func ceilDays(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	days := int(d / day)
	if d%day != 0 {
		days++
	}
	return days
}

// HasFeature reports whether l grants name. The "unlimited" feature grants
// everything; a nil license grants nothing.
func HasFeature(l *License, name string) bool {
	return l.HasFeature(name)
}

var transitions = map[Status][]Status{
	StatusPending:   {StatusActive},
	StatusActive:    {StatusSuspended, StatusRevoked},
	StatusSuspended: {StatusRevoked},
}

// CanTransition reports whether a stored status may move from one value to
// another. Revoked is terminal and suspended never returns to active on its
// own; the issuer's Reinstate is the only way back.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CheckStatus maps a license's effective status at now to its denial code.
// Active licenses yield nil.
func CheckStatus(l *License, now time.Time) error {
	if l == nil {
		return apperrors.ErrLicenseNotFound
	}
	switch l.EffectiveStatus(now) {
	case StatusActive:
		return nil
	case StatusPending:
		return apperrors.New(apperrors.CodeLicenseNotFound, "license has not been issued yet")
	case StatusRevoked:
		return apperrors.ErrLicenseRevoked
	case StatusSuspended:
		return apperrors.ErrLicenseSuspended
	case StatusExpired:
		return apperrors.ErrLicenseExpired
	default:
		return apperrors.Newf(apperrors.CodeLicenseInvalid, "unknown license status %q", l.Status)
	}
}
