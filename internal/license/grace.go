package license

import (
	"time"
)

// OfflineState is the memory of the offline grace state machine. A non-nil
// GraceStartedAt implies IsOffline. Transitions never mutate their input.
type OfflineState struct {
	IsOffline            bool       `json:"isOffline"`
	LastOnlineValidation *time.Time `json:"lastOnlineValidation"`
	LastOfflineCheck     *time.Time `json:"lastOfflineCheck"`
	GraceStartedAt       *time.Time `json:"graceStartedAt"`
	GracePeriodDays      int        `json:"gracePeriodDays"`
	OfflineChecks        int        `json:"offlineChecks"`

	// Display descriptors of the license the state belongs to
	MaskedKey   string     `json:"maskedKey,omitempty"`
	LicenseType Type       `json:"licenseType,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// WarningLevel grades how close the grace window is to its end
type WarningLevel string

const (
	WarningNone     WarningLevel = "none"
	WarningWarning  WarningLevel = "warning"
	WarningCritical WarningLevel = "critical"
	WarningExpired  WarningLevel = "expired"
)

// GraceConfig tunes the grace status
type GraceConfig struct {
	WarningThresholdDays int
}

// GracePeriodStatus is the derived view of an OfflineState at an instant
type GracePeriodStatus struct {
	IsValid        bool          `json:"isValid"`
	InGracePeriod  bool          `json:"inGracePeriod"`
	NeverValidated bool          `json:"neverValidated"`
	WarningLevel   WarningLevel  `json:"warningLevel"`
	RemainingDays  int           `json:"remainingDays"`
	RemainingTime  time.Duration `json:"remainingTime"`
	GraceEndsAt    *time.Time    `json:"graceEndsAt,omitempty"`
	Message        string        `json:"message"`
}

const (
	msgOnline         = "validated online"
	msgNeverValidated = "never validated online"
	msgAwaitingGrace  = "offline, grace period not started"
	msgGraceExpired   = "offline grace period expired"
	msgGraceActive    = "offline grace period active"
)

// GetGracePeriodStatus derives the grace status. The first matching case wins:
//
//  1. online                            valid
//  2. offline, never validated online   invalid, expired level
//  3. offline, grace not started        valid
//  4. offline in grace                  level from the time left
func GetGracePeriodStatus(s OfflineState, cfg GraceConfig, now time.Time) GracePeriodStatus {
	if !s.IsOffline {
		return GracePeriodStatus{IsValid: true, WarningLevel: WarningNone, Message: msgOnline}
	}
	if s.LastOnlineValidation == nil {
		return GracePeriodStatus{WarningLevel: WarningExpired, NeverValidated: true, Message: msgNeverValidated}
	}
	if s.GraceStartedAt == nil {
		return GracePeriodStatus{IsValid: true, WarningLevel: WarningNone, Message: msgAwaitingGrace}
	}

	endsAt := s.GraceStartedAt.Add(time.Duration(s.GracePeriodDays) * day)
	status := GracePeriodStatus{InGracePeriod: true, GraceEndsAt: &endsAt}
	if !now.Before(endsAt) {
		status.WarningLevel = WarningExpired
		status.Message = msgGraceExpired
		return status
	}

	remaining := endsAt.Sub(now)
	status.IsValid = true
	status.RemainingTime = remaining
	status.RemainingDays = ceilDays(remaining)
	status.Message = msgGraceActive
	switch {
	case remaining <= day:
		status.WarningLevel = WarningCritical
	case status.RemainingDays <= cfg.WarningThresholdDays:
		status.WarningLevel = WarningWarning
	default:
		status.WarningLevel = WarningNone
	}
	return status
}

// GoOffline marks the device offline without starting the grace window
func GoOffline(s OfflineState) OfflineState {
	s.IsOffline = true
	return s
}

// StartGracePeriod starts the grace window at now with the length of tier t.
// A running window is left as is, so its length never changes mid-grace.
func StartGracePeriod(s OfflineState, t Type, now time.Time) OfflineState {
	if s.GraceStartedAt != nil {
		s.IsOffline = true
		return s
	}
	s.IsOffline = true
	s.GraceStartedAt = &now
	s.GracePeriodDays = GracePeriodDays(t)
	return s
}

// EndGracePeriod returns to online. Ending an already ended period returns
// the state unchanged.
func EndGracePeriod(s OfflineState, now time.Time) OfflineState {
	if !s.IsOffline && s.GraceStartedAt == nil {
		return s
	}
	return UpdateLastOnlineValidation(s, now)
}

// UpdateLastOnlineValidation records an online success at now
func UpdateLastOnlineValidation(s OfflineState, now time.Time) OfflineState {
	s.IsOffline = false
	s.GraceStartedAt = nil
	s.LastOnlineValidation = &now
	return s
}

// RecordOfflineCheck stamps an offline heartbeat
func RecordOfflineCheck(s OfflineState, now time.Time) OfflineState {
	s.LastOfflineCheck = &now
	s.OfflineChecks++
	return s
}

// describe copies the display descriptors of l into s
func describe(s OfflineState, l *License) OfflineState {
	if l == nil {
		return s
	}
	s.MaskedKey = MaskKey(l.Key)
	s.LicenseType = l.Type
	s.ExpiresAt = nil
	if l.ExpiresAt != nil {
		t := *l.ExpiresAt
		s.ExpiresAt = &t
	}
	return s
}
