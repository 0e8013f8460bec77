// Package domain contains the domain models shared by the desktop backend,
// the issuing server and their HTTP contracts.
package domain

import (
	"time"
)

// LicenseType is the commercial tier of a license
type LicenseType string

const (
	LicenseTypeTrial        LicenseType = "trial"
	LicenseTypeStandard     LicenseType = "standard"
	LicenseTypeProfessional LicenseType = "professional"
	LicenseTypeEnterprise   LicenseType = "enterprise"
)

// Valid reports whether t is a known tier
func (t LicenseType) Valid() bool {
	switch t {
	case LicenseTypeTrial, LicenseTypeStandard, LicenseTypeProfessional, LicenseTypeEnterprise:
		return true
	}
	return false
}

// LicenseStatus represents the stored status of a license. Expired is never
// stored by the issuer; it is derived from ExpiresAt.
type LicenseStatus string

const (
	LicenseStatusPending   LicenseStatus = "pending"
	LicenseStatusActive    LicenseStatus = "active"
	LicenseStatusSuspended LicenseStatus = "suspended"
	LicenseStatusRevoked   LicenseStatus = "revoked"
	LicenseStatusExpired   LicenseStatus = "expired"
)

// FeatureUnlimited grants every feature
const FeatureUnlimited = "unlimited"

// License is the identity of an entitlement
type License struct {
	ID                  string                 `json:"id" yaml:"id"`
	Key                 string                 `json:"key" yaml:"key" validate:"required"`
	Type                LicenseType            `json:"type" yaml:"type"`
	Status              LicenseStatus          `json:"status" yaml:"status"`
	Email               string                 `json:"email,omitempty" yaml:"email"`
	UserID              string                 `json:"userId,omitempty" yaml:"user_id"`
	HardwareFingerprint string                 `json:"hardwareFingerprint,omitempty" yaml:"hardware_fingerprint"`
	ActivatedAt         *time.Time             `json:"activatedAt,omitempty" yaml:"activated_at"`
	ExpiresAt           *time.Time             `json:"expiresAt,omitempty" yaml:"expires_at"`
	MaxActivations      int                    `json:"maxActivations" yaml:"max_activations"`
	CurrentActivations  int                    `json:"currentActivations" yaml:"current_activations"`
	Features            []string               `json:"features" yaml:"features"`
	Metadata            map[string]interface{} `json:"metadata,omitempty" yaml:"metadata"`
}

// HasFeature reports whether the license grants name, directly or via the
// unlimited wildcard. A nil license grants nothing.
func (l *License) HasFeature(name string) bool {
	if l == nil {
		return false
	}
	for _, f := range l.Features {
		if f == name || f == FeatureUnlimited {
			return true
		}
	}
	return false
}

// IsExpired reports whether the license has an expiry at or before now
func (l *License) IsExpired(now time.Time) bool {
	return l != nil && l.ExpiresAt != nil && !now.Before(*l.ExpiresAt)
}

// EffectiveStatus returns the stored status, or expired when an otherwise
// usable license has passed its expiry.
func (l *License) EffectiveStatus(now time.Time) LicenseStatus {
	if l == nil {
		return ""
	}
	switch l.Status {
	case LicenseStatusRevoked, LicenseStatusSuspended:
		return l.Status
	}
	if l.IsExpired(now) {
		return LicenseStatusExpired
	}
	return l.Status
}

// Clone returns a deep copy
func (l *License) Clone() *License {
	if l == nil {
		return nil
	}
	c := *l
	if l.ActivatedAt != nil {
		t := *l.ActivatedAt
		c.ActivatedAt = &t
	}
	if l.ExpiresAt != nil {
		t := *l.ExpiresAt
		c.ExpiresAt = &t
	}
	c.Features = append([]string(nil), l.Features...)
	if l.Metadata != nil {
		c.Metadata = make(map[string]interface{}, len(l.Metadata))
		for k, v := range l.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
