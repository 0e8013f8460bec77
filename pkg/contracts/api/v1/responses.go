package api

import (
	"time"

	"licensegate/pkg/contracts/domain"
)

// Issuing server responses

// ActivateResponse carries the activated license and a signed token bound to
// the requesting device.
type ActivateResponse struct {
	License   *domain.License `json:"license"`
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// ValidateResponse is the issuing server's verdict on a key
type ValidateResponse struct {
	Valid         bool            `json:"valid"`
	RemainingDays *int            `json:"remaining_days"`
	License       *domain.License `json:"license,omitempty"`
	ErrorCode     string          `json:"error_code,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// DeactivateResponse reports whether the activation was released
type DeactivateResponse struct {
	Success bool `json:"success"`
}

// Local API responses

// HealthResponse is returned by the health endpoint
type HealthResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version"`
	Uptime       string            `json:"uptime"`
	Components   map[string]string `json:"components"`
	LicenseValid bool              `json:"license_valid"`
	OfflineMode  bool              `json:"offline_mode"`
	Timestamp    time.Time         `json:"timestamp"`
}

// ValidationResponse mirrors a validation result for the UI
type ValidationResponse struct {
	Valid               bool            `json:"valid"`
	License             *domain.License `json:"license,omitempty"`
	RemainingDays       *int            `json:"remaining_days"`
	IsOfflineValidation bool            `json:"is_offline_validation"`
	ValidatedAt         time.Time       `json:"validated_at"`
	Error               string          `json:"error,omitempty"`
	ErrorCode           string          `json:"error_code,omitempty"`
}

// GraceResponse mirrors the grace period status
type GraceResponse struct {
	IsValid       bool       `json:"is_valid"`
	InGracePeriod bool       `json:"in_grace_period"`
	WarningLevel  string     `json:"warning_level"`
	RemainingDays int        `json:"remaining_days"`
	GraceEndsAt   *time.Time `json:"grace_ends_at,omitempty"`
	Message       string     `json:"message"`
}

// LicenseStatusResponse combines the latest validation with the grace status
type LicenseStatusResponse struct {
	Configured  bool                `json:"configured"`
	MaskedKey   string              `json:"masked_key,omitempty"`
	OfflineMode bool                `json:"offline_mode"`
	Validation  *ValidationResponse `json:"validation,omitempty"`
	Grace       GraceResponse       `json:"grace"`
}

// RetryResponse reports how many failed jobs were sent back to pending
type RetryResponse struct {
	Retried int `json:"retried"`
}
