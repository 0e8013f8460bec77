// Package api contains the HTTP contracts spoken between the desktop backend,
// its UI and the license issuing server. Version v1 is the current stable API.
package api

// Issuing server requests

// ActivateRequest binds a license key to a device fingerprint
type ActivateRequest struct {
	LicenseKey  string `json:"license_key" validate:"required"`
	Fingerprint string `json:"fingerprint" validate:"required"`
}

// ValidateRequest asks the issuing server for the current verdict on a key.
// Token is optional; when present it is verified as well.
type ValidateRequest struct {
	LicenseKey  string `json:"license_key" validate:"required"`
	Fingerprint string `json:"fingerprint" validate:"required"`
	Token       string `json:"token,omitempty"`
}

// DeactivateRequest releases the activation held by a device
type DeactivateRequest struct {
	LicenseKey  string `json:"license_key" validate:"required"`
	Fingerprint string `json:"fingerprint" validate:"required"`
	Token       string `json:"token" validate:"required"`
}

// Local API requests

// LicenseActivateRequest is posted by the UI to activate this device
type LicenseActivateRequest struct {
	LicenseKey string `json:"license_key" validate:"required,max=64"`
}

// LicenseValidateRequest triggers a validation. An empty key re-validates
// the configured license.
type LicenseValidateRequest struct {
	LicenseKey string `json:"license_key" validate:"omitempty,max=64"`
}

// OfflineModeRequest switches the desktop backend in or out of offline mode
type OfflineModeRequest struct {
	Offline *bool `json:"offline" validate:"required"`
}

// JobEnqueueRequest submits a single job to the queue
type JobEnqueueRequest struct {
	Type            string                 `json:"type" validate:"required,max=64"`
	Priority        string                 `json:"priority,omitempty" validate:"omitempty,oneof=low normal high critical"`
	RequiredFeature string                 `json:"required_feature,omitempty" validate:"omitempty,max=64"`
	Payload         map[string]interface{} `json:"payload,omitempty"`
}

// JobBatchRequest submits several jobs at once, subject to the tier's batch limit
type JobBatchRequest struct {
	Jobs []JobEnqueueRequest `json:"jobs" validate:"required,min=1,dive"`
}

// JobListQuery filters the job listing
type JobListQuery struct {
	Status   string `query:"status" validate:"omitempty,oneof=pending processing completed failed blocked"`
	Type     string `query:"type" validate:"omitempty,max=64"`
	Priority string `query:"priority" validate:"omitempty,oneof=low normal high critical"`
}
