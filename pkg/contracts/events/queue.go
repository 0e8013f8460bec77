package events

import (
	"time"
)

// EventType names an entry of the queue's audit trail
type EventType string

const (
	EventJobEnqueued    EventType = "JOB_ENQUEUED"
	EventLicenseChecked EventType = "LICENSE_CHECKED"
	EventJobBlocked     EventType = "JOB_BLOCKED"
	EventJobUnblocked   EventType = "JOB_UNBLOCKED"
	EventJobStarted     EventType = "JOB_STARTED"
	EventJobCompleted   EventType = "JOB_COMPLETED"
	EventJobFailed      EventType = "JOB_FAILED"
	EventJobRetried     EventType = "JOB_RETRIED"
)

// QueueEvent is emitted by the job queue for every state change and every
// licensing decision. Allowed is only meaningful for LICENSE_CHECKED.
type QueueEvent struct {
	Type       EventType `json:"type"`
	JobID      string    `json:"job_id"`
	JobType    string    `json:"job_type,omitempty"`
	Priority   string    `json:"priority,omitempty"`
	Status     string    `json:"status,omitempty"`
	Allowed    bool      `json:"allowed,omitempty"`
	ErrorCode  string    `json:"error_code,omitempty"`
	Message    string    `json:"message,omitempty"`
	RetryCount int       `json:"retry_count,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// GraceSnapshot mirrors the offline grace status for display
type GraceSnapshot struct {
	IsValid       bool       `json:"is_valid"`
	InGracePeriod bool       `json:"in_grace_period"`
	WarningLevel  string     `json:"warning_level"`
	RemainingDays int        `json:"remaining_days"`
	GraceEndsAt   *time.Time `json:"grace_ends_at,omitempty"`
	Message       string     `json:"message"`
}

// LicenseStatusEvent is published whenever the validator produces a result
type LicenseStatusEvent struct {
	Valid               bool           `json:"valid"`
	LicenseType         string         `json:"license_type,omitempty"`
	Status              string         `json:"status,omitempty"`
	MaskedKey           string         `json:"masked_key,omitempty"`
	RemainingDays       *int           `json:"remaining_days,omitempty"`
	IsOfflineValidation bool           `json:"is_offline_validation"`
	ErrorCode           string         `json:"error_code,omitempty"`
	Error               string         `json:"error,omitempty"`
	Grace               *GraceSnapshot `json:"grace,omitempty"`
	ValidatedAt         time.Time      `json:"validated_at"`
}
