package websocket

import (
	"context"

	"licensegate/internal/license"
	"licensegate/pkg/contracts/events"
)

// HubSink forwards queue events and license results to the hub
type HubSink struct {
	hub *Hub
}

// NewHubSink returns a sink broadcasting on hub
func NewHubSink(hub *Hub) *HubSink {
	return &HubSink{hub: hub}
}

// Publish broadcasts a queue event
func (s *HubSink) Publish(ctx context.Context, e events.QueueEvent) {
	s.hub.Broadcast(ctx, events.MessageTypeQueueEvent, e)
}

// PublishLicense broadcasts a validation result together with the grace
// status at the time it was produced.
func (s *HubSink) PublishLicense(ctx context.Context, res *license.ValidationResult, grace license.GracePeriodStatus) {
	s.hub.Broadcast(ctx, events.MessageTypeLicenseStatus, LicenseStatusEvent(res, grace))
}

// LicenseStatusEvent converts a validation result for display
func LicenseStatusEvent(res *license.ValidationResult, grace license.GracePeriodStatus) events.LicenseStatusEvent {
	e := events.LicenseStatusEvent{
		Valid:               res.Valid,
		RemainingDays:       res.RemainingDays,
		IsOfflineValidation: res.IsOfflineValidation,
		ErrorCode:           string(res.ErrorCode),
		Error:               res.Error,
		ValidatedAt:         res.ValidatedAt,
		Grace: &events.GraceSnapshot{
			IsValid:       grace.IsValid,
			InGracePeriod: grace.InGracePeriod,
			WarningLevel:  string(grace.WarningLevel),
			RemainingDays: grace.RemainingDays,
			GraceEndsAt:   grace.GraceEndsAt,
			Message:       grace.Message,
		},
	}
	if res.License != nil {
		e.LicenseType = string(res.License.Type)
		e.Status = string(res.License.Status)
		e.MaskedKey = license.MaskKey(res.License.Key)
	}
	return e
}
