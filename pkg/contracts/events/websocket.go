// Package events contains the event contracts streamed to UI collaborators
// over WebSocket.
package events

import (
	"time"
)

// ProtocolVersion is sent in the connect message
const ProtocolVersion = "1.0"

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Queue and license audit trail
	MessageTypeQueueEvent    MessageType = "queue:event"
	MessageTypeLicenseStatus MessageType = "license:status"

	// Connection messages
	MessageTypeConnect    MessageType = "connect"
	MessageTypeDisconnect MessageType = "disconnect"
	MessageTypeError      MessageType = "error"
)

// BaseMessage represents the base structure for all WebSocket messages
type BaseMessage struct {
	ID        string      `json:"id,omitempty"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// WebSocketMessage represents a complete WebSocket message
type WebSocketMessage struct {
	BaseMessage
	Data interface{} `json:"data,omitempty"`
}

// ErrorData is the payload of an error message
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Retry   bool   `json:"retry"`
}

// ConnectData is sent once to every client after the upgrade
type ConnectData struct {
	Protocol string `json:"protocol"`
	ClientID string `json:"client_id"`
}
