// Package realtime implements the live-connection protocol: JSON frames
// over a websocket, a per-connection read loop and the fan-out dispatcher.
package realtime

import (
	"encoding/json"
	"time"
)

// Inbound frame types.
const (
	TypeInit         = "init"
	TypeChat         = "chat"
	TypeNotification = "notification"
	TypeTyping       = "typing"
	TypeStopTyping   = "stop_typing"
)

// Outbound event types.
const (
	TypeConnection = "connection"
	TypeUsers      = "users"
	TypePresence   = "presence"
	TypeError      = "error"
)

// Connection / presence statuses.
const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
	StatusOnline       = "online"
	StatusOffline      = "offline"
)

// Frame is the inbound JSON envelope. Data is decoded per frame type.
type Frame struct {
	Type   string          `json:"type"`
	UserID string          `json:"userId,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Event is the outbound JSON envelope.
type Event struct {
	Type     string `json:"type"`
	Status   string `json:"status,omitempty"`
	UserID   string `json:"userId,omitempty"`
	SenderID string `json:"senderId,omitempty"`
	Message  string `json:"message,omitempty"`
	Data     any    `json:"data,omitempty"`
}

// ChatPayload is the data of an inbound chat frame. ID and Timestamp are
// optional; the store defaults them.
type ChatPayload struct {
	ID         string    `json:"id,omitempty"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp,omitzero"`
}

// NotificationPayload is the data of an inbound notification frame.
type NotificationPayload struct {
	ID        string    `json:"id,omitempty"`
	UserID    string    `json:"userId"`
	Kind      string    `json:"type"`
	Message   string    `json:"message"`
	RelatedID string    `json:"relatedId,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// TypingPayload is the data of typing and stop_typing frames.
type TypingPayload struct {
	ReceiverID string `json:"receiverId"`
}
