// Package event defines the canonical notification model and the
// normalizer that maps heterogeneous raw payloads from the live
// transports onto it.
package event

import "time"

// Type classifies a notification.
type Type string

const (
	TypeCreated     Type = "created"
	TypeUpdated     Type = "updated"
	TypeReassigned  Type = "reassigned"
	TypeFilesAdded  Type = "files_added"
	TypeChatMessage Type = "chat_message"
	TypeGeneric     Type = "generic"
)

// Notification is the canonical event destined for user-facing
// presentation. It is created once by normalization and never mutated
// afterwards; a changed fact arrives as a new Notification.
type Notification struct {
	// ID is unique within its source stream. It is never reused with
	// different semantic content within a session.
	ID string `json:"id"`

	Type        Type   `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	// Timestamp is best-effort monotonic within a stream.
	Timestamp time.Time `json:"timestamp"`

	// Room is the optional chat channel this notification belongs to.
	Room string `json:"room,omitempty"`

	// Sender identifies the originating participant for socket messages.
	SenderID   string `json:"senderId,omitempty"`
	SenderRole string `json:"senderRole,omitempty"`

	// Read transitions one-way false→true; a new unread fact arrives as a
	// new Notification.
	Read bool `json:"read"`

	// Raw is the original payload, passed through opaquely for consumers.
	Raw map[string]any `json:"-"`
}
