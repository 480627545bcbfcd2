// Package packet defines the wire envelopes relayed between servers: public
// chat, private chat, and broadcasts. Every packet carries the identity of the
// server it originated on so receivers can suppress their own echo, plus the
// sender's bypass flags as resolved by the originating server at publish time.
// Receivers trust those flags rather than re-deriving them.
package packet

import (
	"github.com/google/uuid"

	"github.com/spaceseries/spacechat/internal/component"
)

// Chat is a public chat message, either global (Channel empty) or scoped to a
// channel handle.
type Chat struct {
	SenderID          uuid.UUID
	SenderName        string
	Channel           string
	ServerIdentifier  string
	ServerDisplayName string
	Component         component.Component
	CanBypassIgnore   bool
	CanBypassDisabled bool
}

// PrivateChat is a direct message addressed to a player by name. Message
// mirrors the rendered component as plain text for logging and echo
// comparisons. TargetName may be empty only on a system bounce, in which case
// SenderID is uuid.Nil and the packet is routed back to the original sender.
type PrivateChat struct {
	SenderID          uuid.UUID
	SenderName        string
	TargetName        string
	Message           string
	ServerIdentifier  string
	ServerDisplayName string
	Component         component.Component
	CanBypassIgnore   bool
	CanBypassDisabled bool
}

// Broadcast is a server-wide announcement delivered to every player on every
// server.
type Broadcast struct {
	ServerIdentifier  string
	ServerDisplayName string
	Component         component.Component
}
