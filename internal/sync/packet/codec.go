package packet

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/spaceseries/spacechat/internal/component"
)

// Deserialization fails closed: a missing or malformed required field is an
// error, never a silent default, because the bypass flags are security
// relevant for routing on the receiving side.

var errMissingField = errors.New("missing required field")

type chatWire struct {
	SenderID          *string `json:"senderId"`
	SenderName        *string `json:"senderName"`
	Channel           string  `json:"channel,omitempty"`
	ServerIdentifier  *string `json:"serverIdentifier"`
	ServerDisplayName *string `json:"serverDisplayName"`
	Component         *string `json:"component"`
	CanBypassIgnore   *bool   `json:"canBypassIgnore"`
	CanBypassDisabled *bool   `json:"canBypassDisabled"`
}

type privateChatWire struct {
	SenderID          *string `json:"senderId"`
	SenderName        *string `json:"senderName"`
	TargetName        string  `json:"targetName,omitempty"`
	Message           string  `json:"message"`
	ServerIdentifier  *string `json:"serverIdentifier"`
	ServerDisplayName *string `json:"serverDisplayName"`
	Component         *string `json:"component"`
	CanBypassIgnore   *bool   `json:"canBypassIgnore"`
	CanBypassDisabled *bool   `json:"canBypassDisabled"`
}

type broadcastWire struct {
	ServerIdentifier  *string `json:"serverIdentifier"`
	ServerDisplayName *string `json:"serverDisplayName"`
	Component         *string `json:"component"`
}

// MarshalChat encodes a chat packet to its wire string.
func MarshalChat(p *Chat) (string, error) {
	comp, err := component.Serialize(p.Component)
	if err != nil {
		return "", err
	}
	sender := p.SenderID.String()
	data, err := json.Marshal(chatWire{
		SenderID:          &sender,
		SenderName:        &p.SenderName,
		Channel:           p.Channel,
		ServerIdentifier:  &p.ServerIdentifier,
		ServerDisplayName: &p.ServerDisplayName,
		Component:         &comp,
		CanBypassIgnore:   &p.CanBypassIgnore,
		CanBypassDisabled: &p.CanBypassDisabled,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat packet: %w", err)
	}
	return string(data), nil
}

// UnmarshalChat decodes a chat packet from its wire string.
func UnmarshalChat(raw string) (*Chat, error) {
	var w chatWire
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return nil, fmt.Errorf("unmarshal chat packet: %w", err)
	}
	if w.SenderID == nil || w.SenderName == nil || w.ServerIdentifier == nil ||
		w.ServerDisplayName == nil || w.Component == nil ||
		w.CanBypassIgnore == nil || w.CanBypassDisabled == nil {
		return nil, fmt.Errorf("chat packet: %w", errMissingField)
	}
	sender, err := uuid.Parse(*w.SenderID)
	if err != nil {
		return nil, fmt.Errorf("chat packet senderId: %w", err)
	}
	if *w.ServerIdentifier == "" {
		return nil, fmt.Errorf("chat packet serverIdentifier: %w", errMissingField)
	}
	comp, err := component.Deserialize(*w.Component)
	if err != nil {
		return nil, fmt.Errorf("chat packet: %w", err)
	}
	return &Chat{
		SenderID:          sender,
		SenderName:        *w.SenderName,
		Channel:           w.Channel,
		ServerIdentifier:  *w.ServerIdentifier,
		ServerDisplayName: *w.ServerDisplayName,
		Component:         comp,
		CanBypassIgnore:   *w.CanBypassIgnore,
		CanBypassDisabled: *w.CanBypassDisabled,
	}, nil
}

// MarshalPrivateChat encodes a private chat packet to its wire string.
func MarshalPrivateChat(p *PrivateChat) (string, error) {
	comp, err := component.Serialize(p.Component)
	if err != nil {
		return "", err
	}
	sender := p.SenderID.String()
	data, err := json.Marshal(privateChatWire{
		SenderID:          &sender,
		SenderName:        &p.SenderName,
		TargetName:        p.TargetName,
		Message:           p.Message,
		ServerIdentifier:  &p.ServerIdentifier,
		ServerDisplayName: &p.ServerDisplayName,
		Component:         &comp,
		CanBypassIgnore:   &p.CanBypassIgnore,
		CanBypassDisabled: &p.CanBypassDisabled,
	})
	if err != nil {
		return "", fmt.Errorf("marshal private chat packet: %w", err)
	}
	return string(data), nil
}

// UnmarshalPrivateChat decodes a private chat packet from its wire string. An
// empty targetName is accepted only for system bounce packets, identified by
// the nil sender sentinel.
func UnmarshalPrivateChat(raw string) (*PrivateChat, error) {
	var w privateChatWire
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return nil, fmt.Errorf("unmarshal private chat packet: %w", err)
	}
	if w.SenderID == nil || w.SenderName == nil || w.ServerIdentifier == nil ||
		w.ServerDisplayName == nil || w.Component == nil ||
		w.CanBypassIgnore == nil || w.CanBypassDisabled == nil {
		return nil, fmt.Errorf("private chat packet: %w", errMissingField)
	}
	sender, err := uuid.Parse(*w.SenderID)
	if err != nil {
		return nil, fmt.Errorf("private chat packet senderId: %w", err)
	}
	if *w.ServerIdentifier == "" {
		return nil, fmt.Errorf("private chat packet serverIdentifier: %w", errMissingField)
	}
	if w.TargetName == "" && sender != uuid.Nil {
		return nil, fmt.Errorf("private chat packet targetName: %w", errMissingField)
	}
	comp, err := component.Deserialize(*w.Component)
	if err != nil {
		return nil, fmt.Errorf("private chat packet: %w", err)
	}
	return &PrivateChat{
		SenderID:          sender,
		SenderName:        *w.SenderName,
		TargetName:        w.TargetName,
		Message:           w.Message,
		ServerIdentifier:  *w.ServerIdentifier,
		ServerDisplayName: *w.ServerDisplayName,
		Component:         comp,
		CanBypassIgnore:   *w.CanBypassIgnore,
		CanBypassDisabled: *w.CanBypassDisabled,
	}, nil
}

// MarshalBroadcast encodes a broadcast packet to its wire string.
func MarshalBroadcast(p *Broadcast) (string, error) {
	comp, err := component.Serialize(p.Component)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(broadcastWire{
		ServerIdentifier:  &p.ServerIdentifier,
		ServerDisplayName: &p.ServerDisplayName,
		Component:         &comp,
	})
	if err != nil {
		return "", fmt.Errorf("marshal broadcast packet: %w", err)
	}
	return string(data), nil
}

// UnmarshalBroadcast decodes a broadcast packet from its wire string.
func UnmarshalBroadcast(raw string) (*Broadcast, error) {
	var w broadcastWire
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return nil, fmt.Errorf("unmarshal broadcast packet: %w", err)
	}
	if w.ServerIdentifier == nil || w.ServerDisplayName == nil || w.Component == nil {
		return nil, fmt.Errorf("broadcast packet: %w", errMissingField)
	}
	if *w.ServerIdentifier == "" {
		return nil, fmt.Errorf("broadcast packet serverIdentifier: %w", errMissingField)
	}
	comp, err := component.Deserialize(*w.Component)
	if err != nil {
		return nil, fmt.Errorf("broadcast packet: %w", err)
	}
	return &Broadcast{
		ServerIdentifier:  *w.ServerIdentifier,
		ServerDisplayName: *w.ServerDisplayName,
		Component:         comp,
	}, nil
}
