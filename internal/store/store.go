// Package store defines persistent storage for user records and chat logs.
// This is durable data, unlike the session state the sync layer replicates.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// User is the persisted form of a player's chat settings.
type User struct {
	ID                 uuid.UUID
	Username           string
	Created            time.Time
	LastMessaged       string
	DisabledChats      []string
	SubscribedChannels []string
	Ignored            map[uuid.UUID]string
}

// ChatLog is one public chat message for the audit log.
type ChatLog struct {
	SenderID   uuid.UUID
	SenderName string
	Message    string
	At         time.Time
}

// PrivateChatLog is one private message for the audit log.
type PrivateChatLog struct {
	SenderID   uuid.UUID
	SenderName string
	TargetName string
	Message    string
	At         time.Time
}

// Store is the persistence contract.
type Store interface {
	// LoadUser fetches a user record. Returns ErrNotFound for unknown ids.
	LoadUser(ctx context.Context, id uuid.UUID) (*User, error)
	// SaveUser upserts a user record, replacing subscriptions and ignores.
	SaveUser(ctx context.Context, u *User) error
	// LogChat appends to the public chat log.
	LogChat(ctx context.Context, entry ChatLog) error
	// LogPrivateChat appends to the private chat log.
	LogPrivateChat(ctx context.Context, entry PrivateChatLog) error
	// Close releases the underlying database.
	Close() error
}
