// Package user maintains the durable per-player chat profile and an
// in-memory cache of it for online players.
package user

import (
	"strings"
	gosync "sync"
	"time"

	"github.com/google/uuid"
)

// Chat visibility types a player can toggle off.
const (
	ChatTypePublic  = "public"
	ChatTypePrivate = "private"
)

// User is a player's persistent chat profile. It survives disconnects
// and relocations between servers. The mutable fields are guarded by an
// internal lock because the messenger's listener goroutine mutates them
// concurrently with the game thread.
type User struct {
	ID       uuid.UUID
	Username string
	Created  time.Time

	mu                 gosync.RWMutex
	lastMessaged       string
	disabledChats      map[string]struct{}
	subscribedChannels []string
	ignored            map[uuid.UUID]string
}

// New returns a fresh profile for a player seen for the first time.
func New(id uuid.UUID, username string) *User {
	return &User{
		ID:            id,
		Username:      username,
		Created:       time.Now(),
		disabledChats: make(map[string]struct{}),
		ignored:       make(map[uuid.UUID]string),
	}
}

// LastMessaged returns the name of the last player who exchanged a
// private message with this user.
func (u *User) LastMessaged() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.lastMessaged
}

// SetLastMessaged records the other side of the latest private message.
func (u *User) SetLastMessaged(username string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.lastMessaged = username
}

// HasChatEnabled reports whether the given chat type (public or
// private) is currently enabled for this user.
func (u *User) HasChatEnabled(chatType string) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	_, disabled := u.disabledChats[chatType]
	return !disabled
}

// SetChatEnabled toggles a chat type on or off.
func (u *User) SetChatEnabled(chatType string, enabled bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if enabled {
		delete(u.disabledChats, chatType)
		return
	}
	u.disabledChats[chatType] = struct{}{}
}

// DisabledChats lists the chat types this user has turned off.
func (u *User) DisabledChats() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]string, 0, len(u.disabledChats))
	for ct := range u.disabledChats {
		out = append(out, ct)
	}
	return out
}

// IsIgnored reports whether the user ignores messages from the given
// player.
func (u *User) IsIgnored(id uuid.UUID) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	_, ok := u.ignored[id]
	return ok
}

// Ignore records the given player on the user's ignore list. The name
// is stored lowercased for display in list commands.
func (u *User) Ignore(id uuid.UUID, username string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.ignored[id] = strings.ToLower(username)
}

// Unignore removes the given player from the ignore list.
func (u *User) Unignore(id uuid.UUID) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.ignored, id)
}

// Ignored returns a copy of the ignore list keyed by player id.
func (u *User) Ignored() map[uuid.UUID]string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make(map[uuid.UUID]string, len(u.ignored))
	for id, name := range u.ignored {
		out[id] = name
	}
	return out
}

// SubscribedChannels returns the channels this profile remembers the
// player listening to.
func (u *User) SubscribedChannels() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]string, len(u.subscribedChannels))
	copy(out, u.subscribedChannels)
	return out
}

// Subscribe records a channel subscription if not already present.
func (u *User) Subscribe(channel string) {
	channel = strings.ToLower(channel)
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, c := range u.subscribedChannels {
		if c == channel {
			return
		}
	}
	u.subscribedChannels = append(u.subscribedChannels, channel)
}

// Unsubscribe removes a channel subscription if present.
func (u *User) Unsubscribe(channel string) {
	channel = strings.ToLower(channel)
	u.mu.Lock()
	defer u.mu.Unlock()
	for i, c := range u.subscribedChannels {
		if c == channel {
			u.subscribedChannels = append(u.subscribedChannels[:i], u.subscribedChannels[i+1:]...)
			return
		}
	}
}
