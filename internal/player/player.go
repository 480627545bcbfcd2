// Package player tracks the players connected to this process and how to
// deliver rendered chat to them. The host game server registers players on
// join and removes them on quit; everything else in the chat layer treats the
// roster as the authority on local presence.
package player

import (
	"github.com/google/uuid"

	"github.com/spaceseries/spacechat/internal/component"
)

// Sink receives rendered chat on behalf of one player. Implementations must be
// safe to call from the messenger goroutine.
type Sink interface {
	Deliver(from uuid.UUID, c component.Component)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(from uuid.UUID, c component.Component)

// Deliver calls f.
func (f SinkFunc) Deliver(from uuid.UUID, c component.Component) { f(from, c) }

// PermissionFunc answers whether a player holds a permission node. Provided by
// the host server; the chat layer never derives permissions itself.
type PermissionFunc func(p *Player, permission string) bool

// Player is one locally connected player.
type Player struct {
	ID   uuid.UUID
	Name string

	sink Sink
}

// New constructs a player with the given delivery sink.
func New(id uuid.UUID, name string, sink Sink) *Player {
	return &Player{ID: id, Name: name, sink: sink}
}

// Send delivers a rendered component to the player.
func (p *Player) Send(from uuid.UUID, c component.Component) {
	if p.sink != nil {
		p.sink.Deliver(from, c)
	}
}
