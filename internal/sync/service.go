// Package sync replicates chat-session state (presence, channel subscriptions,
// current channel) and relays chat events across the servers of a proxy
// network. Both concerns sit behind backend-neutral contracts with two
// implementations each: process-local for single-server deployments and
// Redis-backed for networks. Call sites are identical either way.
//
// The replication is deliberately best-effort and eventually consistent; the
// state is ephemeral session metadata, not durable data.
package sync

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/spaceseries/spacechat/internal/sync/packet"
)

// ErrNotFound reports that a key was confirmed absent. Callers must be able to
// tell this apart from a faulted lookup, so transport failures are never
// mapped to it.
var ErrNotFound = errors.New("not found")

// DataService maintains shared per-player chat state. Write failures surface
// as errors for the caller to log; read failures must never be conflated with
// absence.
type DataService interface {
	// Subscribe adds a player to a channel's subscriber set and the channel
	// to the player's subscription set. Subscribing twice is a no-op.
	Subscribe(ctx context.Context, id uuid.UUID, channel string) error
	// Unsubscribe removes both sides of the subscription.
	Unsubscribe(ctx context.Context, id uuid.UUID, channel string) error
	// SetCurrentChannel overwrites the channel a player's outgoing messages
	// route to. An empty channel clears it, meaning global chat.
	SetCurrentChannel(ctx context.Context, id uuid.UUID, channel string) error
	// SubscribedChannels returns the channel handles a player receives.
	SubscribedChannels(ctx context.Context, id uuid.UUID) ([]string, error)
	// CurrentChannel returns the player's current channel, or "" for global.
	CurrentChannel(ctx context.Context, id uuid.UUID) (string, error)
	// Subscribers returns the ids subscribed to a channel, restricted to
	// players currently connected to this process. Stale entries left by
	// disconnected players are filtered, not errors.
	Subscribers(ctx context.Context, channel string) ([]uuid.UUID, error)

	// AddPlayer records this server as the one hosting the named player.
	AddPlayer(ctx context.Context, username string) error
	// RemovePlayer removes the presence record, but only if this server owns
	// it; one server never evicts another server's player.
	RemovePlayer(ctx context.Context, username string) error
	// SweepStalePlayers removes presence records registered under this server
	// for players that are not actually connected, e.g. after an unclean
	// shutdown.
	SweepStalePlayers(ctx context.Context) error

	// PlayerServer returns the identifier of the server hosting the named
	// player, or ErrNotFound if they are offline everywhere.
	PlayerServer(ctx context.Context, username string) (string, error)
	// Players returns the names of all players online anywhere on the network.
	Players(ctx context.Context) ([]string, error)
}

// StreamService relays chat events between servers. Publish hands an outbound
// packet to the relay; Receive is invoked with raw inbound payloads, drops
// self-originated events, and routes the rest to the Handler.
type StreamService interface {
	PublishChat(ctx context.Context, p *packet.Chat) error
	PublishPrivateChat(ctx context.Context, p *packet.PrivateChat) error
	PublishBroadcast(ctx context.Context, p *packet.Broadcast) error

	ReceiveChat(raw string)
	ReceivePrivateChat(raw string)
	ReceiveBroadcast(raw string)

	// Start establishes listener connections. End releases them and is safe
	// to call even if Start partially failed.
	Start(ctx context.Context) error
	End() error
}

// Handler is the application's delivery logic for events that arrived from
// other servers. Implementations are called from the relay's listener
// goroutine and must not assume the game thread.
type Handler interface {
	HandleRemoteChat(p *packet.Chat)
	HandleRemotePrivateChat(p *packet.PrivateChat)
	HandleRemoteBroadcast(p *packet.Broadcast)
}
