// Package chat routes messages between local players and the rest of the
// proxy network. The manager owns the local delivery rules (channel
// membership, disabled chats, ignore lists) and speaks to other servers
// through the sync layer.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/spaceseries/spacechat/internal/channel"
	"github.com/spaceseries/spacechat/internal/component"
	"github.com/spaceseries/spacechat/internal/config"
	"github.com/spaceseries/spacechat/internal/log"
	"github.com/spaceseries/spacechat/internal/messages"
	"github.com/spaceseries/spacechat/internal/player"
	"github.com/spaceseries/spacechat/internal/store"
	"github.com/spaceseries/spacechat/internal/sync"
	"github.com/spaceseries/spacechat/internal/sync/packet"
	"github.com/spaceseries/spacechat/internal/user"
)

// RenderFunc turns a raw message into the styled component that gets
// delivered. The game layer may install its own; the default produces a
// plain "Name> message" line, honoring the channel format if one is set.
type RenderFunc func(format string, sender *player.Player, message string) component.Component

func defaultRender(format string, sender *player.Player, message string) component.Component {
	if format == "" {
		return component.Text(sender.Name + "> " + message)
	}
	line := strings.NewReplacer("%player%", sender.Name, "%message%", message).Replace(format)
	return component.Text(line)
}

// Manager coordinates all chat traffic for this server.
type Manager struct {
	cfg      *config.Config
	log      zerolog.Logger
	roster   *player.Roster
	channels *channel.Registry
	users    *user.Manager
	catalog  *messages.Catalog
	store    store.Store
	perm     player.PermissionFunc
	render   RenderFunc

	data   sync.DataService
	stream sync.StreamService
}

// NewManager builds the chat manager. The sync services are bound
// afterwards with BindSync; the manager itself is the sync handler, so
// it has to exist before the sync layer does.
func NewManager(cfg *config.Config, roster *player.Roster, channels *channel.Registry, users *user.Manager, catalog *messages.Catalog, st store.Store, perm player.PermissionFunc, logger *zerolog.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		log:      log.Component(logger, "chat"),
		roster:   roster,
		channels: channels,
		users:    users,
		catalog:  catalog,
		store:    st,
		perm:     perm,
		render:   defaultRender,
	}
}

// BindSync attaches the sync services once they exist.
func (m *Manager) BindSync(data sync.DataService, stream sync.StreamService) {
	m.data = data
	m.stream = stream
}

// SetRenderer replaces the message renderer.
func (m *Manager) SetRenderer(r RenderFunc) {
	if r != nil {
		m.render = r
	}
}

// OnJoin registers a connecting player: roster entry, presence record
// and profile load with channel reconciliation.
func (m *Manager) OnJoin(ctx context.Context, p *player.Player) error {
	m.roster.Add(p)
	if _, err := m.users.Load(ctx, p.ID, p.Name); err != nil {
		// A half-joined player must not linger on the roster receiving
		// chat without a profile.
		m.roster.Remove(p.ID)
		return err
	}
	if err := m.data.AddPlayer(ctx, p.Name); err != nil {
		m.log.Warn().Err(err).Str("player", p.Name).Msg("failed to record network presence")
	}
	return nil
}

// OnQuit tears a disconnecting player down: presence removal, profile
// flush, roster removal.
func (m *Manager) OnQuit(ctx context.Context, id uuid.UUID) error {
	p := m.roster.Get(id)
	if p == nil {
		return nil
	}
	if err := m.data.RemovePlayer(ctx, p.Name); err != nil {
		m.log.Warn().Err(err).Str("player", p.Name).Msg("failed to remove network presence")
	}
	err := m.users.Invalidate(ctx, id)
	m.roster.Remove(id)
	return err
}

// SendChatMessage routes an outgoing message from a local player. It
// goes to the player's current channel if they still have access,
// otherwise to global chat after repairing the stale channel state.
func (m *Manager) SendChatMessage(ctx context.Context, p *player.Player, message string) {
	if u := m.users.Get(p.ID); u != nil && !u.HasChatEnabled(user.ChatTypePublic) {
		p.Send(uuid.Nil, m.catalog.ChatDisabled().Compile())
		return
	}

	current, err := m.data.CurrentChannel(ctx, p.ID)
	if err != nil {
		m.log.Warn().Err(err).Str("player", p.Name).Msg("failed to resolve current channel, routing to global")
		current = ""
	}

	if current != "" {
		ch, ok := m.channels.Get(current)
		switch {
		case !ok:
			// Channel removed from config while the player was in it.
			m.clearCurrentChannel(ctx, p.ID, current)
		case ch.Permission != "" && !m.perm(p, ch.Permission):
			m.clearCurrentChannel(ctx, p.ID, current)
			if err := m.data.Unsubscribe(ctx, p.ID, ch.Handle); err != nil {
				m.log.Warn().Err(err).Str("player", p.Name).Msg("failed to drop stale subscription")
			}
			if u := m.users.Get(p.ID); u != nil {
				u.Unsubscribe(ch.Handle)
			}
		default:
			m.sendToChannel(ctx, p, ch, message)
			return
		}
	}

	m.sendToGlobal(ctx, p, message)
}

func (m *Manager) clearCurrentChannel(ctx context.Context, id uuid.UUID, handle string) {
	if err := m.data.SetCurrentChannel(ctx, id, ""); err != nil {
		m.log.Warn().Err(err).Str("channel", handle).Msg("failed to clear stale current channel")
	}
}

func (m *Manager) sendToGlobal(ctx context.Context, p *player.Player, message string) {
	rendered := m.render("", p, message)
	bypassIgnore := m.perm(p, m.cfg.Permissions.BypassIgnore)
	bypassDisabled := m.perm(p, m.cfg.Permissions.BypassDisabledPublic)

	m.deliverGlobal(p.ID, rendered, bypassIgnore, bypassDisabled)

	m.publishChat(ctx, &packet.Chat{
		SenderID:          p.ID,
		SenderName:        p.Name,
		ServerIdentifier:  m.cfg.Server.Identifier,
		ServerDisplayName: m.cfg.Server.DisplayName,
		Component:         rendered,
		CanBypassIgnore:   bypassIgnore,
		CanBypassDisabled: bypassDisabled,
	})
	m.logChat(ctx, p, message)
}

func (m *Manager) sendToChannel(ctx context.Context, p *player.Player, ch channel.Channel, message string) {
	rendered := m.render(ch.Format, p, message)
	bypassIgnore := m.perm(p, m.cfg.Permissions.BypassIgnore)
	bypassDisabled := m.perm(p, m.cfg.Permissions.BypassDisabledPublic)

	m.deliverChannel(ctx, p.ID, ch, rendered, bypassIgnore, bypassDisabled)

	m.publishChat(ctx, &packet.Chat{
		SenderID:          p.ID,
		SenderName:        p.Name,
		Channel:           ch.Handle,
		ServerIdentifier:  m.cfg.Server.Identifier,
		ServerDisplayName: m.cfg.Server.DisplayName,
		Component:         rendered,
		CanBypassIgnore:   bypassIgnore,
		CanBypassDisabled: bypassDisabled,
	})
	m.logChat(ctx, p, message)
}

func (m *Manager) publishChat(ctx context.Context, p *packet.Chat) {
	if err := m.stream.PublishChat(ctx, p); err != nil {
		m.log.Warn().Err(err).Str("player", p.SenderName).Msg("failed to relay chat message")
	}
}

func (m *Manager) logChat(ctx context.Context, p *player.Player, message string) {
	err := m.store.LogChat(ctx, store.ChatLog{
		SenderID:   p.ID,
		SenderName: p.Name,
		Message:    message,
		At:         time.Now(),
	})
	if err != nil {
		m.log.Warn().Err(err).Msg("failed to log chat message")
	}
}

// deliverGlobal hands a global-chat component to every local player who
// should see it. A recipient with no loaded profile sees everything.
func (m *Manager) deliverGlobal(from uuid.UUID, c component.Component, bypassIgnore, bypassDisabled bool) {
	for _, recipient := range m.roster.All() {
		if recipient.ID == from {
			recipient.Send(from, c)
			continue
		}
		u := m.users.Get(recipient.ID)
		if u != nil {
			if !u.HasChatEnabled(user.ChatTypePublic) && !bypassDisabled {
				continue
			}
			if u.IsIgnored(from) && !bypassIgnore {
				continue
			}
		}
		recipient.Send(from, c)
	}
}

// deliverChannel hands a channel component to the local subscribers.
// Subscribers who lost the channel permission since they subscribed are
// dropped from the channel on the spot.
func (m *Manager) deliverChannel(ctx context.Context, from uuid.UUID, ch channel.Channel, c component.Component, bypassIgnore, bypassDisabled bool) {
	ids, err := m.data.Subscribers(ctx, ch.Handle)
	if err != nil {
		m.log.Warn().Err(err).Str("channel", ch.Handle).Msg("failed to resolve channel subscribers")
		ids = nil
	}

	seenSender := false
	for _, id := range ids {
		if id == from {
			seenSender = true
		}
		recipient := m.roster.Get(id)
		if recipient == nil {
			continue
		}
		if ch.Permission != "" && !m.perm(recipient, ch.Permission) {
			if err := m.data.Unsubscribe(ctx, id, ch.Handle); err != nil {
				m.log.Warn().Err(err).Str("channel", ch.Handle).Msg("failed to drop stale subscription")
			}
			if u := m.users.Get(id); u != nil {
				u.Unsubscribe(ch.Handle)
			}
			continue
		}
		if id != from {
			u := m.users.Get(id)
			if u != nil {
				if !u.HasChatEnabled(user.ChatTypePublic) && !bypassDisabled {
					continue
				}
				if u.IsIgnored(from) && !bypassIgnore {
					continue
				}
			}
		}
		recipient.Send(from, c)
	}

	// Talking in a channel does not require listening to it.
	if !seenSender {
		if sender := m.roster.Get(from); sender != nil {
			sender.Send(from, c)
		}
	}
}

// SendPrivateMessage routes a private message from a local player. If
// the target is on this server it is delivered directly; otherwise the
// message is relayed to whichever server hosts them.
func (m *Manager) SendPrivateMessage(ctx context.Context, from *player.Player, targetName, message string) {
	bypassIgnore := m.perm(from, m.cfg.Permissions.BypassIgnore)
	bypassDisabled := m.perm(from, m.cfg.Permissions.BypassDisabledPrivate)

	if target := m.roster.GetByName(targetName); target != nil {
		if tu := m.users.Get(target.ID); tu != nil {
			if !tu.HasChatEnabled(user.ChatTypePrivate) && !bypassDisabled {
				from.Send(uuid.Nil, m.catalog.PMDisabledByTarget().Compile("%user%", target.Name))
				return
			}
			if tu.IsIgnored(from.ID) && !bypassIgnore {
				from.Send(uuid.Nil, m.catalog.PMIgnoredByTarget().Compile("%user%", target.Name))
				return
			}
			tu.SetLastMessaged(from.Name)
		}
		rendered := renderPrivate(from.Name, target.Name, message)
		target.Send(from.ID, rendered)
		from.Send(from.ID, rendered)
		m.rememberLastMessaged(from.ID, target.Name)
		m.logPrivateChat(ctx, from, target.Name, message)
		return
	}

	if _, err := m.data.PlayerServer(ctx, targetName); err != nil {
		if errors.Is(err, sync.ErrNotFound) {
			from.Send(uuid.Nil, m.catalog.PMTargetOffline().Compile("%user%", targetName))
			return
		}
		// Lookup faulted; the target may well be online, so relay anyway.
		m.log.Warn().Err(err).Str("target", targetName).Msg("failed to locate private message target")
	}

	rendered := renderPrivate(from.Name, targetName, message)
	err := m.stream.PublishPrivateChat(ctx, &packet.PrivateChat{
		SenderID:          from.ID,
		SenderName:        from.Name,
		TargetName:        targetName,
		Message:           message,
		ServerIdentifier:  m.cfg.Server.Identifier,
		ServerDisplayName: m.cfg.Server.DisplayName,
		Component:         rendered,
		CanBypassIgnore:   bypassIgnore,
		CanBypassDisabled: bypassDisabled,
	})
	if err != nil {
		m.log.Warn().Err(err).Str("target", targetName).Msg("failed to relay private message")
		return
	}
	from.Send(from.ID, rendered)
	m.rememberLastMessaged(from.ID, targetName)
	m.logPrivateChat(ctx, from, targetName, message)
}

func renderPrivate(fromName, targetName, message string) component.Component {
	return component.Text("[" + fromName + " -> " + targetName + "] " + message)
}

func (m *Manager) rememberLastMessaged(id uuid.UUID, targetName string) {
	if u := m.users.Get(id); u != nil {
		u.SetLastMessaged(targetName)
	}
}

func (m *Manager) logPrivateChat(ctx context.Context, from *player.Player, targetName, message string) {
	err := m.store.LogPrivateChat(ctx, store.PrivateChatLog{
		SenderID:   from.ID,
		SenderName: from.Name,
		TargetName: targetName,
		Message:    message,
		At:         time.Now(),
	})
	if err != nil {
		m.log.Warn().Err(err).Msg("failed to log private message")
	}
}

// Broadcast delivers a server announcement to every player on the
// network.
func (m *Manager) Broadcast(ctx context.Context, message string) {
	rendered := m.catalog.BroadcastWrapper().Compile("%message%", message)
	for _, recipient := range m.roster.All() {
		recipient.Send(uuid.Nil, rendered)
	}
	err := m.stream.PublishBroadcast(ctx, &packet.Broadcast{
		ServerIdentifier:  m.cfg.Server.Identifier,
		ServerDisplayName: m.cfg.Server.DisplayName,
		Component:         rendered,
	})
	if err != nil {
		m.log.Warn().Err(err).Msg("failed to relay broadcast")
	}
}

// JoinChannel makes a channel the player's current one, subscribing
// them if needed.
func (m *Manager) JoinChannel(ctx context.Context, p *player.Player, handle string) {
	ch, ok := m.requireChannel(p, handle)
	if !ok {
		return
	}
	if err := m.data.Subscribe(ctx, p.ID, ch.Handle); err != nil {
		m.log.Warn().Err(err).Str("channel", ch.Handle).Msg("failed to subscribe to channel")
	}
	if err := m.data.SetCurrentChannel(ctx, p.ID, ch.Handle); err != nil {
		m.log.Warn().Err(err).Str("channel", ch.Handle).Msg("failed to set current channel")
	}
	if u := m.users.Get(p.ID); u != nil {
		u.Subscribe(ch.Handle)
	}
	p.Send(uuid.Nil, m.catalog.ChannelJoin().Compile("%channel%", ch.Handle))
}

// LeaveChannel routes the player's outgoing messages back to global
// chat. They keep listening to the channel.
func (m *Manager) LeaveChannel(ctx context.Context, p *player.Player, handle string) {
	if err := m.data.SetCurrentChannel(ctx, p.ID, ""); err != nil {
		m.log.Warn().Err(err).Str("channel", handle).Msg("failed to clear current channel")
	}
	p.Send(uuid.Nil, m.catalog.ChannelLeave().Compile("%channel%", strings.ToLower(handle)))
}

// ListenChannel subscribes the player to a channel without switching
// their current channel to it.
func (m *Manager) ListenChannel(ctx context.Context, p *player.Player, handle string) {
	ch, ok := m.requireChannel(p, handle)
	if !ok {
		return
	}
	if err := m.data.Subscribe(ctx, p.ID, ch.Handle); err != nil {
		m.log.Warn().Err(err).Str("channel", ch.Handle).Msg("failed to subscribe to channel")
	}
	if u := m.users.Get(p.ID); u != nil {
		u.Subscribe(ch.Handle)
	}
	p.Send(uuid.Nil, m.catalog.ChannelListen().Compile("%channel%", ch.Handle))
}

// MuteChannel unsubscribes the player from a channel. If it was their
// current channel they fall back to global chat too.
func (m *Manager) MuteChannel(ctx context.Context, p *player.Player, handle string) {
	handle = strings.ToLower(handle)
	if err := m.data.Unsubscribe(ctx, p.ID, handle); err != nil {
		m.log.Warn().Err(err).Str("channel", handle).Msg("failed to unsubscribe from channel")
	}
	if u := m.users.Get(p.ID); u != nil {
		u.Unsubscribe(handle)
	}
	current, err := m.data.CurrentChannel(ctx, p.ID)
	if err == nil && current == handle {
		m.clearCurrentChannel(ctx, p.ID, handle)
	}
	p.Send(uuid.Nil, m.catalog.ChannelMute().Compile("%channel%", handle))
}

func (m *Manager) requireChannel(p *player.Player, handle string) (channel.Channel, bool) {
	ch, ok := m.channels.Get(handle)
	if !ok {
		p.Send(uuid.Nil, m.catalog.ChannelInvalid().Compile("%channel%", strings.ToLower(handle)))
		return channel.Channel{}, false
	}
	if ch.Permission != "" && !m.perm(p, ch.Permission) {
		p.Send(uuid.Nil, m.catalog.ChannelAccessDenied().Compile("%channel%", ch.Handle))
		return channel.Channel{}, false
	}
	return ch, true
}

// HandleRemoteChat delivers a chat event that arrived from another
// server. The sender's bypass flags were resolved on their server and
// are trusted as-is.
func (m *Manager) HandleRemoteChat(p *packet.Chat) {
	if p.Channel != "" {
		if ch, ok := m.channels.Get(p.Channel); ok {
			m.deliverChannel(context.Background(), p.SenderID, ch, p.Component, p.CanBypassIgnore, p.CanBypassDisabled)
			return
		}
		// Unknown channel here; the message still reaches its local
		// subscribers, if any, as global-filtered delivery.
	}
	m.deliverGlobal(p.SenderID, p.Component, p.CanBypassIgnore, p.CanBypassDisabled)
}

// HandleRemotePrivateChat delivers a private message that arrived from
// another server, applying the target's ignore and disabled state. If
// delivery is refused, a system bounce with a nil sender carries the
// refusal back to the sender's server.
func (m *Manager) HandleRemotePrivateChat(p *packet.PrivateChat) {
	ctx := context.Background()

	if p.SenderID == uuid.Nil {
		// Bounce from the target's server; TargetName is the original
		// sender.
		if original := m.roster.GetByName(p.TargetName); original != nil {
			original.Send(uuid.Nil, p.Component)
		}
		return
	}

	target := m.roster.GetByName(p.TargetName)
	if target == nil {
		// Target moved servers between lookup and delivery. Nothing to
		// do here.
		return
	}
	if tu := m.users.Get(target.ID); tu != nil {
		if !tu.HasChatEnabled(user.ChatTypePrivate) && !p.CanBypassDisabled {
			m.bounce(ctx, p.SenderName, m.catalog.PMDisabledByTarget().Compile("%user%", target.Name))
			return
		}
		if tu.IsIgnored(p.SenderID) && !p.CanBypassIgnore {
			m.bounce(ctx, p.SenderName, m.catalog.PMIgnoredByTarget().Compile("%user%", target.Name))
			return
		}
		tu.SetLastMessaged(p.SenderName)
	}
	target.Send(p.SenderID, p.Component)
}

// bounce publishes a system refusal back toward the original sender's
// server.
func (m *Manager) bounce(ctx context.Context, senderName string, c component.Component) {
	err := m.stream.PublishPrivateChat(ctx, &packet.PrivateChat{
		SenderID:          uuid.Nil,
		SenderName:        "",
		TargetName:        senderName,
		ServerIdentifier:  m.cfg.Server.Identifier,
		ServerDisplayName: m.cfg.Server.DisplayName,
		Component:         c,
	})
	if err != nil {
		m.log.Warn().Err(err).Str("target", senderName).Msg("failed to relay private message refusal")
	}
}

// HandleRemoteBroadcast delivers a network broadcast to every local
// player.
func (m *Manager) HandleRemoteBroadcast(p *packet.Broadcast) {
	for _, recipient := range m.roster.All() {
		recipient.Send(uuid.Nil, p.Component)
	}
}
