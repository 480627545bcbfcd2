// Package messages holds the localized message templates the chat layer sends
// on its own behalf. The catalog is an explicitly owned object handed to the
// components that need it and reloadable in place; there is no package-level
// state.
package messages

import (
	"strings"
	"sync"

	"github.com/spaceseries/spacechat/internal/component"
)

// Template is a message with %placeholder% slots.
type Template string

// Compile substitutes placeholder/value pairs and wraps the result in a
// component.
func (t Template) Compile(pairs ...string) component.Component {
	return component.Text(strings.NewReplacer(pairs...).Replace(string(t)))
}

const (
	defaultChatDisabled        = "You have public chat disabled."
	defaultPMDisabledByTarget  = "%user% has private messages disabled."
	defaultPMIgnoredByTarget   = "%user% has you ignored."
	defaultPMTargetOffline     = "%user% is not online."
	defaultChannelJoin         = "You are now talking in %channel%."
	defaultChannelLeave        = "You are no longer talking in %channel%."
	defaultChannelListen       = "You are now listening to %channel%."
	defaultChannelMute         = "You are no longer listening to %channel%."
	defaultChannelInvalid      = "The channel %channel% does not exist."
	defaultChannelAccessDenied = "You do not have access to %channel%."
	defaultBroadcastWrapper    = "[Broadcast] %message%"
)

// Catalog is the set of templates the sync layer uses.
type Catalog struct {
	mu sync.RWMutex

	chatDisabled        Template
	pmDisabledByTarget  Template
	pmIgnoredByTarget   Template
	pmTargetOffline     Template
	channelJoin         Template
	channelLeave        Template
	channelListen       Template
	channelMute         Template
	channelInvalid      Template
	channelAccessDenied Template
	broadcastWrapper    Template
}

// Load builds a catalog from the messages section of the configuration,
// falling back to defaults for absent keys.
func Load(cfg map[string]string) *Catalog {
	c := &Catalog{}
	c.Reload(cfg)
	return c
}

// Reload replaces every template from configuration.
func (c *Catalog) Reload(cfg map[string]string) {
	pick := func(key, fallback string) Template {
		if v, ok := cfg[key]; ok && v != "" {
			return Template(v)
		}
		return Template(fallback)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.chatDisabled = pick("chat_disabled", defaultChatDisabled)
	c.pmDisabledByTarget = pick("pm_disabled_by_target", defaultPMDisabledByTarget)
	c.pmIgnoredByTarget = pick("pm_ignored_by_target", defaultPMIgnoredByTarget)
	c.pmTargetOffline = pick("pm_target_offline", defaultPMTargetOffline)
	c.channelJoin = pick("channel_join", defaultChannelJoin)
	c.channelLeave = pick("channel_leave", defaultChannelLeave)
	c.channelListen = pick("channel_listen", defaultChannelListen)
	c.channelMute = pick("channel_mute", defaultChannelMute)
	c.channelInvalid = pick("channel_invalid", defaultChannelInvalid)
	c.channelAccessDenied = pick("channel_access_denied", defaultChannelAccessDenied)
	c.broadcastWrapper = pick("broadcast_wrapper", defaultBroadcastWrapper)
}

// ChatDisabled is sent when a player with public chat disabled tries to talk.
func (c *Catalog) ChatDisabled() Template { return c.get(&c.chatDisabled) }

// PMDisabledByTarget is sent when a private message hits a player with
// private chat disabled.
func (c *Catalog) PMDisabledByTarget() Template { return c.get(&c.pmDisabledByTarget) }

// PMIgnoredByTarget is sent when a private message hits a player ignoring the
// sender.
func (c *Catalog) PMIgnoredByTarget() Template { return c.get(&c.pmIgnoredByTarget) }

// PMTargetOffline is sent when a private message target is offline everywhere.
func (c *Catalog) PMTargetOffline() Template { return c.get(&c.pmTargetOffline) }

// ChannelJoin confirms switching the current channel.
func (c *Catalog) ChannelJoin() Template { return c.get(&c.channelJoin) }

// ChannelLeave confirms returning to global chat.
func (c *Catalog) ChannelLeave() Template { return c.get(&c.channelLeave) }

// ChannelListen confirms subscribing to a channel.
func (c *Catalog) ChannelListen() Template { return c.get(&c.channelListen) }

// ChannelMute confirms unsubscribing from a channel.
func (c *Catalog) ChannelMute() Template { return c.get(&c.channelMute) }

// ChannelInvalid reports an unknown channel handle.
func (c *Catalog) ChannelInvalid() Template { return c.get(&c.channelInvalid) }

// ChannelAccessDenied reports a missing channel permission.
func (c *Catalog) ChannelAccessDenied() Template { return c.get(&c.channelAccessDenied) }

// BroadcastWrapper wraps broadcast text when the lang wrapper is enabled.
func (c *Catalog) BroadcastWrapper() Template { return c.get(&c.broadcastWrapper) }

func (c *Catalog) get(t *Template) Template {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return *t
}
