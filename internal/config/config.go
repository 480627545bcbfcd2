package config

import (
	"strings"

	"github.com/google/uuid"
)

// Config holds server configuration values.
type Config struct {
	LogLevel    string                   `mapstructure:"log_level" yaml:"log_level"`
	Server      ServerConfig             `mapstructure:"server" yaml:"server"`
	Storage     StorageConfig            `mapstructure:"storage" yaml:"storage"`
	Redis       RedisConfig              `mapstructure:"redis" yaml:"redis"`
	Permissions PermissionsConfig        `mapstructure:"permissions" yaml:"permissions"`
	Channels    map[string]ChannelConfig `mapstructure:"channels" yaml:"channels"`
	Messages    map[string]string        `mapstructure:"messages" yaml:"messages"`
}

// ServerConfig identifies this process within the proxy network.
type ServerConfig struct {
	Identifier  string `mapstructure:"identifier" yaml:"identifier"`
	DisplayName string `mapstructure:"display_name" yaml:"display_name"`
}

// StorageConfig configures the persistent user/log store.
type StorageConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// RedisConfig configures the network sync backend. When Enabled is false the
// in-memory backend is used and none of the other fields are consulted.
type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"url"`

	ChatChannel        string `mapstructure:"chat_channel" yaml:"chat_channel"`
	PrivateChatChannel string `mapstructure:"private_chat_channel" yaml:"private_chat_channel"`
	BroadcastChannel   string `mapstructure:"broadcast_channel" yaml:"broadcast_channel"`

	PlayerSubscribedChannelsKey string `mapstructure:"player_subscribed_channels_list_key" yaml:"player_subscribed_channels_list_key"`
	PlayerCurrentChannelKey     string `mapstructure:"player_current_channel_key" yaml:"player_current_channel_key"`
	ChannelSubscribersKey       string `mapstructure:"channels_subscribed_uuids_list_key" yaml:"channels_subscribed_uuids_list_key"`
	OnlinePlayersServerKey      string `mapstructure:"online_players_server_key" yaml:"online_players_server_key"`
	OnlinePlayersKey            string `mapstructure:"online_players_list_key" yaml:"online_players_list_key"`
}

// PermissionsConfig names the permission nodes the sync layer resolves at
// publish time.
type PermissionsConfig struct {
	BypassIgnore          string `mapstructure:"bypass_ignore" yaml:"bypass_ignore"`
	BypassDisabledPublic  string `mapstructure:"bypass_disabled_public_chat" yaml:"bypass_disabled_public_chat"`
	BypassDisabledPrivate string `mapstructure:"bypass_disabled_private_chat" yaml:"bypass_disabled_private_chat"`
}

// ChannelConfig describes one logical chat channel.
type ChannelConfig struct {
	Permission string `mapstructure:"permission" yaml:"permission"`
	Format     string `mapstructure:"format" yaml:"format"`
}

// SubscribedChannelsKeyFor expands the %uuid% placeholder in the
// player-subscribed-channels key template.
func (c RedisConfig) SubscribedChannelsKeyFor(id uuid.UUID) string {
	return strings.ReplaceAll(c.PlayerSubscribedChannelsKey, "%uuid%", id.String())
}

// CurrentChannelKeyFor expands the %uuid% placeholder in the current-channel
// key template.
func (c RedisConfig) CurrentChannelKeyFor(id uuid.UUID) string {
	return strings.ReplaceAll(c.PlayerCurrentChannelKey, "%uuid%", id.String())
}

// ChannelSubscribersKeyFor expands the %channel% placeholder in the
// channel-subscribers key template.
func (c RedisConfig) ChannelSubscribersKeyFor(handle string) string {
	return strings.ReplaceAll(c.ChannelSubscribersKey, "%channel%", handle)
}

// PlayerServerKeyFor expands the %username% placeholder in the online-player
// server key template. Usernames are lowercased so lookups are case-insensitive.
func (c RedisConfig) PlayerServerKeyFor(username string) string {
	return strings.ReplaceAll(c.OnlinePlayersServerKey, "%username%", strings.ToLower(username))
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		LogLevel: "info",
		Server: ServerConfig{
			Identifier:  "server",
			DisplayName: "Server",
		},
		Storage: StorageConfig{
			Path: "spacechat.db",
		},
		Redis: RedisConfig{
			Enabled:                     false,
			URL:                         "redis://localhost:6379/0",
			ChatChannel:                 "spacechat:chat",
			PrivateChatChannel:          "spacechat:privatechat",
			BroadcastChannel:            "spacechat:broadcast",
			PlayerSubscribedChannelsKey: "spacechat:player:%uuid%:subscribedchannels",
			PlayerCurrentChannelKey:     "spacechat:player:%uuid%:currentchannel",
			ChannelSubscribersKey:       "spacechat:channel:%channel%:subscribed",
			OnlinePlayersServerKey:      "spacechat:onlineplayer:%username%:server",
			OnlinePlayersKey:            "spacechat:onlineplayers",
		},
		Permissions: PermissionsConfig{
			BypassIgnore:          "spacechat.bypass.ignore",
			BypassDisabledPublic:  "spacechat.bypass.disabled.public",
			BypassDisabledPrivate: "spacechat.bypass.disabled.private",
		},
		Channels: map[string]ChannelConfig{},
		Messages: map[string]string{},
	}
}
