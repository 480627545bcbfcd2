package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envConfigDefaultPath = "SPACECHAT_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "config.yaml"
)

// Load builds configuration from defaults, optional config file, env vars, and returns the resolved path.
// Precedence: defaults < config file < env vars.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	v.SetEnvPrefix("SPACECHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if writeErr := writeDefaultConfig(configPath, cfg); writeErr != nil && logger != nil {
				logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
			} else if logger != nil {
				logger.Info().Str("path", configPath).Msg("created default config")
			}
			// try reading again in case it was just written
			if readErr := v.ReadInConfig(); readErr != nil && logger != nil {
				logger.Warn().Err(readErr).Str("path", configPath).Msg("failed to read config after writing default")
			}
		} else {
			return cfg, configPath, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, configPath, nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("server.identifier", cfg.Server.Identifier)
	v.SetDefault("server.display_name", cfg.Server.DisplayName)
	v.SetDefault("storage.path", cfg.Storage.Path)
	v.SetDefault("redis.enabled", cfg.Redis.Enabled)
	v.SetDefault("redis.url", cfg.Redis.URL)
	v.SetDefault("redis.chat_channel", cfg.Redis.ChatChannel)
	v.SetDefault("redis.private_chat_channel", cfg.Redis.PrivateChatChannel)
	v.SetDefault("redis.broadcast_channel", cfg.Redis.BroadcastChannel)
	v.SetDefault("redis.player_subscribed_channels_list_key", cfg.Redis.PlayerSubscribedChannelsKey)
	v.SetDefault("redis.player_current_channel_key", cfg.Redis.PlayerCurrentChannelKey)
	v.SetDefault("redis.channels_subscribed_uuids_list_key", cfg.Redis.ChannelSubscribersKey)
	v.SetDefault("redis.online_players_server_key", cfg.Redis.OnlinePlayersServerKey)
	v.SetDefault("redis.online_players_list_key", cfg.Redis.OnlinePlayersKey)
	v.SetDefault("permissions.bypass_ignore", cfg.Permissions.BypassIgnore)
	v.SetDefault("permissions.bypass_disabled_public_chat", cfg.Permissions.BypassDisabledPublic)
	v.SetDefault("permissions.bypass_disabled_private_chat", cfg.Permissions.BypassDisabledPrivate)
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
