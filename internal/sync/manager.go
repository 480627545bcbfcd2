package sync

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/spaceseries/spacechat/internal/config"
	applog "github.com/spaceseries/spacechat/internal/log"
	"github.com/spaceseries/spacechat/internal/player"
)

// Manager is the composition root for the sync layer. It picks the backend
// from configuration once at construction, wires the data and stream services
// together, and owns their lifecycle.
type Manager struct {
	usingNetwork bool
	data         DataService
	stream       StreamService
	client       *redis.Client
	log          zerolog.Logger
}

// NewManager builds both services for the configured mode, starts the stream
// service, and sweeps stale presence left behind by a prior unclean shutdown.
// The sweep must complete before any join logic reuses presence state. An
// unparsable Redis address is fatal; the in-memory mode cannot fail.
func NewManager(ctx context.Context, cfg *config.Config, roster *player.Roster, handler Handler, logger *zerolog.Logger) (*Manager, error) {
	log := applog.Component(logger, "sync")

	m := &Manager{log: log}
	if cfg.Redis.Enabled {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		m.client = redis.NewClient(opts)
		m.data = NewRedisDataService(m.client, cfg.Redis, cfg.Server.Identifier, roster, log)
		m.stream = NewRedisStreamService(m.client, cfg.Redis, cfg.Server.Identifier, handler, log)
		m.usingNetwork = true
		log.Info().Str("identifier", cfg.Server.Identifier).Msg("sync layer using redis backend")
	} else {
		m.data = NewMemoryDataService(cfg.Server.Identifier, roster)
		m.stream = NewMemoryStreamService(cfg.Server.Identifier, handler, log)
		log.Info().Msg("sync layer using in-memory backend")
	}

	if err := m.stream.Start(ctx); err != nil {
		m.closeClient()
		return nil, fmt.Errorf("start stream service: %w", err)
	}

	if err := m.data.SweepStalePlayers(ctx); err != nil {
		// Stale entries degrade routing but are not fatal; the next sweep
		// gets another chance.
		log.Warn().Err(err).Msg("startup presence sweep failed")
	}

	return m, nil
}

// UsingNetwork reports whether the network backend is active.
func (m *Manager) UsingNetwork() bool { return m.usingNetwork }

// Data returns the data service.
func (m *Manager) Data() DataService { return m.data }

// Stream returns the stream service.
func (m *Manager) Stream() StreamService { return m.stream }

// End vacates this server's presence records, stops the stream service, and
// releases the network client.
func (m *Manager) End(ctx context.Context) {
	if err := m.data.SweepStalePlayers(ctx); err != nil {
		m.log.Warn().Err(err).Msg("shutdown presence sweep failed")
	}
	if err := m.stream.End(); err != nil {
		m.log.Warn().Err(err).Msg("stopping stream service failed")
	}
	m.closeClient()
}

func (m *Manager) closeClient() {
	if m.client == nil {
		return
	}
	if err := m.client.Close(); err != nil {
		m.log.Warn().Err(err).Msg("closing redis client failed")
	}
}
