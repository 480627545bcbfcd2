package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/spaceseries/spacechat/internal/channel"
	"github.com/spaceseries/spacechat/internal/chat"
	"github.com/spaceseries/spacechat/internal/config"
	"github.com/spaceseries/spacechat/internal/messages"
	"github.com/spaceseries/spacechat/internal/player"
	"github.com/spaceseries/spacechat/internal/store"
	"github.com/spaceseries/spacechat/internal/store/sqlite"
	"github.com/spaceseries/spacechat/internal/sync"
	"github.com/spaceseries/spacechat/internal/user"
)

const shutdownTimeout = 10 * time.Second

// App wires together the storage, chat and sync layers.
type App struct {
	cfg      *config.Config
	log      *zerolog.Logger
	store    store.Store
	roster   *player.Roster
	users    *user.Manager
	channels *channel.Registry
	catalog  *messages.Catalog
	chat     *chat.Manager
	sync     *sync.Manager
}

// New constructs the application with the provided configuration. The
// permission function comes from the embedding game layer; a nil one
// denies every node, which keeps bypass permissions off and restricted
// channels closed.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger, perm player.PermissionFunc) (*App, error) {
	st, err := sqlite.New(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.Storage.Path).Msg("database initialized")

	if perm == nil {
		perm = func(*player.Player, string) bool { return false }
	}

	roster := player.NewRoster()
	channels := channel.NewRegistry(cfg.Channels)
	catalog := messages.Load(cfg.Messages)
	users := user.NewManager(st, logger)
	chatMgr := chat.NewManager(cfg, roster, channels, users, catalog, st, perm, logger)

	// The chat manager handles inbound sync events, so the sync layer is
	// built around it and bound back afterwards.
	syncMgr, err := sync.NewManager(ctx, cfg, roster, chatMgr, logger)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("init sync: %w", err)
	}
	chatMgr.BindSync(syncMgr.Data(), syncMgr.Stream())
	users.BindData(syncMgr.Data())

	logger.Info().Bool("network", syncMgr.UsingNetwork()).Msg("sync layer initialized")

	return &App{
		cfg:      cfg,
		log:      logger,
		store:    st,
		roster:   roster,
		users:    users,
		channels: channels,
		catalog:  catalog,
		chat:     chatMgr,
		sync:     syncMgr,
	}, nil
}

// Chat exposes the chat manager to the embedding game layer.
func (a *App) Chat() *chat.Manager { return a.chat }

// Users exposes the user manager.
func (a *App) Users() *user.Manager { return a.users }

// Roster exposes the local player roster.
func (a *App) Roster() *player.Roster { return a.roster }

// Sync exposes the sync manager.
func (a *App) Sync() *sync.Manager { return a.sync }

// Reload applies a freshly loaded configuration to the pieces that
// support it.
func (a *App) Reload(cfg *config.Config) {
	a.channels.Reload(cfg.Channels)
	a.catalog.Reload(cfg.Messages)
	a.log.Info().Msg("configuration reloaded")
}

// Run blocks until the context is cancelled, then tears the
// application down.
func (a *App) Run(ctx context.Context) error {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.log.Info().Msg("shutting down")

	// Flush every online player so profiles are saved and presence
	// records are released before the sync layer goes away.
	for _, p := range a.roster.All() {
		if err := a.chat.OnQuit(shutdownCtx, p.ID); err != nil {
			a.log.Warn().Err(err).Str("player", p.Name).Msg("failed to flush player on shutdown")
		}
	}

	a.sync.End(shutdownCtx)

	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close store")
	} else {
		a.log.Info().Msg("store closed")
	}
	return nil
}
