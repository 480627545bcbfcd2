package user

import (
	"context"
	"errors"
	"strings"
	gosync "sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/spaceseries/spacechat/internal/log"
	"github.com/spaceseries/spacechat/internal/store"
	"github.com/spaceseries/spacechat/internal/sync"
)

// Manager loads user profiles from storage on join, keeps them cached
// while the player is online, and flushes them back on quit.
type Manager struct {
	store store.Store
	log   zerolog.Logger

	mu    gosync.RWMutex
	cache map[uuid.UUID]*User

	data sync.DataService
}

// NewManager returns a manager backed by the given store. The data
// service is bound later, once the sync layer exists.
func NewManager(st store.Store, logger *zerolog.Logger) *Manager {
	return &Manager{
		store: st,
		log:   log.Component(logger, "user"),
		cache: make(map[uuid.UUID]*User),
	}
}

// BindData attaches the shared-state service used for join-time
// subscription reconciliation.
func (m *Manager) BindData(data sync.DataService) {
	m.data = data
}

// Get returns the cached profile for an online player, or nil.
func (m *Manager) Get(id uuid.UUID) *User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cache[id]
}

// GetByName returns the cached profile whose username matches,
// case-insensitively, or nil.
func (m *Manager) GetByName(username string) *User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.cache {
		if strings.EqualFold(u.Username, username) {
			return u
		}
	}
	return nil
}

// Load fetches the player's profile from storage, creating one on
// first sight, caches it and reconciles the shared channel state with
// what the profile remembers.
func (m *Manager) Load(ctx context.Context, id uuid.UUID, username string) (*User, error) {
	stored, err := m.store.LoadUser(ctx, id)
	var u *User
	switch {
	case err == nil:
		u = fromStored(stored)
		// Usernames change; the profile follows the live one.
		u.Username = username
	case errors.Is(err, store.ErrNotFound):
		u = New(id, username)
	default:
		return nil, err
	}

	m.mu.Lock()
	m.cache[id] = u
	m.mu.Unlock()

	if err := m.reconcile(ctx, u); err != nil {
		m.log.Warn().Err(err).Str("player", username).Msg("failed to reconcile channel subscriptions")
	}
	return u, nil
}

// Save writes the profile through to storage without evicting it.
func (m *Manager) Save(ctx context.Context, u *User) error {
	return m.store.SaveUser(ctx, toStored(u))
}

// Invalidate flushes the profile to storage and drops it from the
// cache. Called when the player disconnects.
func (m *Manager) Invalidate(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	u := m.cache[id]
	delete(m.cache, id)
	m.mu.Unlock()

	if u == nil {
		return nil
	}
	return m.store.SaveUser(ctx, toStored(u))
}

// reconcile makes the shared channel state agree with the durable
// profile: channels the profile remembers are subscribed, channels the
// shared state has but the profile does not are dropped.
func (m *Manager) reconcile(ctx context.Context, u *User) error {
	if m.data == nil {
		return nil
	}

	shared, err := m.data.SubscribedChannels(ctx, u.ID)
	if err != nil {
		return err
	}
	remembered := u.SubscribedChannels()
	want := make(map[string]struct{}, len(remembered))
	for _, c := range remembered {
		want[c] = struct{}{}
	}
	have := make(map[string]struct{}, len(shared))
	for _, c := range shared {
		have[strings.ToLower(c)] = struct{}{}
	}

	for c := range want {
		if _, ok := have[c]; ok {
			continue
		}
		if err := m.data.Subscribe(ctx, u.ID, c); err != nil {
			return err
		}
	}
	for c := range have {
		if _, ok := want[c]; ok {
			continue
		}
		if err := m.data.Unsubscribe(ctx, u.ID, c); err != nil {
			return err
		}
	}
	return nil
}

func fromStored(s *store.User) *User {
	u := &User{
		ID:            s.ID,
		Username:      s.Username,
		Created:       s.Created,
		lastMessaged:  s.LastMessaged,
		disabledChats: make(map[string]struct{}, len(s.DisabledChats)),
		ignored:       make(map[uuid.UUID]string, len(s.Ignored)),
	}
	for _, ct := range s.DisabledChats {
		u.disabledChats[ct] = struct{}{}
	}
	for id, name := range s.Ignored {
		u.ignored[id] = name
	}
	for _, c := range s.SubscribedChannels {
		u.Subscribe(c)
	}
	return u
}

func toStored(u *User) *store.User {
	return &store.User{
		ID:                 u.ID,
		Username:           u.Username,
		Created:            u.Created,
		LastMessaged:       u.LastMessaged(),
		DisabledChats:      u.DisabledChats(),
		SubscribedChannels: u.SubscribedChannels(),
		Ignored:            u.Ignored(),
	}
}
