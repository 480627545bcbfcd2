package sync

import (
	"context"
	"sort"
	"strings"
	gosync "sync"

	"github.com/google/uuid"

	"github.com/spaceseries/spacechat/internal/player"
)

// MemoryDataService backs the data contract with process-local maps. Correct
// only for single-server deployments; every operation is immediately
// consistent and none can fail.
type MemoryDataService struct {
	identifier string
	roster     *player.Roster

	mu            gosync.RWMutex
	subscriptions map[uuid.UUID]map[string]struct{}
	subscribers   map[string]map[uuid.UUID]struct{}
	current       map[uuid.UUID]string
	online        map[string]string // lowercased name -> name as registered
}

// NewMemoryDataService constructs the in-memory data backend.
func NewMemoryDataService(identifier string, roster *player.Roster) *MemoryDataService {
	return &MemoryDataService{
		identifier:    identifier,
		roster:        roster,
		subscriptions: make(map[uuid.UUID]map[string]struct{}),
		subscribers:   make(map[string]map[uuid.UUID]struct{}),
		current:       make(map[uuid.UUID]string),
		online:        make(map[string]string),
	}
}

// Subscribe adds the player/channel pair to both sides of the index.
func (s *MemoryDataService) Subscribe(_ context.Context, id uuid.UUID, channel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscriptions[id] == nil {
		s.subscriptions[id] = make(map[string]struct{})
	}
	s.subscriptions[id][channel] = struct{}{}
	if s.subscribers[channel] == nil {
		s.subscribers[channel] = make(map[uuid.UUID]struct{})
	}
	s.subscribers[channel][id] = struct{}{}
	return nil
}

// Unsubscribe removes the player/channel pair from both sides of the index.
func (s *MemoryDataService) Unsubscribe(_ context.Context, id uuid.UUID, channel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscriptions[id], channel)
	delete(s.subscribers[channel], id)
	return nil
}

// SetCurrentChannel overwrites or clears the player's current channel.
func (s *MemoryDataService) SetCurrentChannel(_ context.Context, id uuid.UUID, channel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if channel == "" {
		delete(s.current, id)
	} else {
		s.current[id] = channel
	}
	return nil
}

// SubscribedChannels returns the channels the player is subscribed to.
func (s *MemoryDataService) SubscribedChannels(_ context.Context, id uuid.UUID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	channels := make([]string, 0, len(s.subscriptions[id]))
	for c := range s.subscriptions[id] {
		channels = append(channels, c)
	}
	sort.Strings(channels)
	return channels, nil
}

// CurrentChannel returns the player's current channel, "" for global.
func (s *MemoryDataService) CurrentChannel(_ context.Context, id uuid.UUID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current[id], nil
}

// Subscribers returns the locally online players subscribed to the channel.
func (s *MemoryDataService) Subscribers(_ context.Context, channel string) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(s.subscribers[channel]))
	for id := range s.subscribers[channel] {
		if s.roster.IsOnline(id) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// AddPlayer records the player as online on this server.
func (s *MemoryDataService) AddPlayer(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online[strings.ToLower(username)] = username
	return nil
}

// RemovePlayer removes the player's presence record.
func (s *MemoryDataService) RemovePlayer(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.online, strings.ToLower(username))
	return nil
}

// SweepStalePlayers drops presence records for players no longer connected.
func (s *MemoryDataService) SweepStalePlayers(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, name := range s.online {
		if s.roster.GetByName(name) == nil {
			delete(s.online, key)
		}
	}
	return nil
}

// PlayerServer returns this server's identifier if the player is online here.
func (s *MemoryDataService) PlayerServer(_ context.Context, username string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.online[strings.ToLower(username)]; !ok {
		return "", ErrNotFound
	}
	return s.identifier, nil
}

// Players returns all known online player names.
func (s *MemoryDataService) Players(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.online))
	for _, name := range s.online {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
