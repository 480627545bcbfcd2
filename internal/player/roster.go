package player

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Roster is the set of players currently connected to this process. Lookups by
// name are case-insensitive.
type Roster struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]*Player
	byName map[string]*Player
}

// NewRoster constructs an empty roster.
func NewRoster() *Roster {
	return &Roster{
		byID:   make(map[uuid.UUID]*Player),
		byName: make(map[string]*Player),
	}
}

// Add registers a player. A player reconnecting under the same id replaces the
// previous entry.
func (r *Roster) Add(p *Player) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.byID[p.ID]; ok {
		delete(r.byName, strings.ToLower(prev.Name))
	}
	r.byID[p.ID] = p
	r.byName[strings.ToLower(p.Name)] = p
}

// Remove unregisters a player by id.
func (r *Roster) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.byID[id]; ok {
		delete(r.byName, strings.ToLower(p.Name))
		delete(r.byID, id)
	}
}

// Get returns the player with the given id, or nil.
func (r *Roster) Get(id uuid.UUID) *Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// GetByName returns the player with the given name, or nil.
func (r *Roster) GetByName(name string) *Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[strings.ToLower(name)]
}

// IsOnline reports whether the player is connected to this process.
func (r *Roster) IsOnline(id uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[id]
	return ok
}

// All returns a snapshot of every connected player.
func (r *Roster) All() []*Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	players := make([]*Player, 0, len(r.byID))
	for _, p := range r.byID {
		players = append(players, p)
	}
	return players
}

// Names returns a snapshot of every connected player's name.
func (r *Roster) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byID))
	for _, p := range r.byID {
		names = append(names, p.Name)
	}
	return names
}
