// Package channel holds the registry of named chat channels players can join,
// leave, and mute. Channels are defined in configuration and reloaded with it.
package channel

import (
	"sort"
	"strings"
	"sync"

	"github.com/spaceseries/spacechat/internal/config"
)

// Channel is a named logical chat room.
type Channel struct {
	Handle     string
	Permission string
	Format     string
}

// Registry resolves channel handles to channel definitions.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel
}

// NewRegistry builds a registry from channel configuration.
func NewRegistry(cfg map[string]config.ChannelConfig) *Registry {
	r := &Registry{channels: make(map[string]Channel)}
	r.Reload(cfg)
	return r
}

// Reload replaces the channel set from configuration.
func (r *Registry) Reload(cfg map[string]config.ChannelConfig) {
	channels := make(map[string]Channel, len(cfg))
	for handle, c := range cfg {
		handle = strings.ToLower(handle)
		channels[handle] = Channel{
			Handle:     handle,
			Permission: c.Permission,
			Format:     c.Format,
		}
	}

	r.mu.Lock()
	r.channels = channels
	r.mu.Unlock()
}

// Get returns the channel with the given handle.
func (r *Registry) Get(handle string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.channels[strings.ToLower(handle)]
	return c, ok
}

// Handles returns the sorted handles of all known channels.
func (r *Registry) Handles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handles := make([]string, 0, len(r.channels))
	for h := range r.channels {
		handles = append(handles, h)
	}
	sort.Strings(handles)
	return handles
}
