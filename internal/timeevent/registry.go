// Package timeevent implements the server-side time-event dispatcher (C5):
// field-boss lifecycle and global-portal coordination across game
// channels. Grounded directly on dcrodman-archon's internal/shipgate
// package: Registry mirrors service.connectedShips/connectedShipsMutex
// (internal/shipgate/service.go), and Serve/ChannelClient mirror
// shipgate.go's bootstrap and client.go's RPC wrapper shape.
package timeevent

import (
	"sync"

	"github.com/kestrelnet/ms2bot/internal/timeevent/api"
)

// GameChannel is one registered game-channel peer: its numeric ID plus the
// client used to broadcast notifications and room-creation requests to it.
type GameChannel struct {
	ID     int32
	Client api.GameChannelServiceClient
}

// ChannelRegistry is the subset of Registry that FieldBossManager and
// GlobalPortalManager depend on, so tests can supply a fake.
type ChannelRegistry interface {
	Channels() []GameChannel
}

// Registry tracks connected game channels. A channel is removed only by
// Deregister; a broadcast that fails for a channel logs the failure and
// skips it, leaving it registered.
type Registry struct {
	mu       sync.RWMutex
	channels map[int32]GameChannel
}

func NewRegistry() *Registry {
	return &Registry{channels: make(map[int32]GameChannel)}
}

// Register installs or replaces the client for channel id.
func (r *Registry) Register(id int32, client api.GameChannelServiceClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[id] = GameChannel{ID: id, Client: client}
}

func (r *Registry) Deregister(id int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.channels, id)
}

func (r *Registry) Channels() []GameChannel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]GameChannel, 0, len(r.channels))
	for _, c := range r.channels {
		out = append(out, c)
	}
	return out
}
