package timeevent

import (
	"context"
	"fmt"
	"sync"

	"github.com/kestrelnet/ms2bot/internal/timeevent/api"
)

// GlobalPortalManager is the singleton tracking at most one active global
// portal (spec.md §3). Join is idempotent per entry index: concurrent
// calls for the same index must agree on a single roomId, enforced here by
// serializing the whole map behind one mutex rather than per-index
// compare-and-set, since the pack's concurrent-map idioms (archon's
// connectedShipsMutex) favor a single RWMutex over finer-grained locking.
type GlobalPortalManager struct {
	registry ChannelRegistry

	mu      sync.Mutex
	active  *GlobalPortal
	channel int32
	roomIDs map[int32]string
}

func NewGlobalPortalManager(registry ChannelRegistry) *GlobalPortalManager {
	return &GlobalPortalManager{registry: registry}
}

// SetActive installs a new active portal bound to channel, resetting any
// previously allocated rooms.
func (g *GlobalPortalManager) SetActive(portal GlobalPortal, channel int32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = &portal
	g.channel = channel
	g.roomIDs = make(map[int32]string)
}

// Active returns the active portal, if any.
func (g *GlobalPortalManager) Active() (GlobalPortal, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active == nil {
		return GlobalPortal{}, false
	}
	return *g.active, true
}

// Join consults roomIDs[index]; if absent, it dispatches a room-creation
// RPC to the portal's bound channel and stores the returned roomId
// (spec.md §4.5).
func (g *GlobalPortalManager) Join(ctx context.Context, index int32, mapID int32) (channel int32, roomID string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active == nil {
		return 0, "", fmt.Errorf("timeevent: no active global portal")
	}
	if roomID, ok := g.roomIDs[index]; ok {
		return g.channel, roomID, nil
	}

	target := g.findChannel(g.channel)
	if target == nil {
		return 0, "", fmt.Errorf("timeevent: global portal's channel %d is not registered", g.channel)
	}

	resp, err := target.Client.CreateGlobalPortalRoom(ctx, &api.CreateGlobalPortalRoomRequest{MapID: mapID, Index: index})
	if err != nil {
		return 0, "", fmt.Errorf("timeevent: creating global portal room: %w", err)
	}

	g.roomIDs[index] = resp.RoomID
	return g.channel, resp.RoomID, nil
}

func (g *GlobalPortalManager) findChannel(id int32) *GameChannel {
	for _, c := range g.registry.Channels() {
		if c.ID == id {
			return &c
		}
	}
	return nil
}
