package room

import (
	"context"
	"sync"

	"github.com/huddlecore/signaling/internal/v1/logging"
	"github.com/huddlecore/signaling/internal/v1/metrics"
	"go.uber.org/zap"
)

// Registry is the process-wide channelId -> Room map of spec.md §4.2,
// grounded on the teacher's Hub (internal/v1/transport/hub.go): a mutex
// guarding the map plus a per-room empty-room grace timer so a client
// reconnecting within the window doesn't pay for a fresh Room and producer
// table churn.
type Registry struct {
	mu        sync.Mutex
	rooms     map[string]*Room
	cfg       Config
	isDrain   bool
}

// ChannelID composes spec.md §3's channelId = clientNamespace + "/" + roomId,
// ensuring clients in distinct tenant namespaces never collide on the same
// Room even if they pick the same human-chosen roomId.
func ChannelID(clientNamespace, roomID string) string {
	return clientNamespace + "/" + roomID
}

// NewRegistry constructs an empty Registry.
func NewRegistry(cfg Config) *Registry {
	return &Registry{rooms: make(map[string]*Room), cfg: cfg}
}

// GetOrCreateRoom implements §4.2's getOrCreateRoom: never creates a second
// instance for the same channelId, serializing concurrent callers through
// the Registry's mutex.
func (reg *Registry) GetOrCreateRoom(channelID string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if r, ok := reg.rooms[channelID]; ok {
		return r
	}

	r := NewRoom(channelID, reg.cfg, reg.onRoomEmpty)
	reg.rooms[channelID] = r
	metrics.ActiveRooms.Inc()
	logging.Info(context.Background(), "room created", zap.String("room_id", channelID))
	return r
}

// Lookup returns an existing room without creating one.
func (reg *Registry) Lookup(channelID string) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rooms[channelID]
	return r, ok
}

// onRoomEmpty is the Room's onEmpty callback: re-checks emptiness (a
// reconnect may have landed between the timer firing and the lock being
// acquired) before actually deleting the room from the registry.
func (reg *Registry) onRoomEmpty(channelID string) {
	reg.CleanupRoom(channelID)
}

// CleanupRoom implements §4.2's cleanupRoom: destroys the room iff it has
// no clients and no pending clients, returning whether it did so.
func (reg *Registry) CleanupRoom(channelID string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	r, ok := reg.rooms[channelID]
	if !ok {
		return false
	}
	if !r.IsEmpty() {
		return false
	}
	r.Destroy("room empty")
	delete(reg.rooms, channelID)
	metrics.ActiveRooms.Dec()
	metrics.RoomParticipants.DeleteLabelValues(channelID)
	logging.Info(context.Background(), "room destroyed", zap.String("room_id", channelID))
	return true
}

// SetDraining toggles drain mode: while draining, callers reject non-host
// joins (spec.md §4.2); the Registry only tracks the flag, the signaling
// layer enforces it since "host" isn't known until the join request is
// evaluated against a specific Room.
func (reg *Registry) SetDraining(v bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.isDrain = v
}

func (reg *Registry) IsDraining() bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.isDrain
}

// Shutdown destroys every room, for graceful process shutdown.
func (reg *Registry) Shutdown() {
	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		rooms = append(rooms, r)
	}
	reg.rooms = make(map[string]*Room)
	reg.mu.Unlock()

	for _, r := range rooms {
		r.BroadcastAll("roomClosed", map[string]string{"reason": "server shutting down"})
		r.Destroy("shutdown")
	}
}

// Count returns the number of active rooms, for diagnostics/tests.
func (reg *Registry) Count() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}
