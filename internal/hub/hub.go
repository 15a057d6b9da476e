package hub

import (
	"sync"

	"github.com/rs/zerolog"
)

// Sink is a live client connection the hub can push events to.
type Sink interface {
	// Send queues an event for delivery. Implementations must be safe for
	// concurrent use and must not block the caller indefinitely.
	Send(event string, payload any) error
	// ID identifies the connection for membership bookkeeping.
	ID() string
}

// Emitter is the outbound half of the hub. Callers that only broadcast
// depend on this so a multi-node deployment can swap in an external pub/sub.
type Emitter interface {
	Emit(room, event string, payload any)
}

// UserRoom names the per-user room.
func UserRoom(userID string) string {
	return "user:" + userID
}

// ConversationRoom names the per-conversation room.
func ConversationRoom(conversationID string) string {
	return "conversation:" + conversationID
}

// Hub tracks room membership and fans events out to member connections.
// Send failures are logged and skipped; a slow or dead member never blocks
// the others.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]Sink
	logger zerolog.Logger
}

// New creates an empty Hub.
func New(logger zerolog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[string]Sink),
		logger: logger.With().Str("component", "hub").Logger(),
	}
}

// Join adds conn to room. Joining twice is a no-op.
func (h *Hub) Join(conn Sink, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]Sink)
		h.rooms[room] = members
	}
	members[conn.ID()] = conn

	h.logger.Debug().
		Str("room", room).
		Str("conn_id", conn.ID()).
		Int("members", len(members)).
		Msg("joined room")
}

// Leave removes conn from room. Leaving a room the connection is not in is
// a no-op.
func (h *Hub) Leave(conn Sink, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(conn.ID(), room)
}

// LeaveAll removes conn from every room, used on disconnect.
func (h *Hub) LeaveAll(conn Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := conn.ID()
	for room, members := range h.rooms {
		if _, ok := members[id]; ok {
			h.leaveLocked(id, room)
		}
	}
}

func (h *Hub) leaveLocked(connID, room string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	if _, ok := members[connID]; !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}

	h.logger.Debug().
		Str("room", room).
		Str("conn_id", connID).
		Msg("left room")
}

// Emit sends the event to every member of room. An empty room is a no-op.
func (h *Hub) Emit(room, event string, payload any) {
	h.mu.RLock()
	members := make([]Sink, 0, len(h.rooms[room]))
	for _, conn := range h.rooms[room] {
		members = append(members, conn)
	}
	h.mu.RUnlock()

	for _, conn := range members {
		if err := conn.Send(event, payload); err != nil {
			h.logger.Warn().
				Err(err).
				Str("room", room).
				Str("event", event).
				Str("conn_id", conn.ID()).
				Msg("broadcast send failed")
		}
	}
}

// RoomSize reports current membership, mainly for tests and debugging.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
