// Package signaling implements the acknowledged websocket message protocol
// of spec.md §4.4: the bidirectional request/response surface bound to each
// connected client session, dispatching to the room package's aggregate
// operations and the sfu package's router client. Grounded on the teacher's
// session/handlers.go assertPayload[T]/router(client, msg) dispatch pattern
// (internal/v1/session/handlers.go), re-expressed against the JSON wire
// envelope of SPEC_FULL.md §0 instead of the teacher's protobuf union.
package signaling

import (
	"github.com/huddlecore/signaling/internal/v1/identity"
	"github.com/huddlecore/signaling/internal/v1/room"
	"github.com/huddlecore/signaling/internal/v1/wire"
)

// Conn is the minimal outbound capability a transport-layer websocket
// binding must provide. It is intentionally narrow so this package never
// imports gorilla/websocket, mirroring the teacher's wsConnection seam.
type Conn interface {
	Send(event wire.Event, payload any)
}

// Session is the per-socket ConnectionContext of spec.md §5: "each socket
// connection binds a ConnectionContext holding (currentRoom, currentClient,
// pendingRoom...)". Exactly one goroutine processes inbound messages for a
// given Session at a time (the transport layer's readPump), so Session's
// own fields need no additional locking beyond what Room itself provides.
type Session struct {
	Conn      Conn
	Namespace string // tenant namespace component of channelId
	Policy    identity.Policy // resolved once at connect time, per spec.md §4.1

	UserKey     string
	UserID      string
	SessionID   string
	DisplayName string
	IsGuest     bool

	RoomID    string // human-chosen room id, before namespacing into ChannelID
	ChannelID string
	Room      *room.Room
	Client    *room.Client
}

// Send implements room.Sink, letting Session be registered directly as a
// Client's outbound sink.
func (s *Session) Send(event string, payload any) {
	if s.Conn != nil {
		s.Conn.Send(wire.Event(event), payload)
	}
}

// InRoom reports whether this session has completed admission into a room
// (status == joined); every handler other than joinRoom must check this
// first, per spec.md §4.4 ("Every handler validates 'am I in a room'
// before acting").
func (s *Session) InRoom() bool {
	return s.Room != nil && s.Client != nil
}
