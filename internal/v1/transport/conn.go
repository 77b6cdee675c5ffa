// Package transport binds a gorilla/websocket connection to a signaling
// Session, grounded on the teacher's internal/v1/transport package (client.go,
// hub.go, hub_helpers.go): the same read/write-pump split, the same
// priority-vs-normal buffered channel pair, and the same extractToken /
// validateOrigin / authenticateUser / upgradeWebSocket connection-setup
// sequence, re-expressed against the JSON wire envelope and the room/
// signaling packages instead of the teacher's protobuf messages and
// internal/v1/room, internal/v1/session pair.
package transport

import "time"

// wsConnection is the minimal socket surface Client depends on, kept
// identical to the teacher's seam so a test double never has to implement
// more than ReadMessage/WriteMessage/Close/SetWriteDeadline.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
}
