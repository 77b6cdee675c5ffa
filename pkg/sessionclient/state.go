package sessionclient

// ConnectionState is the viewer-side state machine of spec.md §4.7:
// disconnected -> connecting -> connected -> joining -> {joined | waiting |
// error} -> reconnecting -> ...
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateJoining      ConnectionState = "joining"
	StateJoined       ConnectionState = "joined"
	StateWaiting      ConnectionState = "waiting"
	StateError        ConnectionState = "error"
	StateReconnecting ConnectionState = "reconnecting"
)

// engaged reports whether a state counts as "using the meeting" for the
// purposes of the Meeting Session Coordinator's claim logic (spec.md §4.8).
func (s ConnectionState) engaged() bool {
	switch s {
	case StateConnecting, StateConnected, StateJoining, StateJoined, StateWaiting, StateReconnecting:
		return true
	default:
		return false
	}
}

func (c *Client) setState(s ConnectionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// State returns the client's current connection state.
func (c *Client) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Engaged reports whether the client is currently using the meeting,
// matching the Meeting Session Coordinator's "engaged" predicate (spec.md
// §4.8: state in {connecting, connected, joining, joined, reconnecting,
// waiting} OR hasActiveCall).
func (c *Client) Engaged() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.engaged() || c.hasActiveCall
}

// InCall reports whether the client currently considers itself to have an
// active call, independent of socket connection state.
func (c *Client) InCall() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hasActiveCall
}

func (c *Client) setActiveCall(active bool) {
	c.mu.Lock()
	c.hasActiveCall = active
	c.mu.Unlock()
}

// RoomID returns the room this client most recently joined or attempted to
// join (roomIdRef in spec.md §4.7).
func (c *Client) RoomID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID
}
