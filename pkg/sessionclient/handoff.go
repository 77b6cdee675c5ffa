package sessionclient

import "github.com/huddlecore/signaling/internal/v1/coordinator"

// RegisterWithCoordinator registers this client as a session in the given
// Meeting Session Coordinator, so that a claim from another tab can evict
// it (spec.md §4.8's cross-tab handoff). The returned func must be called
// when the client is done (normally deferred alongside Close).
func (c *Client) RegisterWithCoordinator(co *coordinator.Coordinator, sessionID string) coordinator.Unregister {
	return co.Register(sessionID, coordinator.Controller{
		Snapshot: func() coordinator.State {
			return coordinator.State{Engaged: c.State().engaged(), HasActiveCall: c.InCall()}
		},
		Relinquish: func(reason string) {
			c.setState(StateDisconnected)
			c.setActiveCall(false)
		},
	})
}

// ClaimOwnership asks the coordinator to make this session the active one,
// optionally prompting confirm() before evicting another engaged session.
func (c *Client) ClaimOwnership(co *coordinator.Coordinator, sessionID string, confirm coordinator.ConfirmFunc) bool {
	return co.Claim(sessionID, confirm)
}
