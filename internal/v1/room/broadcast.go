package room

import (
	"k8s.io/utils/set"
)

// audience is the recipient-selection mode for Broadcast, generalizing the
// teacher's broadcastWithOptions(roles set.Set[RoleType], excludeSenderID)
// to this package's three-mode model.
type audience struct {
	excludeUserID string
	onlyNonAttend bool // exclude webinar attendees, e.g. raw newProducer fan-out
	modes         set.Set[Mode]
}

// Broadcast sends event/payload to every seated client matching aud,
// via each recipient's Sink. A slow or absent Sink is skipped rather than
// blocking the room, mirroring the teacher's non-blocking select{default:}
// send idiom (now pushed down into the Sink implementation itself).
func (r *Room) Broadcast(event string, payload any, aud audience) {
	r.mu.RLock()
	recipients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		if aud.excludeUserID != "" && c.UserID == aud.excludeUserID {
			continue
		}
		if aud.onlyNonAttend && c.Mode == ModeWebinarAttendee {
			continue
		}
		if aud.modes != nil && !aud.modes.Has(c.Mode) {
			continue
		}
		recipients = append(recipients, c)
	}
	r.mu.RUnlock()

	for _, c := range recipients {
		if c.Sink != nil {
			c.Sink.Send(event, payload)
		}
	}
}

// BroadcastAll sends to every seated client, regardless of role.
func (r *Room) BroadcastAll(event string, payload any) {
	r.Broadcast(event, payload, audience{})
}

// BroadcastExcluding sends to every seated client except excludeUserID, the
// common "fan out but don't echo to the sender" shape.
func (r *Room) BroadcastExcluding(event string, payload any, excludeUserID string) {
	r.Broadcast(event, payload, audience{excludeUserID: excludeUserID})
}

// BroadcastToGhosts sends only to other ghost-mode clients, implementing
// the glossary's "other ghosts see each other, non-ghosts do not" rule for
// a ghost's own join/leave lifecycle events.
func (r *Room) BroadcastToGhosts(event string, payload any, excludeUserID string) {
	r.Broadcast(event, payload, audience{excludeUserID: excludeUserID, modes: set.New(ModeGhost)})
}

// BroadcastToWebinarAttendees sends only to webinar-attendee clients, for
// feed-selector and config-change notifications those participants act on.
func (r *Room) BroadcastToWebinarAttendees(event string, payload any) {
	r.Broadcast(event, payload, audience{modes: set.New(ModeWebinarAttendee)})
}

// BroadcastAdmins sends only to admin clients (e.g. userRequestedJoin).
func (r *Room) BroadcastAdmins(event string, payload any) {
	r.mu.RLock()
	recipients := make([]*Client, 0)
	for _, c := range r.clients {
		if c.IsAdmin {
			recipients = append(recipients, c)
		}
	}
	r.mu.RUnlock()
	for _, c := range recipients {
		if c.Sink != nil {
			c.Sink.Send(event, payload)
		}
	}
}

// SendTo pushes an event directly to one seated client by userId.
func (r *Room) SendTo(userID, event string, payload any) bool {
	r.mu.RLock()
	c, ok := r.clients[userID]
	r.mu.RUnlock()
	if !ok || c.Sink == nil {
		return false
	}
	c.Sink.Send(event, payload)
	return true
}
