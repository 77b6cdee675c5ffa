package room

import (
	"github.com/google/uuid"
	"github.com/huddlecore/signaling/internal/v1/errs"
	"github.com/huddlecore/signaling/internal/v1/metrics"
)

// Produce implements §4.4's produce request and §4.5's producer bookkeeping.
// Webinar attendees are watch-only and cannot produce, per spec.md §4.4's
// errors column. feedChanged reports whether this producer affects what the
// webinar feed selector currently exposes (§4.6), so the signaling layer
// knows whether to also emit webinar:feedChanged.
func (r *Room) Produce(userID, kind, ptype string, paused bool) (p *Producer, feedChanged bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[userID]
	if !ok {
		return nil, false, errs.PermissionDenied("not in room")
	}
	if c.Mode == ModeWebinarAttendee {
		return nil, false, errs.PermissionDenied("webinar attendees cannot produce")
	}

	p = &Producer{
		ID:          uuid.NewString(),
		OwnerUserID: userID,
		Kind:        kind,
		Type:        ptype,
		Paused:      paused,
	}
	r.producers[p.ID] = p
	metrics.ActiveProducers.WithLabelValues(r.ChannelID).Set(float64(len(r.producers)))

	if kind == "audio" && !paused {
		feedChanged = r.activeSpeakerUserID != userID
		r.activeSpeakerUserID = userID
	}
	if ptype == "screen" {
		feedChanged = true
	}
	return p, feedChanged, nil
}

// CloseProducer implements §4.4's closeProducer; only the owner may close
// their own producer ("not owner" error in the spec's table).
func (r *Room) CloseProducer(userID, producerID string) (feedChanged bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.producers[producerID]
	if !ok {
		return false, errs.New(errs.KindUnknown, "producer not found")
	}
	if p.OwnerUserID != userID {
		return false, errs.PermissionDenied("not owner")
	}
	delete(r.producers, producerID)
	metrics.ActiveProducers.WithLabelValues(r.ChannelID).Set(float64(len(r.producers)))

	if p.Type == "screen" || r.activeSpeakerUserID == p.OwnerUserID {
		feedChanged = true
	}
	if r.activeSpeakerUserID == p.OwnerUserID {
		r.activeSpeakerUserID = ""
	}
	return feedChanged, nil
}

// removeProducersOwnedByLocked closes every producer a departing client
// owned, matching spec.md §3's "producer entries are removed synchronously
// with owner removal" invariant. Caller must hold r.mu (write lock).
func (r *Room) removeProducersOwnedByLocked(userID string) []*Producer {
	var closed []*Producer
	for id, p := range r.producers {
		if p.OwnerUserID == userID {
			delete(r.producers, id)
			closed = append(closed, p)
		}
	}
	if len(closed) > 0 {
		metrics.ActiveProducers.WithLabelValues(r.ChannelID).Set(float64(len(r.producers)))
	}
	if r.activeSpeakerUserID == userID {
		r.activeSpeakerUserID = ""
	}
	return closed
}

// TogglePause flips a producer's authoritative mute/camera-off bit and
// reports the new state, for participantMuted/participantCameraOff fan-out
// (§4.5 "Pause propagation").
func (r *Room) TogglePause(userID, producerID string, paused bool) (*Producer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.producers[producerID]
	if !ok {
		return nil, errs.New(errs.KindUnknown, "producer not found")
	}
	if p.OwnerUserID != userID {
		return nil, errs.PermissionDenied("not owner")
	}
	p.Paused = paused
	if p.Kind == "audio" {
		if paused && r.activeSpeakerUserID == userID {
			r.activeSpeakerUserID = ""
		} else if !paused {
			r.activeSpeakerUserID = userID
		}
	}
	return p, nil
}

// ToggleOwnKind flips the pause state of userID's first producer of the
// given kind ("audio" | "video"), for the chat /mute and /cam shorthand
// commands (spec.md §6). Returns the producer and the new paused state.
func (r *Room) ToggleOwnKind(userID, kind string) (*Producer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.producers {
		if p.OwnerUserID == userID && p.Kind == kind {
			p.Paused = !p.Paused
			if kind == "audio" {
				if p.Paused && r.activeSpeakerUserID == userID {
					r.activeSpeakerUserID = ""
				} else if !p.Paused {
					r.activeSpeakerUserID = userID
				}
			}
			return p, true
		}
	}
	return nil, false
}

// Producers returns the producer set visible to forUserID: the full table
// for ordinary participants, or the feed-selector-reduced set for webinar
// attendees (§4.6).
func (r *Room) Producers(forUserID string) []Producer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[forUserID]
	if ok && c.Mode == ModeWebinarAttendee {
		return r.visibleToAttendeeLocked()
	}
	out := make([]Producer, 0, len(r.producers))
	for _, p := range r.producers {
		out = append(out, *p)
	}
	return out
}

// visibleToAttendeeLocked implements the active-speaker feed selector of
// spec.md §4.6: any active screen-share, plus the active speaker's
// audio+video. Caller must hold r.mu (read or write).
func (r *Room) visibleToAttendeeLocked() []Producer {
	var out []Producer
	for _, p := range r.producers {
		if p.Type == "screen" && !p.Paused {
			out = append(out, *p)
			continue
		}
		if r.activeSpeakerUserID != "" && p.OwnerUserID == r.activeSpeakerUserID {
			out = append(out, *p)
		}
	}
	return out
}

// VisibleProducerIDs returns the ids currently visible to webinar
// attendees, for the webinar:feedChanged payload.
func (r *Room) VisibleProducerIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	vis := r.visibleToAttendeeLocked()
	ids := make([]string, 0, len(vis))
	for _, p := range vis {
		ids = append(ids, p.ID)
	}
	return ids
}

// BroadcastProducerEvent fans out newProducer/producerClosed per §4.5:
// every non-owner client in the room, except that webinar attendees only
// receive it when producerID is currently part of the feed selector's
// visible set (§4.6).
func (r *Room) BroadcastProducerEvent(event, excludeUserID, producerID string, payload any) {
	r.mu.RLock()
	visible := r.visibleToAttendeeLocked()
	visibleSet := make(map[string]struct{}, len(visible))
	for _, p := range visible {
		visibleSet[p.ID] = struct{}{}
	}
	recipients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		if c.UserID == excludeUserID {
			continue
		}
		if c.Mode == ModeWebinarAttendee {
			if _, ok := visibleSet[producerID]; !ok {
				continue
			}
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

// ShouldFanoutToAttendee reports whether producerID is part of the webinar
// feed selector's current visible set (§4.6), used when deciding whether a
// newProducer/producerClosed event also goes to attendee clients.
func (r *Room) ShouldFanoutToAttendee(producerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.visibleToAttendeeLocked() {
		if p.ID == producerID {
			return true
		}
	}
	return false
}
