package sessionclient

import "github.com/huddlecore/signaling/internal/v1/wire"

// StopTrack records that trackID was stopped on purpose (the user muted,
// turned off camera, or left) so a subsequent "ended" event for that track
// is recognized as intentional rather than treated as a failure to recover
// from (spec.md §4.7's intentional-stop set).
func (c *Client) StopTrack(trackID string) {
	c.stoppedMu.Lock()
	c.stoppedTracks[trackID] = struct{}{}
	c.stoppedMu.Unlock()
}

// wasIntentionallyStopped consumes the intentional-stop marker for trackID,
// if present. It is consumed rather than merely checked so a later,
// unrelated "ended" event for a reused trackID isn't misattributed.
func (c *Client) wasIntentionallyStopped(trackID string) bool {
	c.stoppedMu.Lock()
	defer c.stoppedMu.Unlock()
	_, ok := c.stoppedTracks[trackID]
	if ok {
		delete(c.stoppedTracks, trackID)
	}
	return ok
}

// TrackRecoverer re-acquires a local media track after an unexpected
// "ended" event, e.g. by calling getUserMedia/getDisplayMedia again.
type TrackRecoverer interface {
	Reacquire(kind string) (trackID string, err error)
}

// ProducerCloser closes the producer that was carrying a track that could
// not be recovered.
type ProducerCloser interface {
	CloseProducer(producerID string) error
}

// OnTrackEnded implements the re-acquire-or-mute-and-close-producer branch
// of spec.md §4.7: a track that ends on its own while still in-call is
// either replaced transparently or, failing that, surfaced as a muted/
// camera-off state with its producer torn down. A track stopped via
// StopTrack is suppressed here entirely — it is the expected outcome of a
// user action, not a recovery case.
func (c *Client) OnTrackEnded(kind, trackID, producerID string, recoverer TrackRecoverer, closer ProducerCloser) error {
	if c.wasIntentionallyStopped(trackID) {
		return nil
	}

	if !c.InCall() {
		return nil
	}

	if recoverer != nil {
		if _, err := recoverer.Reacquire(kind); err == nil {
			return nil
		}
	}

	if closer != nil && producerID != "" {
		if err := closer.CloseProducer(producerID); err != nil {
			return err
		}
	}

	event := wire.EventToggleMute
	if kind == "video" {
		event = wire.EventToggleCamera
	}
	return c.Send(event, wire.ToggleMediaRequest{ProducerID: producerID, Paused: true})
}
