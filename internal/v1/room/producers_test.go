package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRoom_BroadcastProducerEvent_FanoutCompleteness verifies spec.md §8's
// "producer fan-out completeness": every non-owner seated client receives a
// producer event, except that webinar attendees only see it when the
// producer is part of their feed-selector-visible set.
func TestRoom_BroadcastProducerEvent_FanoutCompleteness(t *testing.T) {
	r := newTestRoom()

	ownerSink := &fakeSink{}
	peerSink := &fakeSink{}
	attendeeSink := &fakeSink{}

	_, err := r.Join(JoinRequest{UserKey: "owner", UserID: "owner#s1", SessionID: "s1", Sink: ownerSink})
	require.NoError(t, err)
	_, err = r.Join(JoinRequest{UserKey: "peer", UserID: "peer#s1", SessionID: "s1", Sink: peerSink})
	require.NoError(t, err)
	r.webinarConfig.Enabled = true
	r.webinarConfig.PublicAccess = true
	_, err = r.Join(JoinRequest{UserKey: "attendee", UserID: "attendee#s1", SessionID: "s1", JoinMode: JoinModeWebinarAttendee, Sink: attendeeSink})
	require.NoError(t, err)

	// A non-screen, non-active-speaker video producer is invisible to the
	// attendee but visible to the other seated participant.
	p, _, err := r.Produce("owner#s1", "video", "webcam", false)
	require.NoError(t, err)

	r.BroadcastProducerEvent("newProducer", "owner#s1", p.ID, nil)

	assert.Empty(t, ownerSink.sent, "producer owner must not receive its own fan-out")
	assert.Contains(t, peerSink.sent, "newProducer")
	assert.Empty(t, attendeeSink.sent, "attendee must not see a non-visible producer")

	// A screen-share producer is always visible to attendees.
	peerSink.sent = nil
	attendeeSink.sent = nil
	screen, _, err := r.Produce("owner#s1", "video", "screen", false)
	require.NoError(t, err)
	r.BroadcastProducerEvent("newProducer", "owner#s1", screen.ID, nil)

	assert.Contains(t, peerSink.sent, "newProducer")
	assert.Contains(t, attendeeSink.sent, "newProducer")
}

// TestRoom_ActiveSpeakerFeedSelector verifies spec.md §4.6/§8: an audio
// producer becomes the feed selector's active speaker, and attendees see
// exactly that speaker's producers plus any active screen-share.
func TestRoom_ActiveSpeakerFeedSelector(t *testing.T) {
	r := newTestRoom()
	r.webinarConfig.Enabled = true
	r.webinarConfig.PublicAccess = true

	_, err := r.Join(JoinRequest{UserKey: "alice", UserID: "alice#s1", SessionID: "s1", Sink: &fakeSink{}})
	require.NoError(t, err)
	_, err = r.Join(JoinRequest{UserKey: "bob", UserID: "bob#s1", SessionID: "s1", Sink: &fakeSink{}})
	require.NoError(t, err)

	aliceAudio, changed, err := r.Produce("alice#s1", "audio", "webcam", false)
	require.NoError(t, err)
	assert.True(t, changed)

	assert.True(t, r.ShouldFanoutToAttendee(aliceAudio.ID))

	bobAudio, _, err := r.Produce("bob#s1", "audio", "webcam", false)
	require.NoError(t, err)
	assert.True(t, r.ShouldFanoutToAttendee(bobAudio.ID))
	assert.False(t, r.ShouldFanoutToAttendee(aliceAudio.ID), "feed selector must track exactly one active speaker at a time")
}

func TestRoom_CloseProducer_OnlyOwnerMayClose(t *testing.T) {
	r := newTestRoom()
	_, err := r.Join(JoinRequest{UserKey: "alice", UserID: "alice#s1", SessionID: "s1", Sink: &fakeSink{}})
	require.NoError(t, err)
	_, err = r.Join(JoinRequest{UserKey: "bob", UserID: "bob#s1", SessionID: "s1", Sink: &fakeSink{}})
	require.NoError(t, err)

	p, _, err := r.Produce("alice#s1", "video", "webcam", false)
	require.NoError(t, err)

	_, err = r.CloseProducer("bob#s1", p.ID)
	assert.Error(t, err)

	_, err = r.CloseProducer("alice#s1", p.ID)
	assert.NoError(t, err)
}

func TestRoom_WebinarAttendeesCannotProduce(t *testing.T) {
	r := newTestRoom()
	r.webinarConfig.Enabled = true
	r.webinarConfig.PublicAccess = true

	_, err := r.Join(JoinRequest{UserKey: "attendee", UserID: "attendee#s1", SessionID: "s1", JoinMode: JoinModeWebinarAttendee, Sink: &fakeSink{}})
	require.NoError(t, err)

	_, _, err = r.Produce("attendee#s1", "video", "webcam", false)
	assert.Error(t, err)
}
