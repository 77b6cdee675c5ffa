package room

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu    sync.Mutex
	sent  []string
}

func (f *fakeSink) Send(event string, _ any) {
	f.mu.Lock()
	f.sent = append(f.sent, event)
	f.mu.Unlock()
}

func newTestRoom() *Room {
	return NewRoom("ns/room-1", DefaultConfig, func(string) {})
}

func TestRoom_FirstJoinerBecomesHost(t *testing.T) {
	r := newTestRoom()

	outcome, err := r.Join(JoinRequest{UserKey: "alice", UserID: "alice#s1", SessionID: "s1", Sink: &fakeSink{}})
	require.NoError(t, err)
	assert.Equal(t, StatusJoined, outcome.Status)
	assert.True(t, outcome.Client.IsAdmin)
	assert.Equal(t, "alice#s1", r.HostUserID())
}

// TestRoom_HostUniqueness verifies spec.md §8's "host uniqueness": at most
// one seated client ever holds IsAdmin across a sequence of joins and a
// departure-triggered promotion.
func TestRoom_HostUniqueness(t *testing.T) {
	r := newTestRoom()

	_, err := r.Join(JoinRequest{UserKey: "alice", UserID: "alice#s1", SessionID: "s1", Sink: &fakeSink{}})
	require.NoError(t, err)
	_, err = r.Join(JoinRequest{UserKey: "bob", UserID: "bob#s1", SessionID: "s1", Sink: &fakeSink{}})
	require.NoError(t, err)
	_, err = r.Join(JoinRequest{UserKey: "carol", UserID: "carol#s1", SessionID: "s1", Sink: &fakeSink{}})
	require.NoError(t, err)

	assertSingleAdmin(t, r)

	aliceClient, _ := r.Client("alice#s1")
	r.Disconnect(context.Background(), "alice#s1", "sock-1", true, nil)
	_ = aliceClient

	assertSingleAdmin(t, r)
	assert.Equal(t, "bob#s1", r.HostUserID())
}

func assertSingleAdmin(t *testing.T, r *Room) {
	t.Helper()
	admins := 0
	for _, c := range r.Clients() {
		if c.IsAdmin {
			admins++
		}
	}
	assert.LessOrEqual(t, admins, 1)
}

// TestRoom_ReconnectPreservesIdentity: a join arriving for a userID with a
// pending disconnect-grace entry is reported as IsReconnect, and the
// departing client's grace timer never fires (spec.md §8
// "reconnect-preserves-identity").
func TestRoom_ReconnectPreservesIdentity(t *testing.T) {
	cfg := DefaultConfig
	cfg.DisconnectGraceMs = 50
	r := NewRoom("ns/room-2", cfg, func(string) {})

	_, err := r.Join(JoinRequest{UserKey: "alice", UserID: "alice#s1", SessionID: "s1", Sink: &fakeSink{}})
	require.NoError(t, err)

	r.Disconnect(context.Background(), "alice#s1", "sock-1", false, nil)

	outcome, err := r.Join(JoinRequest{UserKey: "alice", UserID: "alice#s1", SessionID: "s1", Sink: &fakeSink{}})
	require.NoError(t, err)
	assert.True(t, outcome.IsReconnect)

	time.Sleep(100 * time.Millisecond)
	_, ok := r.Client("alice#s1")
	assert.True(t, ok, "reconnected client must not be removed by the stale grace timer")
}

func TestRoom_LockedRoomWaitsUnlistedJoiner(t *testing.T) {
	r := newTestRoom()
	_, err := r.Join(JoinRequest{UserKey: "alice", UserID: "alice#s1", SessionID: "s1", Sink: &fakeSink{}})
	require.NoError(t, err)
	r.SetLocked(true)

	outcome, err := r.Join(JoinRequest{UserKey: "mallory", UserID: "mallory#s1", SessionID: "s1", Sink: &fakeSink{}})
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, outcome.Status)
	assert.Equal(t, "locked", outcome.Reason)
}

func TestRoom_NoGuestsRejectsGuest(t *testing.T) {
	r := newTestRoom()
	_, err := r.Join(JoinRequest{UserKey: "alice", UserID: "alice#s1", SessionID: "s1", Sink: &fakeSink{}})
	require.NoError(t, err)
	r.SetNoGuests(true)

	_, err = r.Join(JoinRequest{UserKey: "guest1", UserID: "guest1#s1", SessionID: "s1", IsGuest: true, Sink: &fakeSink{}})
	assert.Error(t, err)
}

// TestRoom_WebinarQuota_ConcurrentJoins verifies spec.md §8's "webinar
// quota": concurrent joins against a room at its webinar attendee cap never
// admit more than MaxAttendees attendees, because Join evaluates the
// decision tree and mutates state under one write lock (admission
// atomicity).
func TestRoom_WebinarQuota_ConcurrentJoins(t *testing.T) {
	cfg := DefaultConfig
	cfg.WebinarMaxAttend = 5
	r := NewRoom("ns/room-webinar", cfg, func(string) {})
	r.webinarConfig.Enabled = true
	r.webinarConfig.PublicAccess = true

	var joined int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, err := r.Join(JoinRequest{
				UserKey:   uniqueKey(i),
				UserID:    uniqueKey(i) + "#s1",
				SessionID: "s1",
				JoinMode:  JoinModeWebinarAttendee,
				Sink:      &fakeSink{},
			})
			if err == nil && outcome.Status == StatusJoined {
				atomic.AddInt32(&joined, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(5), atomic.LoadInt32(&joined))
}

func uniqueKey(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	return "attendee-" + string(letters[i/len(letters)]) + string(letters[i%len(letters)])
}

func TestRoom_QualityAutotune_CrossesCliff(t *testing.T) {
	cfg := DefaultConfig
	cfg.QualityCliffSize = 2
	r := NewRoom("ns/room-quality", cfg, func(string) {})

	assert.Equal(t, QualityStandard, r.Quality())

	_, err := r.Join(JoinRequest{UserKey: "a", UserID: "a#s1", SessionID: "s1", Sink: &fakeSink{}})
	require.NoError(t, err)
	assert.Equal(t, QualityStandard, r.Quality())

	_, err = r.Join(JoinRequest{UserKey: "b", UserID: "b#s1", SessionID: "s1", Sink: &fakeSink{}})
	require.NoError(t, err)
	assert.Equal(t, QualityLow, r.Quality())
}
