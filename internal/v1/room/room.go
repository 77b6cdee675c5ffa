package room

import (
	"container/list"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/huddlecore/signaling/internal/v1/errs"
	"github.com/huddlecore/signaling/internal/v1/logging"
	"github.com/huddlecore/signaling/internal/v1/metrics"
	"go.uber.org/zap"
)

// Config tunes the timers and thresholds the admission controller and
// quality autotune need, sourced from config.Config at startup.
type Config struct {
	DisconnectGraceMs int
	RoomEmptyGraceMs  int
	QualityCliffSize  int
	WebinarMaxAttend  int
}

// DefaultConfig mirrors config.Config's defaults for tests and standalone
// construction.
var DefaultConfig = Config{
	DisconnectGraceMs: 15_000,
	RoomEmptyGraceMs:  30_000,
	QualityCliffSize:  12,
	WebinarMaxAttend:  500,
}

// Room is the aggregate entity of spec.md §3: clients, pending clients, host
// key, locks, webinar config, producer table, hand-raised set,
// display-name map, disconnect-grace table, apps state. All mutation is
// serialized per-room through mu, matching spec.md §5's requirement that
// implementations on a parallel-threaded runtime use a per-room lock.
type Room struct {
	ChannelID string

	mu sync.RWMutex

	clients         map[string]*Client   // userId -> Client
	order           *list.List           // insertion-order list of userId, for deterministic promotion
	orderElems      map[string]*list.Element
	pendingClients  map[string]*Pending  // userKey -> Pending
	displayNames    map[string]string    // userKey -> current display name
	hostUserKey     string
	isLocked        bool
	noGuests        bool
	isChatLocked    bool
	isTtsDisabled   bool
	inviteCodeHash  string
	lockedAllowList map[string]struct{} // userKey set
	webinarConfig   WebinarConfig
	producers       map[string]*Producer // producerId -> Producer
	handRaised      map[string]struct{}  // userId set
	disconnectGrace map[string]*graceEntry
	cleanupTimer    *time.Timer
	currentQuality  Quality
	broadcastQuality Quality // last tier reported via setVideoQuality
	appsState       AppsState
	activeSpeakerUserID string // §4.6 webinar feed selector state
	chatHistory     *list.List // bounded recent-chat ring buffer; see chat.go

	cfg     Config
	onEmpty func(channelID string)

	closed bool
}

// NewRoom constructs an empty Room. onEmptyCallback mirrors the teacher's
// Hub.removeRoom hook: it is invoked by the room's own cleanup timer,
// RoomEmptyGraceMs after the host leaves with no one to promote, if the room
// is by then empty or still has no admin (spec.md §4.2).
func NewRoom(channelID string, cfg Config, onEmptyCallback func(string)) *Room {
	return &Room{
		ChannelID:       channelID,
		clients:         make(map[string]*Client),
		order:           list.New(),
		orderElems:      make(map[string]*list.Element),
		pendingClients:  make(map[string]*Pending),
		displayNames:    make(map[string]string),
		lockedAllowList: make(map[string]struct{}),
		producers:       make(map[string]*Producer),
		handRaised:      make(map[string]struct{}),
		disconnectGrace: make(map[string]*graceEntry),
		currentQuality:  QualityStandard,
		broadcastQuality: QualityStandard,
		webinarConfig:   WebinarConfig{FeedMode: "active-speaker", MaxAttendees: cfg.WebinarMaxAttend},
		chatHistory:     list.New(),
		cfg:             cfg,
		onEmpty:         onEmptyCallback,
	}
}

func hashInviteCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return string(sum[:])
}

func codeMatches(hash, candidate string) bool {
	if hash == "" {
		return true
	}
	if candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(hash), []byte(hashInviteCode(candidate))) == 1
}

// SetInviteCode hashes and stores the meeting invite code; empty clears it.
func (r *Room) SetInviteCode(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if code == "" {
		r.inviteCodeHash = ""
		return
	}
	r.inviteCodeHash = hashInviteCode(code)
}

// Join evaluates the admission decision tree of spec.md §4.3 atomically: the
// whole evaluation and the resulting state mutation happen under a single
// write lock, so two concurrent joins into e.g. a room at its webinar seat
// cap can never both observe a free seat (spec.md §8 "Admission atomicity").
func (r *Room) Join(req JoinRequest) (*JoinOutcome, error) {
	r.mu.Lock()
	var outcome *JoinOutcome
	var err error
	if req.JoinMode == JoinModeWebinarAttendee {
		outcome, err = r.admitWebinarAttendeeLocked(req)
	} else {
		outcome, err = r.admitMeetingLocked(req)
	}
	quality, changed := r.qualityChangedLocked()
	r.mu.Unlock()

	if changed {
		r.BroadcastAll(eventSetVideoQuality, qualityPayload{Quality: string(quality)})
	}
	return outcome, err
}

func (r *Room) admitWebinarAttendeeLocked(req JoinRequest) (*JoinOutcome, error) {
	wc := r.webinarConfig
	if !wc.Enabled {
		metrics.AdmissionDecisions.WithLabelValues("reject").Inc()
		return nil, errs.PermissionDenied("webinar is not enabled for this room")
	}
	if !wc.PublicAccess && req.WebinarSignedToken == "" {
		metrics.AdmissionDecisions.WithLabelValues("reject").Inc()
		return nil, errs.PermissionDenied("webinar link required")
	}
	if wc.InviteCodeHash != "" && !codeMatches(wc.InviteCodeHash, req.WebinarInviteCode) {
		metrics.AdmissionDecisions.WithLabelValues("reject").Inc()
		return nil, errs.PermissionDenied("invalid webinar invite code")
	}
	if wc.Locked {
		metrics.AdmissionDecisions.WithLabelValues("reject").Inc()
		return nil, errs.PermissionDenied("webinar is locked")
	}
	if r.webinarAttendeeCountLocked() >= wc.MaxAttendees {
		metrics.AdmissionDecisions.WithLabelValues("reject").Inc()
		return nil, errs.PermissionDenied("webinar is at capacity")
	}

	client := &Client{
		UserID:      req.UserID,
		UserKey:     req.UserKey,
		SessionID:   req.SessionID,
		DisplayName: req.DisplayName,
		Mode:        ModeWebinarAttendee,
		Sink:        req.Sink,
	}
	r.seatClientLocked(client)
	metrics.AdmissionDecisions.WithLabelValues("joined").Inc()
	metrics.WebinarAttendees.WithLabelValues(r.ChannelID).Set(float64(r.webinarAttendeeCountLocked()))

	return &JoinOutcome{
		Status:        StatusJoined,
		Client:        client,
		WebinarRole:   string(ModeWebinarAttendee),
		HostUserID:    r.hostUserIDLocked(),
		IsLocked:      r.isLocked,
		IsTtsDisabled: r.isTtsDisabled,
	}, nil
}

func (r *Room) admitMeetingLocked(req JoinRequest) (*JoinOutcome, error) {
	isReconnect := r.clearPendingDisconnectLocked(req.UserID)

	var client *Client
	switch {
	case req.UserKey == r.hostUserKey && r.hostUserKey != "":
		client = r.newClientLocked(req, ModeParticipant, true)
		r.cancelCleanupTimerLocked()

	case req.RequestHost && req.AllowHostJoin:
		client = r.newClientLocked(req, ModeParticipant, true)
		if r.hostUserKey == "" {
			r.hostUserKey = req.UserKey
		}

	case r.noGuests && req.IsGuest:
		metrics.AdmissionDecisions.WithLabelValues("reject").Inc()
		return nil, errs.PermissionDenied("guests are not permitted in this room")

	case r.isLocked && !r.isAllowListedLocked(req.UserKey) && !codeMatches(r.inviteCodeHash, req.MeetingInviteCode):
		p := &Pending{UserKey: req.UserKey, DisplayName: req.DisplayName, Sink: req.Sink, Reason: "locked", RequestedAt: time.Now()}
		r.pendingClients[req.UserKey] = p
		metrics.AdmissionDecisions.WithLabelValues("waiting").Inc()
		return &JoinOutcome{Status: StatusWaiting, Reason: "locked", HostUserID: r.hostUserIDLocked(), IsLocked: r.isLocked, IsTtsDisabled: r.isTtsDisabled}, nil

	case r.hostUserKey == "":
		// A room with no host seats this joiner as its host.
		client = r.newClientLocked(req, ModeParticipant, true)
		r.hostUserKey = req.UserKey
		r.cancelCleanupTimerLocked()

	case req.UseWaitingRoom && !r.isAllowListedLocked(req.UserKey):
		p := &Pending{UserKey: req.UserKey, DisplayName: req.DisplayName, Sink: req.Sink, Reason: "waiting-room-policy", RequestedAt: time.Now()}
		r.pendingClients[req.UserKey] = p
		metrics.AdmissionDecisions.WithLabelValues("waiting").Inc()
		return &JoinOutcome{Status: StatusWaiting, Reason: "waiting-room-policy", HostUserID: r.hostUserIDLocked(), IsLocked: r.isLocked, IsTtsDisabled: r.isTtsDisabled}, nil

	default:
		mode := ModeParticipant
		if req.RequestGhost && r.hostUserKey != "" {
			mode = ModeGhost
		}
		client = r.newClientLocked(req, mode, false)
	}

	if client == nil {
		// policy gate not covered above: land in waiting room by default.
		p := &Pending{UserKey: req.UserKey, DisplayName: req.DisplayName, Sink: req.Sink, Reason: "waiting-room-policy", RequestedAt: time.Now()}
		r.pendingClients[req.UserKey] = p
		metrics.AdmissionDecisions.WithLabelValues("waiting").Inc()
		return &JoinOutcome{Status: StatusWaiting, Reason: "waiting-room-policy", HostUserID: r.hostUserIDLocked(), IsLocked: r.isLocked, IsTtsDisabled: r.isTtsDisabled}, nil
	}

	r.seatClientLocked(client)
	if req.IsGuest {
		// guests never become the allow-listed principal.
	} else {
		r.lockedAllowList[req.UserKey] = struct{}{}
	}
	metrics.AdmissionDecisions.WithLabelValues("joined").Inc()

	return &JoinOutcome{
		Status:        StatusJoined,
		Client:        client,
		IsReconnect:   isReconnect,
		HostUserID:    r.hostUserIDLocked(),
		IsLocked:      r.isLocked,
		IsTtsDisabled: r.isTtsDisabled,
	}, nil
}

func (r *Room) newClientLocked(req JoinRequest, mode Mode, admin bool) *Client {
	return &Client{
		UserID:      req.UserID,
		UserKey:     req.UserKey,
		SessionID:   req.SessionID,
		DisplayName: req.DisplayName,
		Mode:        mode,
		IsAdmin:     admin,
		Sink:        req.Sink,
	}
}

func (r *Room) seatClientLocked(c *Client) {
	r.clients[c.UserID] = c
	elem := r.order.PushBack(c.UserID)
	r.orderElems[c.UserID] = elem
	r.displayNames[c.UserKey] = c.DisplayName
	r.recomputeQualityLocked()
	metrics.RoomParticipants.WithLabelValues(r.ChannelID).Set(float64(len(r.clients)))
}

func (r *Room) isAllowListedLocked(userKey string) bool {
	_, ok := r.lockedAllowList[userKey]
	return ok
}

func (r *Room) webinarAttendeeCountLocked() int {
	n := 0
	for _, c := range r.clients {
		if c.Mode == ModeWebinarAttendee {
			n++
		}
	}
	return n
}

func (r *Room) hostUserIDLocked() string {
	if r.hostUserKey == "" {
		return ""
	}
	for _, c := range r.clients {
		if c.UserKey == r.hostUserKey && c.IsAdmin {
			return c.UserID
		}
	}
	return ""
}

// AdmitPending admits a previously-waiting principal by userKey (the
// admitUser operation of §4.4). It is the caller's job (signaling layer) to
// then have that principal re-issue joinRoom; AdmitPending only promotes
// them off the waiting list onto the allow-list and returns the Pending so
// the caller can notify it.
func (r *Room) AdmitPending(userKey string) (*Pending, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pendingClients[userKey]
	if !ok {
		return nil, false
	}
	delete(r.pendingClients, userKey)
	r.lockedAllowList[userKey] = struct{}{}
	return p, true
}

// RejectPending removes a waiting principal without admitting them.
func (r *Room) RejectPending(userKey string) (*Pending, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pendingClients[userKey]
	if !ok {
		return nil, false
	}
	delete(r.pendingClients, userKey)
	return p, true
}

// PendingSnapshot returns the current waiting list, for pendingUsersSnapshot.
func (r *Room) PendingSnapshot() []Pending {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Pending, 0, len(r.pendingClients))
	for _, p := range r.pendingClients {
		out = append(out, *p)
	}
	return out
}

// clearPendingDisconnectLocked cancels a scheduled finalization for userID,
// if any, and reports whether one was cleared (i.e. this join is a
// reconnection per spec.md §4.3/§9).
func (r *Room) clearPendingDisconnectLocked(userID string) bool {
	g, ok := r.disconnectGrace[userID]
	if !ok {
		return false
	}
	g.timer.Stop()
	delete(r.disconnectGrace, userID)
	return true
}

// Disconnect handles a socket disconnect for the given client. immediate
// bypasses the grace window (used for client/server namespace disconnects,
// forced close, shutdown) per spec.md §4.3. finalize is invoked with the
// departed client (nil if it was already gone when the grace window elapsed)
// and whether the grace window expired, once the client is actually removed,
// either immediately or after the grace window elapses uncontested.
func (r *Room) Disconnect(ctx context.Context, userID, socketID string, immediate bool, finalize func(c *Client, graceExpired bool)) {
	if immediate {
		r.mu.Lock()
		c, ok := r.clients[userID]
		r.mu.Unlock()
		if !ok {
			return
		}
		r.finalizeDeparture(c)
		if finalize != nil {
			finalize(c, false)
		}
		return
	}

	r.mu.Lock()
	c, ok := r.clients[userID]
	if !ok {
		r.mu.Unlock()
		return
	}
	grace := time.Duration(r.cfg.DisconnectGraceMs) * time.Millisecond
	entry := &graceEntry{socketID: socketID}
	entry.timer = time.AfterFunc(grace, func() {
		r.mu.Lock()
		// Stale-socket check (spec.md §4.3, §9): only finalize if the
		// disconnect that scheduled this callback still matches the
		// currently-active socket for this userId. A racing reconnect
		// would have already cleared disconnectGrace[userID].
		current, stillPresent := r.disconnectGrace[userID]
		if !stillPresent || current.socketID != socketID {
			r.mu.Unlock()
			return
		}
		delete(r.disconnectGrace, userID)
		client := r.clients[userID]
		r.mu.Unlock()
		if client != nil {
			r.finalizeDeparture(client)
		}
		if finalize != nil {
			finalize(client, true)
		}
	})
	r.disconnectGrace[userID] = entry
	r.mu.Unlock()
}

// finalizeDeparture removes a client from the room and, if it was the last
// Admin, promotes a successor or starts the cleanup timer (spec.md §4.3).
func (r *Room) finalizeDeparture(c *Client) *Client {
	r.mu.Lock()
	removed := r.removeClientLocked(c)
	quality, changed := r.qualityChangedLocked()
	r.mu.Unlock()

	if changed {
		r.BroadcastAll(eventSetVideoQuality, qualityPayload{Quality: string(quality)})
	}
	return removed
}

func (r *Room) removeClientLocked(c *Client) *Client {
	if _, ok := r.clients[c.UserID]; !ok {
		return nil
	}
	delete(r.clients, c.UserID)
	if elem, ok := r.orderElems[c.UserID]; ok {
		r.order.Remove(elem)
		delete(r.orderElems, c.UserID)
	}
	delete(r.handRaised, c.UserID)
	r.removeProducersOwnedByLocked(c.UserID)

	wasAdmin := c.IsAdmin && c.UserKey == r.hostUserKey
	r.recomputeQualityLocked()
	metrics.RoomParticipants.WithLabelValues(r.ChannelID).Set(float64(len(r.clients)))

	if wasAdmin && !r.hasAdminLocked() {
		r.promoteNextOrCleanupLocked()
	}
	return c
}

func (r *Room) hasAdminLocked() bool {
	for _, c := range r.clients {
		if c.IsAdmin {
			return true
		}
	}
	return false
}

// promoteNextOrCleanupLocked implements "Host promotion on admin
// disappearance" from spec.md §4.3: the next non-ghost, non-attendee client
// in insertion order is promoted; absent a candidate, the cleanup timer
// starts.
func (r *Room) promoteNextOrCleanupLocked() *Client {
	for e := r.order.Front(); e != nil; e = e.Next() {
		userID := e.Value.(string)
		c := r.clients[userID]
		if c == nil || c.Mode == ModeGhost || c.Mode == ModeWebinarAttendee {
			continue
		}
		c.IsAdmin = true
		r.hostUserKey = c.UserKey
		metrics.HostPromotions.Inc()
		return c
	}
	r.hostUserKey = ""
	r.startCleanupTimerLocked()
	return nil
}

func (r *Room) startCleanupTimerLocked() {
	if r.cleanupTimer != nil {
		r.cleanupTimer.Stop()
	}
	grace := time.Duration(r.cfg.RoomEmptyGraceMs) * time.Millisecond
	r.cleanupTimer = time.AfterFunc(grace, func() {
		r.mu.Lock()
		empty := len(r.clients) == 0 && len(r.pendingClients) == 0
		hasAdmin := r.hasAdminLocked()
		channelID := r.ChannelID
		cb := r.onEmpty
		r.mu.Unlock()
		if (empty || !hasAdmin) && cb != nil {
			logging.Info(context.Background(), "room cleanup timer fired", zap.String("room_id", channelID))
			cb(channelID)
		}
	})
}

func (r *Room) cancelCleanupTimerLocked() {
	if r.cleanupTimer != nil {
		r.cleanupTimer.Stop()
		r.cleanupTimer = nil
	}
}

// IsEmpty reports whether the room has no clients and no pending entrants.
func (r *Room) IsEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients) == 0 && len(r.pendingClients) == 0
}

// HasAdmin reports whether any current client holds admin privileges.
func (r *Room) HasAdmin() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hasAdminLocked()
}

// Client looks up a seated client by userId.
func (r *Room) Client(userID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[userID]
	return c, ok
}

// Clients returns a snapshot slice of all seated clients, insertion-ordered.
func (r *Room) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.clients))
	for e := r.order.Front(); e != nil; e = e.Next() {
		if c, ok := r.clients[e.Value.(string)]; ok {
			out = append(out, c)
		}
	}
	return out
}

// recomputeQualityLocked implements spec.md §4.3's quality autotune: it
// returns the new Quality and whether it changed, so callers can decide
// whether to broadcast setVideoQuality. Caller must hold r.mu.
func (r *Room) recomputeQualityLocked() (Quality, bool) {
	before := r.currentQuality
	count := len(r.clients)
	switch {
	case count >= r.cfg.QualityCliffSize:
		r.currentQuality = QualityLow
	default:
		r.currentQuality = QualityStandard
	}
	return r.currentQuality, r.currentQuality != before
}

// Quality returns the room's current autotuned video quality tier.
func (r *Room) Quality() Quality {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currentQuality
}

// qualityChangedLocked reports the current quality tier and whether it
// differs from the last tier a caller broadcast, advancing the baseline so
// a later call for the same steady state reports no change. Caller must
// hold r.mu (write lock, since it mutates broadcastQuality).
func (r *Room) qualityChangedLocked() (Quality, bool) {
	if r.currentQuality == r.broadcastQuality {
		return r.currentQuality, false
	}
	r.broadcastQuality = r.currentQuality
	return r.currentQuality, true
}

// SetLocked toggles the room lock; unlocking never clears the allow-list
// (spec.md §3's lockedAllowList only grows, matching scenario 2 in §8).
func (r *Room) SetLocked(locked bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.isLocked = locked
}

func (r *Room) IsLocked() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isLocked
}

func (r *Room) SetNoGuests(v bool) { r.mu.Lock(); r.noGuests = v; r.mu.Unlock() }
func (r *Room) NoGuests() bool     { r.mu.RLock(); defer r.mu.RUnlock(); return r.noGuests }

func (r *Room) SetChatLocked(v bool) { r.mu.Lock(); r.isChatLocked = v; r.mu.Unlock() }
func (r *Room) ChatLocked() bool     { r.mu.RLock(); defer r.mu.RUnlock(); return r.isChatLocked }

func (r *Room) SetTtsDisabled(v bool) { r.mu.Lock(); r.isTtsDisabled = v; r.mu.Unlock() }
func (r *Room) TtsDisabled() bool     { r.mu.RLock(); defer r.mu.RUnlock(); return r.isTtsDisabled }

// UpdateDisplayName applies updateDisplayName (§4.4) for a seated client.
func (r *Room) UpdateDisplayName(userID, name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[userID]
	if !ok {
		return "", false
	}
	c.DisplayName = name
	r.displayNames[c.UserKey] = name
	return name, true
}

// SetHandRaised applies handRaised (§4.4).
func (r *Room) SetHandRaised(userID string, raised bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[userID]
	if !ok {
		return false
	}
	c.HandRaised = raised
	if raised {
		r.handRaised[userID] = struct{}{}
	} else {
		delete(r.handRaised, userID)
	}
	return true
}

// HandRaisedSnapshot returns the current set of userIds with a raised hand.
func (r *Room) HandRaisedSnapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handRaised))
	for id := range r.handRaised {
		out = append(out, id)
	}
	return out
}

// HostUserID returns the current host's userId, or "" if none.
func (r *Room) HostUserID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hostUserIDLocked()
}

// Kick removes a client immediately (admin op kickUser, §4.4), bypassing
// disconnect grace entirely since the departure is intentional and
// server-initiated.
func (r *Room) Kick(userID string) *Client {
	r.mu.Lock()
	c, ok := r.clients[userID]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()
	return r.removeClientLockedPublic(c)
}

func (r *Room) removeClientLockedPublic(c *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeClientLocked(c)
}

// Destroy marks the room closed and stops its cleanup timer and every pending
// disconnect-grace timer. reason is not used here: Destroy sends no
// roomClosed event and leaves client sinks as they are.
func (r *Room) Destroy(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.cancelCleanupTimerLocked()
	for _, g := range r.disconnectGrace {
		g.timer.Stop()
	}
	r.disconnectGrace = make(map[string]*graceEntry)
}

func (r *Room) Closed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}
