// Package room implements the room state machine and admission controller
// that spec.md §3-§4.3 describe: per-room membership, host election, waiting
// room, lock/no-guest/chat-lock/TTS policies, invite-code gating, and the
// regular/webinar dual role model. It is grounded on the teacher's
// internal/v1/room and internal/v1/session packages (see DESIGN.md), with
// the teacher's two-role (host/participant) Client map generalized to the
// three-role (admin/participant/webinar_attendee) model plus ghost mode.
package room

import (
	"time"
)

// Mode is the participation mode of a connected Client, per spec.md §3.
type Mode string

const (
	ModeParticipant     Mode = "participant"
	ModeGhost           Mode = "ghost"
	ModeWebinarAttendee Mode = "webinar_attendee"
)

// Sink is everything a Room needs to push an unsolicited event to a
// connected client or a still-pending one. It is implemented by the
// transport package's per-socket binding; kept minimal here so the room
// package never imports gorilla/websocket directly, mirroring the teacher's
// Roomer/wsConnection interface-seam style.
type Sink interface {
	Send(event string, payload any)
}

// Client is a participant session, the direct analogue of spec.md §3's
// Client entity. IsAdmin is the "Admin variant" of the source design's
// prototype-swap trick, reinterpreted per spec.md §9 as a plain role field
// that is flipped (not object-swapped) on promotion.
type Client struct {
	UserID      string // userKey#sessionId
	UserKey     string
	SessionID   string
	DisplayName string
	Mode        Mode
	IsAdmin     bool
	HandRaised  bool
	Sink        Sink
}

// Pending is a waiting-room entrant, keyed by UserKey so a reconnecting tab
// of the same principal replaces rather than duplicates its entry.
type Pending struct {
	UserKey     string
	DisplayName string
	Sink        Sink
	Reason      string // "locked" | "waiting-room-policy" | ""
	RequestedAt time.Time
}

// Producer is owned by the Room; its lifetime is strictly shorter than both
// its owning Client and the Room (spec.md §3).
type Producer struct {
	ID          string
	OwnerUserID string
	Kind        string // "audio" | "video"
	Type        string // "webcam" | "screen"
	Paused      bool
}

// WebinarConfig is the room's watch-only-attendee configuration, spec.md §3.
type WebinarConfig struct {
	Enabled        bool
	PublicAccess   bool
	Locked         bool
	MaxAttendees   int
	InviteCodeHash string
	LinkVersion    int
	FeedMode       string // always "active-speaker" per current scope
}

// AppsState tracks the room's shared-app slot (spec.md §3's appsState).
type AppsState struct {
	ActiveAppID string
	Locked      bool
}

// Quality is the room-wide video quality tier, downgraded under load.
type Quality string

const (
	QualityStandard Quality = "standard"
	QualityLow      Quality = "low"
)

// eventSetVideoQuality and qualityPayload let Room broadcast its own
// autotune decisions (spec.md §4.3) without importing the wire package;
// the shape matches wire.SetVideoQualityEvent.
const eventSetVideoQuality = "setVideoQuality"

type qualityPayload struct {
	Quality string `json:"quality"`
}

// graceEntry is a scheduled departure awaiting reconnection, keyed by
// userId and pinned to the socket identity that triggered it so the grace
// callback can detect a racing reconnect (spec.md §4.3, §9).
type graceEntry struct {
	socketID string
	timer    *time.Timer
}

// JoinMode distinguishes a regular meeting join from a webinar watch-only
// join, the top-level branch of the admission decision tree in spec.md §4.3.
type JoinMode string

const (
	JoinModeMeeting         JoinMode = ""
	JoinModeWebinarAttendee JoinMode = "webinar_attendee"
)

// JoinRequest is everything Room.Join needs to evaluate the admission
// decision tree for one connecting socket.
type JoinRequest struct {
	UserKey            string
	UserID             string
	SessionID          string
	DisplayName        string
	IsGuest            bool
	Sink               Sink
	JoinMode           JoinMode
	RequestHost        bool
	RequestGhost       bool
	MeetingInviteCode  string
	WebinarInviteCode  string
	WebinarSignedToken string // opaque token minted by internal/v1/webinar

	// AllowHostJoin and UseWaitingRoom carry the connecting principal's
	// resolved Policy (spec.md §4.1) into the admission decision tree, so
	// Room itself never needs to import the identity package.
	AllowHostJoin  bool
	UseWaitingRoom bool
}

// JoinStatus is the outcome spec.md §4.4's joinRoom ack reports.
type JoinStatus string

const (
	StatusJoined  JoinStatus = "joined"
	StatusWaiting JoinStatus = "waiting"
)

// JoinOutcome is the result of Room.Join: either the client is now seated
// (Status == StatusJoined, Client populated) or parked in the waiting room
// (Status == StatusWaiting, Reason populated).
type JoinOutcome struct {
	Status        JoinStatus
	Client        *Client
	Reason        string
	IsReconnect   bool
	WebinarRole   string
	HostUserID    string
	IsLocked      bool
	IsTtsDisabled bool
}
