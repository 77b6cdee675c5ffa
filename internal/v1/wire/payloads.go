package wire

// Request payloads, one struct per inbound Event in §4.4's table.

type JoinRoomRequest struct {
	RoomID             string `json:"roomId"`
	SessionID          string `json:"sessionId"`
	DisplayName        string `json:"displayName,omitempty"`
	Ghost              bool   `json:"ghost,omitempty"`
	WebinarInviteCode  string `json:"webinarInviteCode,omitempty"`
	MeetingInviteCode  string `json:"meetingInviteCode,omitempty"`
	RequestHost        bool   `json:"requestHost,omitempty"`
	WebinarSignedToken string `json:"webinarSignedToken,omitempty"`
	// JoinMode is "webinar_attendee" when the client followed a webinar
	// link (spec.md §6's <base>/w/<roomId> route); empty means a regular
	// meeting join. Not in spec.md's minimal inputs table but required to
	// evaluate the two-branch admission tree of §4.3 — see SPEC_FULL.md §0.
	JoinMode string `json:"joinMode,omitempty"`
}

type ConnectTransportRequest struct {
	TransportID    string         `json:"transportId"`
	DtlsParameters map[string]any `json:"dtlsParameters"`
}

type ProduceRequest struct {
	TransportID   string         `json:"transportId"`
	Kind          string         `json:"kind"`
	RtpParameters map[string]any `json:"rtpParameters"`
	AppData       ProduceAppData `json:"appData"`
}

type ProduceAppData struct {
	Type   string `json:"type"`
	Paused bool   `json:"paused"`
}

type ConsumeRequest struct {
	ProducerID      string         `json:"producerId"`
	RtpCapabilities map[string]any `json:"rtpCapabilities"`
}

type ResumeConsumerRequest struct {
	ConsumerID string `json:"consumerId"`
}

type RestartIceRequest struct {
	Transport string `json:"transport"` // "producer" | "consumer"
}

type CloseProducerRequest struct {
	ProducerID string `json:"producerId"`
}

type ToggleMediaRequest struct {
	ProducerID string `json:"producerId"`
	Paused     bool   `json:"paused"`
}

type UpdateDisplayNameRequest struct {
	DisplayName string `json:"displayName"`
}

type SendReactionRequest struct {
	Kind  string `json:"kind"` // "emoji" | "asset"
	Value string `json:"value"`
	Label string `json:"label,omitempty"`
}

type HandRaisedRequest struct {
	Raised bool `json:"raised"`
}

type BoolPolicyRequest struct {
	Value bool `json:"value"`
}

type UserIDRequest struct {
	UserID string `json:"userId"`
}

type WebinarUpdateConfigRequest struct {
	PublicAccess  *bool  `json:"publicAccess,omitempty"`
	Locked        *bool  `json:"locked,omitempty"`
	MaxAttendees  *int   `json:"maxAttendees,omitempty"`
	InviteCode    string `json:"inviteCode,omitempty"`
}

type SendChatRequest struct {
	Content  string `json:"content"`
	TargetID string `json:"targetId,omitempty"`
}

// Response / result payloads.

type JoinRoomResult struct {
	RoomID            string          `json:"roomId"`
	RtpCapabilities   map[string]any  `json:"rtpCapabilities"`
	ExistingProducers []ProducerInfo  `json:"existingProducers"`
	Status            string          `json:"status"` // "joined" | "waiting"
	HostUserID        string          `json:"hostUserId"`
	IsLocked          bool            `json:"isLocked"`
	IsTtsDisabled     bool            `json:"isTtsDisabled"`
	WebinarRole       string          `json:"webinarRole,omitempty"`
}

type ProducerInfo struct {
	ProducerID string `json:"producerId"`
	OwnerID    string `json:"ownerUserId"`
	Kind       string `json:"kind"`
	Type       string `json:"type"`
	Paused     bool   `json:"paused"`
}

type TransportCreatedResult struct {
	ID             string         `json:"id"`
	IceParameters  map[string]any `json:"iceParameters"`
	IceCandidates  []any          `json:"iceCandidates"`
	DtlsParameters map[string]any `json:"dtlsParameters"`
}

type SuccessResult struct {
	Success bool `json:"success"`
}

type BoolPolicyResult struct {
	Success bool `json:"success"`
	Value   bool `json:"value"`
}

type ProducerIDResult struct {
	ProducerID string `json:"producerId"`
}

type ConsumeResult struct {
	ID            string         `json:"id"`
	ProducerID    string         `json:"producerId"`
	Kind          string         `json:"kind"`
	RtpParameters map[string]any `json:"rtpParameters"`
}

type RestartIceResult struct {
	IceParameters map[string]any `json:"iceParameters"`
}

type GetProducersResult struct {
	Producers []ProducerInfo `json:"producers"`
}

// Outbound event payloads.

type UserJoinedEvent struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

type UserLeftEvent struct {
	UserID string `json:"userId"`
}

type UserRequestedJoinEvent struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

type WaitingRoomStatusEvent struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type HostChangedEvent struct {
	HostUserID string `json:"hostUserId"`
}

type BoolChangedEvent struct {
	Locked bool `json:"locked,omitempty"`
	Value  bool `json:"value,omitempty"`
}

type ParticipantMediaEvent struct {
	UserID string `json:"userId"`
	Paused bool   `json:"paused"`
}

type HandRaisedEvent struct {
	UserID string `json:"userId"`
	Raised bool   `json:"raised"`
}

type NewProducerEvent struct {
	ProducerID string `json:"producerId"`
	OwnerID    string `json:"ownerUserId"`
	Kind       string `json:"kind"`
	Type       string `json:"type"`
}

type ProducerClosedEvent struct {
	ProducerID string `json:"producerId"`
}

type ReactionEvent struct {
	UserID    string `json:"userId"`
	Kind      string `json:"kind"`
	Value     string `json:"value"`
	Label     string `json:"label,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type ChatMessageEvent struct {
	ID         string `json:"id"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Content    string `json:"content"`
	Timestamp  int64  `json:"timestamp"`
	IsPrivate  bool   `json:"isPrivate"`
}

type SetVideoQualityEvent struct {
	Quality string `json:"quality"` // "standard" | "low"
}

type KickedEvent struct {
	Reason string `json:"reason"`
}

type RoomClosedEvent struct {
	Reason string `json:"reason"`
}

type RedirectEvent struct {
	RoomID string `json:"roomId"`
}

type WebinarConfigEvent struct {
	Enabled       bool   `json:"enabled"`
	PublicAccess  bool   `json:"publicAccess"`
	Locked        bool   `json:"locked"`
	MaxAttendees  int    `json:"maxAttendees"`
	LinkVersion   int    `json:"linkVersion"`
	FeedMode      string `json:"feedMode"`
}

type WebinarAttendeeCountEvent struct {
	Count int `json:"count"`
}

type WebinarFeedChangedEvent struct {
	VisibleProducers []string `json:"visibleProducerIds"`
}

type WebinarLinkResult struct {
	Link        string `json:"link"`
	LinkVersion int    `json:"linkVersion"`
}

type OnTtsMessageEvent struct {
	Text string `json:"text"`
}
