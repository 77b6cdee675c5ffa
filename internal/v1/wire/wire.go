// Package wire defines the JSON envelope and event vocabulary carried over
// the client<->coordinator websocket connection. See SPEC_FULL.md §0 for why
// this is JSON rather than the protobuf framing the original snapshot of this
// codebase depended on.
package wire

import "encoding/json"

// Event names the wire-level verb of an inbound request or outbound event.
type Event string

// Inbound (client -> server) request events, §4.4.
const (
	EventJoinRoom                  Event = "joinRoom"
	EventCreateProducerTransport   Event = "createProducerTransport"
	EventCreateConsumerTransport   Event = "createConsumerTransport"
	EventConnectProducerTransport  Event = "connectProducerTransport"
	EventConnectConsumerTransport  Event = "connectConsumerTransport"
	EventProduce                   Event = "produce"
	EventConsume                   Event = "consume"
	EventResumeConsumer            Event = "resumeConsumer"
	EventRestartIce                Event = "restartIce"
	EventCloseProducer             Event = "closeProducer"
	EventToggleMute                Event = "toggleMute"
	EventToggleCamera              Event = "toggleCamera"
	EventUpdateDisplayName         Event = "updateDisplayName"
	EventSendReaction              Event = "sendReaction"
	EventHandRaisedRequest         Event = "handRaised"
	EventLockRoom                  Event = "lockRoom"
	EventLockChat                  Event = "lockChat"
	EventSetNoGuests               Event = "setNoGuests"
	EventSetTtsDisabled            Event = "setTtsDisabled"
	EventAdmitUser                 Event = "admitUser"
	EventRejectUser                Event = "rejectUser"
	EventKickUser                  Event = "kickUser"
	EventWebinarGetConfig          Event = "webinar:getConfig"
	EventWebinarUpdateConfig       Event = "webinar:updateConfig"
	EventWebinarGenerateLink       Event = "webinar:generateLink"
	EventWebinarRotateLink         Event = "webinar:rotateLink"
	EventGetProducers              Event = "getProducers"
	EventSendChat                  Event = "sendChat"
	EventGetRecentChats            Event = "getRecentChats"
)

// Outbound (server -> client) events, §4.4.
const (
	EventUserJoined              Event = "userJoined"
	EventUserLeft                Event = "userLeft"
	EventDisplayNameSnapshot     Event = "displayNameSnapshot"
	EventDisplayNameUpdated      Event = "displayNameUpdated"
	EventPendingUsersSnapshot    Event = "pendingUsersSnapshot"
	EventUserRequestedJoin       Event = "userRequestedJoin"
	EventUserAdmitted            Event = "userAdmitted"
	EventUserRejected            Event = "userRejected"
	EventPendingUserLeft         Event = "pendingUserLeft"
	EventJoinApproved            Event = "joinApproved"
	EventJoinRejected            Event = "joinRejected"
	EventWaitingRoomStatus       Event = "waitingRoomStatus"
	EventHostAssigned            Event = "hostAssigned"
	EventHostChanged             Event = "hostChanged"
	EventRoomLockChanged         Event = "roomLockChanged"
	EventNoGuestsChanged         Event = "noGuestsChanged"
	EventChatLockChanged         Event = "chatLockChanged"
	EventTtsDisabledChanged      Event = "ttsDisabledChanged"
	EventParticipantMuted        Event = "participantMuted"
	EventParticipantCameraOff    Event = "participantCameraOff"
	EventHandRaised              Event = "handRaised"
	EventHandRaisedSnapshot      Event = "handRaisedSnapshot"
	EventNewProducer             Event = "newProducer"
	EventProducerClosed          Event = "producerClosed"
	EventReaction                Event = "reaction"
	EventChatMessage             Event = "chatMessage"
	EventSetVideoQuality         Event = "setVideoQuality"
	EventKicked                  Event = "kicked"
	EventRoomClosed              Event = "roomClosed"
	EventRedirect                Event = "redirect"
	EventWebinarConfigChanged    Event = "webinar:configChanged"
	EventWebinarAttendeeCount    Event = "webinar:attendeeCountChanged"
	EventWebinarFeedChanged      Event = "webinar:feedChanged"
	EventOnTtsMessage            Event = "onTtsMessage"
)

// InboundMessage is a client->server request, acknowledged by reqId.
type InboundMessage struct {
	ReqID   string          `json:"reqId"`
	Event   Event           `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage acknowledges a single InboundMessage.
type AckMessage struct {
	ReqID  string `json:"reqId"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// OutboundMessage is a server->client fan-out event, unsolicited by the
// receiver (i.e. not an ack).
type OutboundMessage struct {
	Event   Event `json:"event"`
	Payload any   `json:"payload"`
}

// DecodePayload unmarshals an inbound message's raw payload into T. It mirrors
// the generic assertPayload helper the teacher repo used for its protobuf
// payload union, adapted to json.RawMessage.
func DecodePayload[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	err := json.Unmarshal(raw, &v)
	return v, err
}
