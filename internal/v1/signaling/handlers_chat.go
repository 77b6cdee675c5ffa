package signaling

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/huddlecore/signaling/internal/v1/chatcmd"
	"github.com/huddlecore/signaling/internal/v1/errs"
	"github.com/huddlecore/signaling/internal/v1/reactions"
	"github.com/huddlecore/signaling/internal/v1/room"
	"github.com/huddlecore/signaling/internal/v1/wire"
)

func handleSendReaction(_ context.Context, s *Session, _ *Deps, payload json.RawMessage) (any, error) {
	req, err := wire.DecodePayload[wire.SendReactionRequest](payload)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, "invalid sendReaction payload", err)
	}
	if !reactions.Validate(reactions.Kind(req.Kind), req.Value, req.Label) {
		return nil, errs.PermissionDenied("reaction not permitted")
	}

	s.Room.BroadcastExcluding(string(wire.EventReaction), wire.ReactionEvent{
		UserID:    s.UserID,
		Kind:      req.Kind,
		Value:     req.Value,
		Label:     req.Label,
		Timestamp: time.Now().UnixMilli(),
	}, s.UserID)
	return wire.SuccessResult{Success: true}, nil
}

// handleSendChat implements §4.4's sendChat and §6's slash-command syntax:
// a leading /mute, /cam, /hand, or /tts token is scanned off and applied as
// a local toggle or TTS broadcast instead of being delivered as a visible
// chat message.
func handleSendChat(_ context.Context, s *Session, _ *Deps, payload json.RawMessage) (any, error) {
	req, err := wire.DecodePayload[wire.SendChatRequest](payload)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, "invalid sendChat payload", err)
	}
	if s.Room.ChatLocked() && requireAdmin(s) != nil {
		return nil, errs.PermissionDenied("chat is locked")
	}

	cmd := chatcmd.Parse(req.Content)
	switch cmd.Kind {
	case chatcmd.KindMute:
		return toggleFromChat(s, "audio", string(wire.EventParticipantMuted))
	case chatcmd.KindCam:
		return toggleFromChat(s, "video", string(wire.EventParticipantCameraOff))
	case chatcmd.KindHand:
		return handleChatHandToggle(s)
	case chatcmd.KindTTS:
		if s.Room.TtsDisabled() {
			return nil, errs.PermissionDenied("text-to-speech is disabled in this room")
		}
		s.Room.BroadcastAll(string(wire.EventOnTtsMessage), wire.OnTtsMessageEvent{Text: cmd.Arg})
		return wire.SuccessResult{Success: true}, nil
	default:
		return sendPlainChat(s, req)
	}
}

func toggleFromChat(s *Session, kind, event string) (any, error) {
	p, ok := s.Room.ToggleOwnKind(s.UserID, kind)
	if !ok {
		return nil, errs.New(errs.KindUnknown, "no matching producer to toggle")
	}
	s.Room.BroadcastAll(event, wire.ParticipantMediaEvent{UserID: s.UserID, Paused: p.Paused})
	return wire.SuccessResult{Success: true}, nil
}

func handleChatHandToggle(s *Session) (any, error) {
	c, ok := s.Room.Client(s.UserID)
	if !ok {
		return nil, errs.New(errs.KindUnknown, "not seated in room")
	}
	raised := !c.HandRaised
	s.Room.SetHandRaised(s.UserID, raised)
	s.Room.BroadcastAll(string(wire.EventHandRaised), wire.HandRaisedEvent{UserID: s.UserID, Raised: raised})
	return wire.SuccessResult{Success: true}, nil
}

func sendPlainChat(s *Session, req wire.SendChatRequest) (any, error) {
	entry := room.ChatEntry{
		ID:         uuid.NewString(),
		SenderID:   s.UserID,
		SenderName: s.DisplayName,
		Content:    req.Content,
		Timestamp:  time.Now().UnixMilli(),
		IsPrivate:  req.TargetID != "",
	}
	event := wire.ChatMessageEvent{
		ID:         entry.ID,
		SenderID:   entry.SenderID,
		SenderName: entry.SenderName,
		Content:    entry.Content,
		Timestamp:  entry.Timestamp,
		IsPrivate:  entry.IsPrivate,
	}

	if entry.IsPrivate {
		s.Room.SendTo(req.TargetID, string(wire.EventChatMessage), event)
		s.Room.SendTo(s.UserID, string(wire.EventChatMessage), event)
	} else {
		s.Room.BroadcastAll(string(wire.EventChatMessage), event)
	}
	s.Room.AppendChatHistory(entry)
	return wire.SuccessResult{Success: true}, nil
}

func handleGetRecentChats(_ context.Context, s *Session, _ *Deps, _ json.RawMessage) (any, error) {
	history := s.Room.RecentChats()
	out := make([]wire.ChatMessageEvent, 0, len(history))
	for _, e := range history {
		out = append(out, wire.ChatMessageEvent{
			ID:         e.ID,
			SenderID:   e.SenderID,
			SenderName: e.SenderName,
			Content:    e.Content,
			Timestamp:  e.Timestamp,
			IsPrivate:  e.IsPrivate,
		})
	}
	return out, nil
}
