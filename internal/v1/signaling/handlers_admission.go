package signaling

import (
	"context"
	"encoding/json"

	"github.com/huddlecore/signaling/internal/v1/errs"
	"github.com/huddlecore/signaling/internal/v1/identity"
	"github.com/huddlecore/signaling/internal/v1/room"
	"github.com/huddlecore/signaling/internal/v1/wire"
)

func handleJoinRoom(_ context.Context, s *Session, d *Deps, payload json.RawMessage) (any, error) {
	req, err := wire.DecodePayload[wire.JoinRoomRequest](payload)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, "invalid joinRoom payload", err)
	}
	if req.RoomID == "" {
		return nil, errs.New(errs.KindUnknown, "roomId is required")
	}
	if req.SessionID != s.SessionID {
		return nil, errs.PermissionDenied("session id mismatch")
	}

	channelID := room.ChannelID(s.Namespace, req.RoomID)
	joinMode := room.JoinMode(req.JoinMode)

	if joinMode != room.JoinModeWebinarAttendee && d.Registry.IsDraining() && !req.RequestHost {
		return nil, errs.PermissionDenied("room is draining")
	}

	rm := d.Registry.GetOrCreateRoom(channelID)

	displayName := identity.SanitizeDisplayName(req.DisplayName)
	if displayName == "" {
		displayName = s.DisplayName
	}

	if joinMode == room.JoinModeWebinarAttendee && req.WebinarSignedToken != "" && d.WebinarMinter != nil {
		if _, verr := d.WebinarMinter.Verify(req.WebinarSignedToken, req.RoomID, rm.WebinarLinkVersion()); verr != nil {
			return nil, errs.PermissionDenied("invalid or expired webinar link")
		}
	}

	outcome, err := rm.Join(room.JoinRequest{
		UserKey:            s.UserKey,
		UserID:             s.UserID,
		SessionID:          s.SessionID,
		DisplayName:        displayName,
		IsGuest:            s.IsGuest,
		Sink:               s,
		JoinMode:           joinMode,
		RequestHost:        req.RequestHost,
		RequestGhost:       req.Ghost,
		MeetingInviteCode:  req.MeetingInviteCode,
		WebinarInviteCode:  req.WebinarInviteCode,
		WebinarSignedToken: req.WebinarSignedToken,
		AllowHostJoin:      s.Policy.AllowHostJoin,
		UseWaitingRoom:     s.Policy.UseWaitingRoom,
	})
	if err != nil {
		return nil, err
	}

	if outcome.Status == room.StatusWaiting {
		s.ChannelID = channelID
		s.RoomID = req.RoomID
		rm.BroadcastAdmins(string(wire.EventUserRequestedJoin), wire.UserRequestedJoinEvent{
			UserID:      s.UserKey,
			DisplayName: displayName,
		})
		if !rm.HasAdmin() {
			s.Send(string(wire.EventWaitingRoomStatus), wire.WaitingRoomStatusEvent{Status: "waiting", Reason: "no one to let you in"})
		}
		return wire.JoinRoomResult{
			RoomID:        req.RoomID,
			Status:        string(room.StatusWaiting),
			HostUserID:    outcome.HostUserID,
			IsLocked:      outcome.IsLocked,
			IsTtsDisabled: outcome.IsTtsDisabled,
		}, nil
	}

	s.Room = rm
	s.Client = outcome.Client
	s.ChannelID = channelID
	s.RoomID = req.RoomID

	if !outcome.IsReconnect {
		if outcome.Client.Mode == room.ModeGhost {
			rm.BroadcastToGhosts(string(wire.EventUserJoined), wire.UserJoinedEvent{
				UserID: outcome.Client.UserID, DisplayName: outcome.Client.DisplayName, Role: string(outcome.Client.Mode),
			}, outcome.Client.UserID)
		} else {
			rm.BroadcastExcluding(string(wire.EventUserJoined), wire.UserJoinedEvent{
				UserID: outcome.Client.UserID, DisplayName: outcome.Client.DisplayName, Role: roleOf(outcome.Client),
			}, outcome.Client.UserID)
		}
	}

	producers := rm.Producers(s.UserID)
	existing := make([]wire.ProducerInfo, 0, len(producers))
	for _, p := range producers {
		existing = append(existing, wire.ProducerInfo{ProducerID: p.ID, OwnerID: p.OwnerUserID, Kind: p.Kind, Type: p.Type, Paused: p.Paused})
	}

	result := wire.JoinRoomResult{
		RoomID:            req.RoomID,
		ExistingProducers: existing,
		Status:            string(room.StatusJoined),
		HostUserID:        outcome.HostUserID,
		IsLocked:          outcome.IsLocked,
		IsTtsDisabled:     outcome.IsTtsDisabled,
		WebinarRole:       outcome.WebinarRole,
	}
	return result, nil
}

func roleOf(c *room.Client) string {
	if c.IsAdmin {
		return "admin"
	}
	return string(c.Mode)
}

func handleAdmitUser(_ context.Context, s *Session, _ *Deps, payload json.RawMessage) (any, error) {
	if err := requireAdmin(s); err != nil {
		return nil, err
	}
	req, err := wire.DecodePayload[wire.UserIDRequest](payload)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, "invalid admitUser payload", err)
	}
	p, ok := s.Room.AdmitPending(req.UserID)
	if !ok {
		return nil, errs.New(errs.KindUnknown, "no such pending user")
	}
	if p.Sink != nil {
		p.Sink.Send(string(wire.EventJoinApproved), wire.SuccessResult{Success: true})
	}
	return wire.SuccessResult{Success: true}, nil
}

func handleRejectUser(_ context.Context, s *Session, _ *Deps, payload json.RawMessage) (any, error) {
	if err := requireAdmin(s); err != nil {
		return nil, err
	}
	req, err := wire.DecodePayload[wire.UserIDRequest](payload)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, "invalid rejectUser payload", err)
	}
	p, ok := s.Room.RejectPending(req.UserID)
	if !ok {
		return nil, errs.New(errs.KindUnknown, "no such pending user")
	}
	if p.Sink != nil {
		p.Sink.Send(string(wire.EventJoinRejected), wire.RoomClosedEvent{Reason: "rejected by host"})
	}
	return wire.SuccessResult{Success: true}, nil
}

func handleKickUser(_ context.Context, s *Session, _ *Deps, payload json.RawMessage) (any, error) {
	if err := requireAdmin(s); err != nil {
		return nil, err
	}
	req, err := wire.DecodePayload[wire.UserIDRequest](payload)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, "invalid kickUser payload", err)
	}
	c := s.Room.Kick(req.UserID)
	if c == nil {
		return nil, errs.New(errs.KindUnknown, "user not found")
	}
	if c.Sink != nil {
		c.Sink.Send(string(wire.EventKicked), wire.KickedEvent{Reason: "removed by host"})
	}
	s.Room.BroadcastExcluding(string(wire.EventUserLeft), wire.UserLeftEvent{UserID: c.UserID}, c.UserID)
	maybeBroadcastHostChange(s.Room)
	return wire.SuccessResult{Success: true}, nil
}

func handleLockRoom(_ context.Context, s *Session, _ *Deps, payload json.RawMessage) (any, error) {
	if err := requireAdmin(s); err != nil {
		return nil, err
	}
	req, err := wire.DecodePayload[wire.BoolPolicyRequest](payload)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, "invalid lockRoom payload", err)
	}
	s.Room.SetLocked(req.Value)
	s.Room.BroadcastAll(string(wire.EventRoomLockChanged), wire.BoolChangedEvent{Locked: req.Value, Value: req.Value})
	return wire.BoolPolicyResult{Success: true, Value: req.Value}, nil
}

func handleLockChat(_ context.Context, s *Session, _ *Deps, payload json.RawMessage) (any, error) {
	if err := requireAdmin(s); err != nil {
		return nil, err
	}
	req, err := wire.DecodePayload[wire.BoolPolicyRequest](payload)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, "invalid lockChat payload", err)
	}
	s.Room.SetChatLocked(req.Value)
	s.Room.BroadcastAll(string(wire.EventChatLockChanged), wire.BoolChangedEvent{Value: req.Value})
	return wire.BoolPolicyResult{Success: true, Value: req.Value}, nil
}

func handleSetNoGuests(_ context.Context, s *Session, _ *Deps, payload json.RawMessage) (any, error) {
	if err := requireAdmin(s); err != nil {
		return nil, err
	}
	req, err := wire.DecodePayload[wire.BoolPolicyRequest](payload)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, "invalid setNoGuests payload", err)
	}
	s.Room.SetNoGuests(req.Value)
	s.Room.BroadcastAll(string(wire.EventNoGuestsChanged), wire.BoolChangedEvent{Value: req.Value})
	return wire.BoolPolicyResult{Success: true, Value: req.Value}, nil
}

func handleSetTtsDisabled(_ context.Context, s *Session, _ *Deps, payload json.RawMessage) (any, error) {
	if err := requireAdmin(s); err != nil {
		return nil, err
	}
	req, err := wire.DecodePayload[wire.BoolPolicyRequest](payload)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, "invalid setTtsDisabled payload", err)
	}
	s.Room.SetTtsDisabled(req.Value)
	s.Room.BroadcastAll(string(wire.EventTtsDisabledChanged), wire.BoolChangedEvent{Value: req.Value})
	return wire.BoolPolicyResult{Success: true, Value: req.Value}, nil
}

func handleUpdateDisplayName(_ context.Context, s *Session, _ *Deps, payload json.RawMessage) (any, error) {
	req, err := wire.DecodePayload[wire.UpdateDisplayNameRequest](payload)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, "invalid updateDisplayName payload", err)
	}
	name := identity.SanitizeDisplayName(req.DisplayName)
	if name == "" {
		return nil, errs.PermissionDenied("display name cannot be empty")
	}
	if _, ok := s.Room.UpdateDisplayName(s.UserID, name); !ok {
		return nil, errs.New(errs.KindUnknown, "not seated in room")
	}
	s.DisplayName = name
	s.Room.BroadcastAll(string(wire.EventDisplayNameUpdated), wire.UserJoinedEvent{UserID: s.UserID, DisplayName: name})
	return wire.SuccessResult{Success: true}, nil
}

func handleHandRaised(_ context.Context, s *Session, _ *Deps, payload json.RawMessage) (any, error) {
	req, err := wire.DecodePayload[wire.HandRaisedRequest](payload)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, "invalid handRaised payload", err)
	}
	if !s.Room.SetHandRaised(s.UserID, req.Raised) {
		return nil, errs.New(errs.KindUnknown, "not seated in room")
	}
	s.Room.BroadcastAll(string(wire.EventHandRaised), wire.HandRaisedEvent{UserID: s.UserID, Raised: req.Raised})
	return wire.SuccessResult{Success: true}, nil
}

// maybeBroadcastHostChange fans out hostChanged/hostAssigned if a promotion
// happened as a side effect of the caller's operation (kick, disconnect).
// Room itself performs the promotion; this just re-reads and re-announces
// the current host, which is idempotent if nothing changed.
func maybeBroadcastHostChange(r *room.Room) {
	host := r.HostUserID()
	if host == "" {
		return
	}
	r.SendTo(host, string(wire.EventHostAssigned), wire.HostChangedEvent{HostUserID: host})
	r.BroadcastAll(string(wire.EventHostChanged), wire.HostChangedEvent{HostUserID: host})
}
