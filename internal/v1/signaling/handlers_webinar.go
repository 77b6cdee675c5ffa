package signaling

import (
	"context"
	"encoding/json"

	"github.com/huddlecore/signaling/internal/v1/errs"
	"github.com/huddlecore/signaling/internal/v1/room"
	"github.com/huddlecore/signaling/internal/v1/webinar"
	"github.com/huddlecore/signaling/internal/v1/wire"
)

func handleWebinarGetConfig(_ context.Context, s *Session, _ *Deps, _ json.RawMessage) (any, error) {
	return webinarConfigEvent(s.Room.WebinarConfigSnapshot()), nil
}

func handleWebinarUpdateConfig(_ context.Context, s *Session, _ *Deps, payload json.RawMessage) (any, error) {
	if err := requireAdmin(s); err != nil {
		return nil, err
	}
	req, err := wire.DecodePayload[wire.WebinarUpdateConfigRequest](payload)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, "invalid webinar:updateConfig payload", err)
	}

	u := room.WebinarUpdate{
		PublicAccess: req.PublicAccess,
		Locked:       req.Locked,
		MaxAttendees: req.MaxAttendees,
	}
	if req.InviteCode != "" {
		u.InviteCode = &req.InviteCode
	}
	// Enabling the webinar surface is an explicit, separate admin action
	// (webinar:generateLink also flips it on); updateConfig alone never
	// turns it on for a room that hasn't generated a link yet.
	cfg := s.Room.UpdateWebinarConfig(u)

	event := webinarConfigEvent(cfg)
	s.Room.BroadcastAll(string(wire.EventWebinarConfigChanged), event)
	return event, nil
}

func handleWebinarGenerateLink(_ context.Context, s *Session, d *Deps, _ json.RawMessage) (any, error) {
	if err := requireAdmin(s); err != nil {
		return nil, err
	}
	if d.WebinarMinter == nil {
		return nil, errs.New(errs.KindUnknown, "webinar links are not configured")
	}

	enabled := true
	cfg := s.Room.UpdateWebinarConfig(room.WebinarUpdate{Enabled: &enabled})

	token, err := d.WebinarMinter.Mint(s.RoomID, s.UserID, cfg.LinkVersion)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, "failed to mint webinar link", err)
	}

	s.Room.BroadcastAll(string(wire.EventWebinarConfigChanged), webinarConfigEvent(cfg))
	return wire.WebinarLinkResult{
		Link:        webinar.Link(d.BaseURL, s.RoomID, token),
		LinkVersion: cfg.LinkVersion,
	}, nil
}

func handleWebinarRotateLink(_ context.Context, s *Session, d *Deps, _ json.RawMessage) (any, error) {
	if err := requireAdmin(s); err != nil {
		return nil, err
	}
	if d.WebinarMinter == nil {
		return nil, errs.New(errs.KindUnknown, "webinar links are not configured")
	}

	version := s.Room.RotateWebinarLink()
	token, err := d.WebinarMinter.Mint(s.RoomID, s.UserID, version)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, "failed to mint webinar link", err)
	}

	s.Room.BroadcastAll(string(wire.EventWebinarConfigChanged), webinarConfigEvent(s.Room.WebinarConfigSnapshot()))
	return wire.WebinarLinkResult{
		Link:        webinar.Link(d.BaseURL, s.RoomID, token),
		LinkVersion: version,
	}, nil
}

func webinarConfigEvent(cfg room.WebinarConfig) wire.WebinarConfigEvent {
	return wire.WebinarConfigEvent{
		Enabled:      cfg.Enabled,
		PublicAccess: cfg.PublicAccess,
		Locked:       cfg.Locked,
		MaxAttendees: cfg.MaxAttendees,
		LinkVersion:  cfg.LinkVersion,
		FeedMode:     cfg.FeedMode,
	}
}
