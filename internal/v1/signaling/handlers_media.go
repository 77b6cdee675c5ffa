package signaling

import (
	"context"
	"encoding/json"

	"github.com/huddlecore/signaling/internal/v1/errs"
	"github.com/huddlecore/signaling/internal/v1/wire"
)

func handleCreateProducerTransport(ctx context.Context, s *Session, d *Deps, _ json.RawMessage) (any, error) {
	return createTransport(ctx, s, d, "send")
}

func handleCreateConsumerTransport(ctx context.Context, s *Session, d *Deps, _ json.RawMessage) (any, error) {
	return createTransport(ctx, s, d, "recv")
}

func createTransport(ctx context.Context, s *Session, d *Deps, direction string) (any, error) {
	tp, err := d.SFU.CreateTransport(ctx, s.ChannelID, s.UserID, direction)
	if err != nil {
		return nil, err
	}
	return wire.TransportCreatedResult{
		ID:             tp.ID,
		IceParameters:  tp.IceParameters,
		IceCandidates:  tp.IceCandidates,
		DtlsParameters: tp.DtlsParameters,
	}, nil
}

func handleConnectProducerTransport(ctx context.Context, s *Session, d *Deps, payload json.RawMessage) (any, error) {
	return connectTransport(ctx, d, payload)
}

func handleConnectConsumerTransport(ctx context.Context, s *Session, d *Deps, payload json.RawMessage) (any, error) {
	return connectTransport(ctx, d, payload)
}

func connectTransport(ctx context.Context, d *Deps, payload json.RawMessage) (any, error) {
	req, err := wire.DecodePayload[wire.ConnectTransportRequest](payload)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, "invalid connectTransport payload", err)
	}
	if err := d.SFU.ConnectTransport(ctx, req.TransportID, req.DtlsParameters); err != nil {
		return nil, err
	}
	return wire.SuccessResult{Success: true}, nil
}

func handleProduce(ctx context.Context, s *Session, d *Deps, payload json.RawMessage) (any, error) {
	req, err := wire.DecodePayload[wire.ProduceRequest](payload)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, "invalid produce payload", err)
	}

	producerID, err := d.SFU.Produce(ctx, req.TransportID, req.Kind, req.RtpParameters)
	if err != nil {
		return nil, err
	}

	p, feedChanged, err := s.Room.Produce(s.UserID, req.Kind, req.AppData.Type, req.AppData.Paused)
	if err != nil {
		return nil, err
	}
	p.ID = producerID

	s.Room.BroadcastProducerEvent(string(wire.EventNewProducer), s.UserID, p.ID, wire.NewProducerEvent{
		ProducerID: p.ID, OwnerID: p.OwnerUserID, Kind: p.Kind, Type: p.Type,
	})
	if feedChanged {
		s.Room.BroadcastToWebinarAttendees(string(wire.EventWebinarFeedChanged), wire.WebinarFeedChangedEvent{VisibleProducers: s.Room.VisibleProducerIDs()})
	}

	return wire.ProducerIDResult{ProducerID: p.ID}, nil
}

func handleConsume(ctx context.Context, s *Session, d *Deps, payload json.RawMessage) (any, error) {
	req, err := wire.DecodePayload[wire.ConsumeRequest](payload)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, "invalid consume payload", err)
	}
	cp, err := d.SFU.Consume(ctx, req.ProducerID, req.RtpCapabilities)
	if err != nil {
		return nil, err
	}
	return wire.ConsumeResult{
		ID:            cp.ID,
		ProducerID:    req.ProducerID,
		Kind:          cp.Kind,
		RtpParameters: cp.RtpParameters,
	}, nil
}

func handleResumeConsumer(ctx context.Context, s *Session, d *Deps, payload json.RawMessage) (any, error) {
	req, err := wire.DecodePayload[wire.ResumeConsumerRequest](payload)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, "invalid resumeConsumer payload", err)
	}
	if err := d.SFU.ResumeConsumer(ctx, req.ConsumerID); err != nil {
		return nil, err
	}
	return wire.SuccessResult{Success: true}, nil
}

func handleRestartIce(ctx context.Context, s *Session, d *Deps, payload json.RawMessage) (any, error) {
	req, err := wire.DecodePayload[wire.RestartIceRequest](payload)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, "invalid restartIce payload", err)
	}
	ice, err := d.SFU.RestartIce(ctx, req.Transport)
	if err != nil {
		return nil, err
	}
	return wire.RestartIceResult{IceParameters: ice}, nil
}

func handleCloseProducer(ctx context.Context, s *Session, d *Deps, payload json.RawMessage) (any, error) {
	req, err := wire.DecodePayload[wire.CloseProducerRequest](payload)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, "invalid closeProducer payload", err)
	}
	feedChanged, err := s.Room.CloseProducer(s.UserID, req.ProducerID)
	if err != nil {
		return nil, err
	}
	if derr := d.SFU.CloseProducer(ctx, req.ProducerID); derr != nil {
		return nil, derr
	}

	s.Room.BroadcastProducerEvent(string(wire.EventProducerClosed), s.UserID, req.ProducerID, wire.ProducerClosedEvent{ProducerID: req.ProducerID})
	if feedChanged {
		s.Room.BroadcastToWebinarAttendees(string(wire.EventWebinarFeedChanged), wire.WebinarFeedChangedEvent{VisibleProducers: s.Room.VisibleProducerIDs()})
	}
	return wire.SuccessResult{Success: true}, nil
}

func handleToggleMute(_ context.Context, s *Session, _ *Deps, payload json.RawMessage) (any, error) {
	return toggleMedia(s, payload, string(wire.EventParticipantMuted))
}

func handleToggleCamera(_ context.Context, s *Session, _ *Deps, payload json.RawMessage) (any, error) {
	return toggleMedia(s, payload, string(wire.EventParticipantCameraOff))
}

func toggleMedia(s *Session, payload json.RawMessage, event string) (any, error) {
	req, err := wire.DecodePayload[wire.ToggleMediaRequest](payload)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, "invalid toggle payload", err)
	}
	if _, err := s.Room.TogglePause(s.UserID, req.ProducerID, req.Paused); err != nil {
		return nil, err
	}
	s.Room.BroadcastAll(event, wire.ParticipantMediaEvent{UserID: s.UserID, Paused: req.Paused})
	return wire.SuccessResult{Success: true}, nil
}

func handleGetProducers(_ context.Context, s *Session, _ *Deps, _ json.RawMessage) (any, error) {
	producers := s.Room.Producers(s.UserID)
	out := make([]wire.ProducerInfo, 0, len(producers))
	for _, p := range producers {
		out = append(out, wire.ProducerInfo{ProducerID: p.ID, OwnerID: p.OwnerUserID, Kind: p.Kind, Type: p.Type, Paused: p.Paused})
	}
	return wire.GetProducersResult{Producers: out}, nil
}
