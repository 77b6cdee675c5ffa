package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/huddlecore/signaling/internal/v1/errs"
	"github.com/huddlecore/signaling/internal/v1/identity"
	"github.com/huddlecore/signaling/internal/v1/logging"
	"github.com/huddlecore/signaling/internal/v1/metrics"
	"github.com/huddlecore/signaling/internal/v1/room"
	"github.com/huddlecore/signaling/internal/v1/sfu"
	"github.com/huddlecore/signaling/internal/v1/webinar"
	"github.com/huddlecore/signaling/internal/v1/wire"
	"go.uber.org/zap"
)

// Deps bundles every external collaborator a handler may need: the process-
// wide room registry, the SFU router client, the webinar link minter, and
// the policy table. One Deps is shared by every Session.
type Deps struct {
	Registry      *room.Registry
	SFU           sfu.Router
	WebinarMinter *webinar.Minter
	Policies      identity.PolicyTable
	BaseURL       string
}

// HandlerFunc is the generic shape every inbound event binds to, directly
// generalizing the teacher's assertPayload[T any] + per-event handler
// split (internal/v1/session/handlers.go, handlers_webrtc.go).
type HandlerFunc func(ctx context.Context, s *Session, d *Deps, payload json.RawMessage) (any, error)

// Router dispatches an InboundMessage to its bound HandlerFunc and produces
// the AckMessage the caller writes back over the socket.
type Router struct {
	handlers map[wire.Event]HandlerFunc
}

// NewRouter builds the full handler table of spec.md §4.4.
func NewRouter() *Router {
	r := &Router{handlers: make(map[wire.Event]HandlerFunc)}
	r.register()
	return r
}

func (r *Router) register() {
	r.handlers[wire.EventJoinRoom] = handleJoinRoom
	r.handlers[wire.EventCreateProducerTransport] = handleCreateProducerTransport
	r.handlers[wire.EventCreateConsumerTransport] = handleCreateConsumerTransport
	r.handlers[wire.EventConnectProducerTransport] = handleConnectProducerTransport
	r.handlers[wire.EventConnectConsumerTransport] = handleConnectConsumerTransport
	r.handlers[wire.EventProduce] = handleProduce
	r.handlers[wire.EventConsume] = handleConsume
	r.handlers[wire.EventResumeConsumer] = handleResumeConsumer
	r.handlers[wire.EventRestartIce] = handleRestartIce
	r.handlers[wire.EventCloseProducer] = handleCloseProducer
	r.handlers[wire.EventToggleMute] = handleToggleMute
	r.handlers[wire.EventToggleCamera] = handleToggleCamera
	r.handlers[wire.EventUpdateDisplayName] = handleUpdateDisplayName
	r.handlers[wire.EventSendReaction] = handleSendReaction
	r.handlers[wire.EventHandRaisedRequest] = handleHandRaised
	r.handlers[wire.EventLockRoom] = handleLockRoom
	r.handlers[wire.EventLockChat] = handleLockChat
	r.handlers[wire.EventSetNoGuests] = handleSetNoGuests
	r.handlers[wire.EventSetTtsDisabled] = handleSetTtsDisabled
	r.handlers[wire.EventAdmitUser] = handleAdmitUser
	r.handlers[wire.EventRejectUser] = handleRejectUser
	r.handlers[wire.EventKickUser] = handleKickUser
	r.handlers[wire.EventWebinarGetConfig] = handleWebinarGetConfig
	r.handlers[wire.EventWebinarUpdateConfig] = handleWebinarUpdateConfig
	r.handlers[wire.EventWebinarGenerateLink] = handleWebinarGenerateLink
	r.handlers[wire.EventWebinarRotateLink] = handleWebinarRotateLink
	r.handlers[wire.EventGetProducers] = handleGetProducers
	r.handlers[wire.EventSendChat] = handleSendChat
	r.handlers[wire.EventGetRecentChats] = handleGetRecentChats
}

// Dispatch routes one InboundMessage to its handler and builds the ack.
// Fan-out ordering follows spec.md §5: handlers mutate room state and emit
// events to the room channel themselves, before returning their ack result
// here, so subscribers observe the state change before the requester
// observes success.
func (r *Router) Dispatch(ctx context.Context, s *Session, d *Deps, msg wire.InboundMessage) wire.AckMessage {
	h, ok := r.handlers[msg.Event]
	if !ok {
		return wire.AckMessage{ReqID: msg.ReqID, Error: "unknown event: " + string(msg.Event)}
	}

	if msg.Event != wire.EventJoinRoom && !s.InRoom() {
		metrics.WebsocketEvents.WithLabelValues(string(msg.Event), "rejected").Inc()
		return wire.AckMessage{ReqID: msg.ReqID, Error: "not in a room"}
	}

	start := time.Now()
	result, err := h(ctx, s, d, msg.Payload)
	metrics.MessageProcessingDuration.WithLabelValues(string(msg.Event)).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.WebsocketEvents.WithLabelValues(string(msg.Event), "error").Inc()
		logging.Warn(ctx, "handler returned error", zap.String("event", string(msg.Event)), zap.Error(err))
		return wire.AckMessage{ReqID: msg.ReqID, Error: errMessage(err)}
	}

	metrics.WebsocketEvents.WithLabelValues(string(msg.Event), "success").Inc()
	return wire.AckMessage{ReqID: msg.ReqID, Result: result}
}

func errMessage(err error) string {
	var ce *errs.CoordinatorError
	if errors.As(err, &ce) {
		return ce.Message
	}
	return err.Error()
}

func requireAdmin(s *Session) error {
	if s.Client == nil || !s.Client.IsAdmin {
		return errs.PermissionDenied("admin privileges required")
	}
	return nil
}
