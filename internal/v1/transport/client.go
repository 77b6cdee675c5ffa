package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/huddlecore/signaling/internal/v1/logging"
	"github.com/huddlecore/signaling/internal/v1/metrics"
	"github.com/huddlecore/signaling/internal/v1/room"
	"github.com/huddlecore/signaling/internal/v1/signaling"
	"github.com/huddlecore/signaling/internal/v1/wire"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// lowPriorityEvents are fanned out over the bulk send channel; everything
// else (state changes, admission results, signaling acks) goes over
// prioritySend so a chat burst never delays a kick or an SDP exchange,
// mirroring the teacher's proto-payload-type switch in SendProto.
var lowPriorityEvents = map[wire.Event]bool{
	wire.EventChatMessage: true,
	wire.EventReaction:    true,
}

// Client binds one accepted websocket connection to a signaling.Session. It
// implements signaling.Conn so a Session can call Send without knowing
// anything about gorilla/websocket.
type Client struct {
	conn    wsConnection
	session *signaling.Session

	send         chan []byte // bulk messages: chat, reactions
	prioritySend chan []byte // state changes, admission results, signaling acks

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewClient wires a websocket connection, a Session, and the buffered send
// channels together. The Session's Conn field is set to the returned Client
// so room broadcasts reach this socket via Session.Send -> Client.Send.
func NewClient(conn wsConnection, session *signaling.Session) *Client {
	c := &Client{
		conn:         conn,
		session:      session,
		send:         make(chan []byte, 256),
		prioritySend: make(chan []byte, 256),
	}
	session.Conn = c
	return c
}

// Send implements signaling.Conn, marshaling an OutboundMessage to JSON and
// queueing it on the appropriate channel. A full channel drops the message
// rather than blocking the room's broadcast loop, matching the teacher's
// "drop under backpressure" behavior for SendProto.
func (c *Client) Send(event wire.Event, payload any) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return
	}
	c.mu.RUnlock()

	data, err := json.Marshal(wire.OutboundMessage{Event: event, Payload: payload})
	if err != nil {
		logging.Error(context.Background(), "failed to marshal outbound message", zap.String("event", string(event)), zap.Error(err))
		return
	}

	ch := c.prioritySend
	if lowPriorityEvents[event] {
		ch = c.send
	}
	select {
	case ch <- data:
	default:
		logging.Warn(context.Background(), "client send channel full, dropping message", zap.String("event", string(event)))
	}
}

// writeAck queues a single request's acknowledgement. Acks always take the
// priority channel: they are a direct response to something the caller is
// actively waiting on.
func (c *Client) writeAck(ack wire.AckMessage) {
	data, err := json.Marshal(ack)
	if err != nil {
		logging.Error(context.Background(), "failed to marshal ack", zap.Error(err))
		return
	}
	select {
	case c.prioritySend <- data:
	default:
		logging.Warn(context.Background(), "client priority channel full, dropping ack", zap.String("reqId", ack.ReqID))
	}
}

// Close marks the client closed and closes the underlying socket; safe to
// call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		c.conn.Close()
	})
}

// readPump decodes InboundMessages, dispatches them through the router, and
// queues the resulting ack. It owns the disconnect side effect: on read
// error (client went away, or we closed it), it calls disconnect, which
// removes the room membership once the disconnect-grace window elapses,
// matching the teacher's readPump -> HandleClientDisconnect shape.
func (c *Client) readPump(router *signaling.Router, deps *signaling.Deps) {
	defer func() {
		c.disconnect()
		c.Close()
		metrics.DecConnection()
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg wire.InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logging.Warn(context.Background(), "failed to unmarshal inbound message", zap.Error(err))
			continue
		}

		ctx := context.Background()
		ack := router.Dispatch(ctx, c.session, deps, msg)
		c.writeAck(ack)
	}
}

// disconnect tears down this socket's room membership, if any, on a grace
// window so a transport flap (spec.md §9's reconnect engine) doesn't cost
// the client its seat.
func (c *Client) disconnect() {
	s := c.session
	if s == nil || !s.InRoom() {
		return
	}
	userID, socketID, r := s.UserID, s.SessionID, s.Room
	r.Disconnect(context.Background(), userID, socketID, false, func(departed *room.Client, graceExpired bool) {
		if departed == nil {
			return
		}
		r.BroadcastExcluding(string(wire.EventUserLeft), wire.UserLeftEvent{UserID: departed.UserID}, departed.UserID)
		broadcastHostChange(r)
	})
}

// writePump drains both send channels, preferring prioritySend, and writes
// each frame as a single websocket TextMessage (this coordinator speaks JSON,
// not the teacher's binary protobuf frames).
func (c *Client) writePump() {
	defer c.conn.Close()

	for {
		// Write any queued priority frame before considering bulk traffic.
		select {
		case message, ok := <-c.prioritySend:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logging.Error(context.Background(), "error writing priority message", zap.Error(err))
				return
			}
			continue
		default:
		}

		select {
		case message, ok := <-c.prioritySend:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logging.Error(context.Background(), "error writing priority message", zap.Error(err))
				return
			}
		case message, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logging.Error(context.Background(), "error writing message", zap.Error(err))
				return
			}
		}
	}
}

// broadcastHostChange re-announces the current host after a disconnect-
// triggered promotion. It is idempotent when no promotion happened (the room
// reports the same host it already holds), matching the teacher's
// maybeBroadcastHostChange called after a kick.
func broadcastHostChange(r *room.Room) {
	host := r.HostUserID()
	if host == "" {
		return
	}
	r.SendTo(host, string(wire.EventHostAssigned), wire.HostChangedEvent{HostUserID: host})
	r.BroadcastAll(string(wire.EventHostChanged), wire.HostChangedEvent{HostUserID: host})
}
