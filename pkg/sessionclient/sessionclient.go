// Package sessionclient is the Go SDK re-expression of spec.md §4.7's
// browser-side Client Session Controller: a reconnecting websocket client
// that owns one signaling connection, one joined room, and the viewer's
// media-track lifecycle.
//
// Grounded on the teacher's internal/v1/transport/client.go: the same dual
// send/prioritySend buffered-channel design, inverted — here the SDK holds
// the channels for its own outbound queue instead of a server holding them
// for an accepted connection — and on the teacher's client_test.go/
// mock_sfu_test.go fake-server harness shape for how this package's own
// tests fake a server. Concurrent auth-fetch/socket-connect/device-load at
// join time uses golang.org/x/sync/errgroup, grounded on the ManuGH-xg2g
// example's App.Run using the same package for concurrent subsystem
// startup.
package sessionclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/huddlecore/signaling/internal/v1/wire"
)

const writeWait = 10 * time.Second

// textMessage mirrors gorilla/websocket.TextMessage without requiring this
// file to import the library directly; the Dialer implementation is the
// only place gorilla/websocket is named.
const textMessage = 1

// wsConn is the narrow surface this package needs from a websocket
// connection, mirroring internal/v1/transport's wsConnection seam on the
// client side of the same socket.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
}

// Dialer opens the websocket connection to the coordinator. Swappable so
// tests can substitute an in-memory pipe instead of a real socket.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (wsConn, error)
}

// AuthFetcher resolves a join token and SFU URL for a (roomID, sessionID)
// pair, mirroring spec.md §6's `POST /api/sfu/join` auth-token-fetch
// endpoint from the caller's side.
type AuthFetcher interface {
	FetchToken(ctx context.Context, roomID, sessionID string) (token, sfuURL string, err error)
}

// DeviceLoader performs whatever local media-device enumeration/permission
// work must complete before a call can start. Optional: a nil DeviceLoader
// skips that suspension point entirely.
type DeviceLoader interface {
	LoadDevices(ctx context.Context) error
}

var lowPriorityEvents = map[wire.Event]bool{
	wire.EventSendReaction: true,
	wire.EventSendChat:     true,
}

// Client is one viewer's signaling connection and join state.
type Client struct {
	dialer Dialer
	conn   wsConn
	sfuURL string

	mu            sync.RWMutex
	state         ConnectionState
	roomID        string
	hasActiveCall bool

	send         chan []byte
	prioritySend chan []byte

	pendingMu sync.Mutex
	pending   map[string]chan wire.AckMessage
	reqSeq    uint64

	handlersMu sync.RWMutex
	handlers   map[wire.Event][]func(json.RawMessage)

	stoppedMu     sync.Mutex
	stoppedTracks map[string]struct{}

	closeOnce sync.Once
	closed    bool
}

// New constructs a Client bound to the given Dialer. Pass
// DefaultDialer{} for a real gorilla/websocket connection.
func New(dialer Dialer) *Client {
	return &Client{
		dialer:        dialer,
		state:         StateDisconnected,
		send:          make(chan []byte, 64),
		prioritySend:  make(chan []byte, 64),
		pending:       make(map[string]chan wire.AckMessage),
		handlers:      make(map[wire.Event][]func(json.RawMessage)),
		stoppedTracks: make(map[string]struct{}),
	}
}

// On registers a handler for an unsolicited outbound event (userJoined,
// hostChanged, newProducer, ...). Multiple handlers for the same event all
// run, in registration order.
func (c *Client) On(event wire.Event, handler func(payload json.RawMessage)) {
	c.handlersMu.Lock()
	c.handlers[event] = append(c.handlers[event], handler)
	c.handlersMu.Unlock()
}

// Connect establishes the websocket connection, running the auth-token
// fetch, the socket dial, and (optionally) device loading concurrently --
// spec.md §4.7's three independent suspension points at connect time. Any
// single failure cancels the others via the shared errgroup context.
func (c *Client) Connect(ctx context.Context, wsURL string, auth AuthFetcher, devices DeviceLoader, roomID, sessionID string) error {
	c.setState(StateConnecting)

	g, gctx := errgroup.WithContext(ctx)

	var token, sfuURL string
	if auth != nil {
		g.Go(func() error {
			t, u, err := auth.FetchToken(gctx, roomID, sessionID)
			if err != nil {
				return fmt.Errorf("auth fetch: %w", err)
			}
			token, sfuURL = t, u
			return nil
		})
	}

	var conn wsConn
	g.Go(func() error {
		cn, err := c.dialer.Dial(gctx, wsURL, authHeader(token))
		if err != nil {
			return fmt.Errorf("socket connect: %w", err)
		}
		conn = cn
		return nil
	})

	if devices != nil {
		g.Go(func() error {
			if err := devices.LoadDevices(gctx); err != nil {
				return fmt.Errorf("device load: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		c.setState(StateError)
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.sfuURL = sfuURL
	c.roomID = roomID
	c.mu.Unlock()

	c.setState(StateConnected)

	go c.writePump()
	go c.readPump()

	return nil
}

// authHeader carries the bearer token the same way transport.Hub.extractToken
// accepts it: as a Sec-WebSocket-Protocol subprotocol, so this SDK and the
// server agree on one token-carrying convention.
func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Sec-WebSocket-Protocol", token)
	}
	return h
}

// Join sends a joinRoom request and waits for its ack, updating the client's
// state to joined, waiting, or error depending on the result.
func (c *Client) Join(ctx context.Context, req wire.JoinRoomRequest) (wire.JoinRoomResult, error) {
	c.setState(StateJoining)

	ack, err := c.call(ctx, wire.EventJoinRoom, req)
	if err != nil {
		c.setState(StateError)
		return wire.JoinRoomResult{}, err
	}
	if ack.Error != "" {
		c.setState(StateError)
		return wire.JoinRoomResult{}, fmt.Errorf("joinRoom: %s", ack.Error)
	}

	raw, err := json.Marshal(ack.Result)
	if err != nil {
		c.setState(StateError)
		return wire.JoinRoomResult{}, fmt.Errorf("joinRoom: malformed result: %w", err)
	}
	var result wire.JoinRoomResult
	if err := json.Unmarshal(raw, &result); err != nil {
		c.setState(StateError)
		return wire.JoinRoomResult{}, fmt.Errorf("joinRoom: malformed result: %w", err)
	}

	c.mu.Lock()
	c.roomID = result.RoomID
	c.mu.Unlock()

	if result.Status == "waiting" {
		c.setState(StateWaiting)
		return result, nil
	}

	c.setActiveCall(true)
	c.setState(StateJoined)
	return result, nil
}

// call sends an inbound request and blocks until its ack arrives or ctx is
// done.
func (c *Client) call(ctx context.Context, event wire.Event, payload any) (wire.AckMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return wire.AckMessage{}, fmt.Errorf("marshal %s payload: %w", event, err)
	}

	c.pendingMu.Lock()
	c.reqSeq++
	reqID := strconv.FormatUint(c.reqSeq, 10)
	waiter := make(chan wire.AckMessage, 1)
	c.pending[reqID] = waiter
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
	}()

	msg := wire.InboundMessage{ReqID: reqID, Event: event, Payload: data}
	frame, err := json.Marshal(msg)
	if err != nil {
		return wire.AckMessage{}, fmt.Errorf("marshal envelope: %w", err)
	}

	if !c.enqueue(event, frame) {
		return wire.AckMessage{}, fmt.Errorf("send channel closed")
	}

	select {
	case ack := <-waiter:
		return ack, nil
	case <-ctx.Done():
		return wire.AckMessage{}, ctx.Err()
	}
}

// Send fires an inbound request without waiting for its ack (e.g.
// fire-and-forget toggles).
func (c *Client) Send(event wire.Event, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	msg := wire.InboundMessage{Event: event, Payload: data}
	frame, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if !c.enqueue(event, frame) {
		return fmt.Errorf("send channel closed")
	}
	return nil
}

func (c *Client) enqueue(event wire.Event, data []byte) bool {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return false
	}

	ch := c.prioritySend
	if lowPriorityEvents[event] {
		ch = c.send
	}
	select {
	case ch <- data:
		return true
	default:
		return false
	}
}

// Close tears down the socket; safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			err = conn.Close()
		}
		c.setState(StateDisconnected)
		c.setActiveCall(false)
	})
	return err
}

func (c *Client) readPump() {
	defer c.Close()

	for {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame struct {
			ReqID   string          `json:"reqId"`
			Event   wire.Event      `json:"event"`
			Payload json.RawMessage `json:"payload"`
			Result  any             `json:"result,omitempty"`
			Error   string          `json:"error,omitempty"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}

		if frame.Event != "" {
			c.dispatch(frame.Event, frame.Payload)
			continue
		}

		c.pendingMu.Lock()
		waiter, ok := c.pending[frame.ReqID]
		c.pendingMu.Unlock()
		if ok {
			waiter <- wire.AckMessage{ReqID: frame.ReqID, Result: frame.Result, Error: frame.Error}
		}
	}
}

func (c *Client) dispatch(event wire.Event, payload json.RawMessage) {
	c.handlersMu.RLock()
	hs := append([]func(json.RawMessage){}, c.handlers[event]...)
	c.handlersMu.RUnlock()
	for _, h := range hs {
		h(payload)
	}
}

func (c *Client) writePump() {
	for {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil {
			return
		}

		select {
		case data, ok := <-c.prioritySend:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(textMessage, data); err != nil {
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(textMessage, data); err != nil {
				return
			}
		}
	}
}
