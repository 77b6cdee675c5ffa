package transport

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/huddlecore/signaling/internal/v1/signaling"
	"github.com/huddlecore/signaling/internal/v1/wire"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockConn is a wsConnection double that records writes and lets a test
// script reads, mirroring the teacher's MockRoom-style fake used in
// client_test.go.
type mockConn struct {
	mu       sync.Mutex
	written  [][]byte
	closed   bool
	readCh   chan []byte
	readErr  error
}

func newMockConn() *mockConn {
	return &mockConn{readCh: make(chan []byte, 8)}
}

func (m *mockConn) ReadMessage() (int, []byte, error) {
	data, ok := <-m.readCh
	if !ok {
		return 0, nil, m.readErrOrDefault()
	}
	return websocket.TextMessage, data, nil
}

func (m *mockConn) readErrOrDefault() error {
	if m.readErr != nil {
		return m.readErr
	}
	return errClosedConn
}

func (m *mockConn) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.written = append(m.written, cp)
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.readCh)
	}
	return nil
}

func (m *mockConn) SetWriteDeadline(time.Time) error { return nil }

func (m *mockConn) writtenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.written)
}

var errClosedConn = assertErr("mock connection closed")

type assertErr string

func (e assertErr) Error() string { return string(e) }

func newTestClient() (*Client, *mockConn) {
	conn := newMockConn()
	session := &signaling.Session{Namespace: "ns"}
	return NewClient(conn, session), conn
}

func TestClient_Send_QueuesPriorityForStateEvents(t *testing.T) {
	c, _ := newTestClient()
	c.Send(wire.EventHostChanged, wire.HostChangedEvent{HostUserID: "alice#s1"})

	select {
	case data := <-c.prioritySend:
		var msg wire.OutboundMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, wire.EventHostChanged, msg.Event)
	case <-time.After(time.Second):
		t.Fatal("expected hostChanged on prioritySend")
	}
}

func TestClient_Send_QueuesBulkForChatAndReactions(t *testing.T) {
	c, _ := newTestClient()
	c.Send(wire.EventChatMessage, wire.ChatMessageEvent{})

	select {
	case <-c.send:
	case <-time.After(time.Second):
		t.Fatal("expected chatMessage on the bulk send channel")
	}

	select {
	case <-c.prioritySend:
		t.Fatal("chatMessage must not also land on prioritySend")
	default:
	}
}

func TestClient_Send_NoopAfterClose(t *testing.T) {
	c, _ := newTestClient()
	c.Close()
	c.Send(wire.EventHostChanged, wire.HostChangedEvent{HostUserID: "alice#s1"})

	select {
	case <-c.prioritySend:
		t.Fatal("closed client must not enqueue further sends")
	default:
	}
}

// TestClient_CloseOnce exercises closeOnce directly, mirroring the teacher's
// TestClientCloseOnce: concurrent Close callers must only close the
// underlying connection once.
func TestClient_CloseOnce(t *testing.T) {
	c, conn := newTestClient()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Close()
		}()
	}
	wg.Wait()

	assert.True(t, conn.closed)
}

func TestClient_WritePump_DrainsPriorityBeforeBulk(t *testing.T) {
	c, conn := newTestClient()

	c.send <- []byte(`{"event":"chatMessage"}`)
	c.prioritySend <- []byte(`{"event":"hostChanged"}`)
	go c.writePump()

	require.Eventually(t, func() bool { return conn.writtenCount() >= 2 }, time.Second, 5*time.Millisecond)
	conn.mu.Lock()
	first := string(conn.written[0])
	conn.mu.Unlock()
	assert.Equal(t, `{"event":"hostChanged"}`, first)
	c.Close()
}
