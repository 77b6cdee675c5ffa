package sessionclient

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultDialer dials a real websocket connection with gorilla/websocket,
// the same library internal/v1/transport uses to accept connections.
type DefaultDialer struct {
	HandshakeTimeout time.Duration
}

func (d DefaultDialer) Dial(ctx context.Context, url string, header http.Header) (wsConn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
	}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = 10 * time.Second
	}
	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	return gorillaConn{conn}, nil
}

// gorillaConn adapts *websocket.Conn to the narrow wsConn seam so the rest
// of this package never imports gorilla/websocket directly.
type gorillaConn struct {
	*websocket.Conn
}
