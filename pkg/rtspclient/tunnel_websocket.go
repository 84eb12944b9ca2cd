package rtspclient

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn adapts a gorilla/websocket connection to net.Conn so the
// Client's bufio.Reader/Writer pair can drive it exactly like a raw
// TCP socket. Grounded on the teacher's client_tunnel_websocket.go.
type wsConn struct {
	*websocket.Conn
	r io.Reader
}

func (c *wsConn) Read(b []byte) (int, error) {
	for {
		if c.r != nil {
			n, err := c.r.Read(b)
			if err == io.EOF {
				c.r = nil
				continue
			}
			return n, err
		}
		_, r, err := c.Conn.NextReader()
		if err != nil {
			return 0, err
		}
		c.r = r
	}
}

func (c *wsConn) Write(b []byte) (int, error) {
	if err := c.Conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.Conn.SetReadDeadline(t); err != nil {
		return err
	}
	return c.Conn.SetWriteDeadline(t)
}

// DialWebSocketTunnel opens a RTSP-over-WebSocket tunnel to addr
// (host:port), the transport spec.md §4.E's transport-negotiation
// paragraph treats as the third option alongside UDP and
// TCP-interleaved for networks that block raw RTSP. Grounded on the
// teacher's client_tunnel_websocket.go, including its
// "rtsp.onvif.org" subprotocol.
func DialWebSocketTunnel(ctx context.Context, addr string, secure bool) (net.Conn, error) {
	scheme := "ws"
	if secure {
		scheme = "wss"
	}
	dialer := &websocket.Dialer{
		Subprotocols: []string{"rtsp.onvif.org"},
	}
	wconn, _, err := dialer.DialContext(ctx, scheme+"://"+addr+"/", nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{Conn: wconn}, nil
}
