package signaling

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const channelWriteWait = 10 * time.Second

// memberChannel wraps one upgraded WebSocket connection. All writes go
// through a buffered send queue drained by a single write pump goroutine, so
// forwarding from other connections' read loops is a non-blocking enqueue
// that never touches the socket directly.
type memberChannel struct {
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	closing   chan closeRequest
}

type closeRequest struct {
	code   int
	reason string
}

func newMemberChannel(conn *websocket.Conn, queueSize int) *memberChannel {
	return &memberChannel{
		conn:    conn,
		send:    make(chan []byte, queueSize),
		closing: make(chan closeRequest, 1),
	}
}

// TrySend enqueues one encoded frame. A full queue means the recipient is
// too slow or already gone; the frame is dropped, never retried.
func (c *memberChannel) TrySend(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close asks the write pump to send a close frame and shut the socket down.
// Safe to call multiple times from any goroutine.
func (c *memberChannel) close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closing <- closeRequest{code: code, reason: reason}
	})
}

// writePump owns all writes on the connection: queued frames, keepalive
// pings, and the final close frame. It exits when a write fails or a close
// is requested, closing the underlying connection either way.
func (c *memberChannel) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(channelWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(channelWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case req := <-c.closing:
			// Drain frames already queued ahead of the close so a departing
			// peer still receives, e.g., a max-occupancy rejection.
			for {
				select {
				case data := <-c.send:
					_ = c.conn.SetWriteDeadline(time.Now().Add(channelWriteWait))
					if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
						return
					}
				default:
					_ = c.conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(req.code, req.reason),
						time.Now().Add(channelWriteWait))
					return
				}
			}
		}
	}
}
