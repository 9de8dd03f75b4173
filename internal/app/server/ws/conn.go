package ws

import (
	"log/slog"
	"time"

	"meshup/pkg/logging"

	"github.com/gorilla/websocket"
)

const closeGrace = time.Second

// Conn wraps a gorilla connection with the configured limits.
// WriteMessage must only be called from one goroutine.
type Conn struct {
	*websocket.Conn
	log          *slog.Logger
	writeTimeout time.Duration
}

func NewConn(log *slog.Logger, conn *websocket.Conn, readLimit int64, writeTimeout time.Duration) *Conn {
	conn.SetReadLimit(readLimit)
	return &Conn{Conn: conn, log: log, writeTimeout: writeTimeout}
}

func (c *Conn) WriteMessage(data []byte) error {
	_ = c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

// ReadLoop calls onMsg for every text or binary frame, in order, until the
// connection fails or is closed.
func (c *Conn) ReadLoop(onMsg func([]byte)) {
	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Debug("ws conn - read loop - unexpected close", logging.Err(err))
			}
			return
		}
		if len(data) > 0 {
			onMsg(data)
		}
	}
}

// Refuse sends a close frame carrying code and closes the connection.
func (c *Conn) Refuse(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.Conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
	_ = c.Conn.Close()
}

func (c *Conn) Close() {
	_ = c.Conn.Close()
}
