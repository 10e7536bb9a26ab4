package fanout

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketOptions configures the WebSocket transport.
type WebSocketOptions struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	MaxMessageSize int64
}

func (o WebSocketOptions) withDefaults() WebSocketOptions {
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = 60 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 4096
	}
	return o
}

// wsMessage is the WebSocket framing of an event.
type wsMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ServeWebSocket streams conn's events over ws until either side closes.
// Inbound messages are read only to detect closure and keep the read
// deadline alive. It blocks until the stream ends and always removes
// the connection and closes ws.
func (m *Manager) ServeWebSocket(ws *websocket.Conn, conn *Connection, opts WebSocketOptions) {
	opts = opts.withDefaults()
	defer func() {
		m.Disconnect(conn.ID())
		ws.Close()
	}()

	go m.readWebSocket(ws, conn, opts)

	ticker := time.NewTicker(opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-conn.Frames():
			if !ok {
				//nolint:errcheck // Best-effort close message
				ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
					time.Now().Add(time.Second))
				return
			}
			data, err := json.Marshal(wsMessage{Event: frame.Event, Data: frame.Data})
			if err != nil {
				continue
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			ws.SetWriteDeadline(time.Now().Add(opts.PongTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				m.logger.Debug("websocket write failed", "connection_id", conn.ID(), "error", err)
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			ws.SetWriteDeadline(time.Now().Add(opts.PongTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (m *Manager) readWebSocket(ws *websocket.Conn, conn *Connection, opts WebSocketOptions) {
	defer m.Disconnect(conn.ID())

	wait := opts.PingInterval + opts.PongTimeout
	ws.SetReadLimit(opts.MaxMessageSize)
	//nolint:errcheck // Best-effort deadline on connection setup
	ws.SetReadDeadline(time.Now().Add(wait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Warn("websocket read error", "connection_id", conn.ID(), "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		ws.SetReadDeadline(time.Now().Add(wait))
	}
}
