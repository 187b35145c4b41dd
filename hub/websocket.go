// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package hub

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/envira/ieq-pipeline/internal/wallclock"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to read the next pong or client frame.
	pongWait = 60 * time.Second

	// Send pings with this period; it must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Time allowed to write a control frame.
	controlWait = time.Second

	// Clients only send keep-alive frames, so keep reads small.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,

	// Live readings are public; the read API carries no authentication.
	CheckOrigin: func(*http.Request) bool { return true },
}

// WebSocket adapts a gorilla connection to Conn.
type WebSocket struct {
	conn *websocket.Conn
}

// NewWebSocket wraps an upgraded connection.
func NewWebSocket(conn *websocket.Conn) *WebSocket {
	return &WebSocket{conn}
}

// WriteMessage writes one text frame, bounded by the context deadline.
func (w *WebSocket) WriteMessage(ctx context.Context, data []byte) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = wallclock.Instance.Now().Add(DefaultWriteTimeout)
	}
	if err := w.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame on a best-effort basis and closes the socket.
func (w *WebSocket) Close() error {
	_ = w.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		wallclock.Instance.Now().Add(controlWait),
	)
	return w.conn.Close()
}

// ServeWS upgrades the request to a WebSocket and keeps it registered until
// either side closes it. Anything the client sends is read and discarded.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.log.Warn(r.Context(), "websocket upgrade failed",
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}

	sub := h.Register(NewWebSocket(conn))
	defer h.Unregister(sub)

	go ping(conn, sub.Done())

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(wallclock.Instance.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(wallclock.Instance.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
			) {
				h.log.Debug(r.Context(), "websocket read ended",
					slog.String("subscriber", sub.ID()),
					slog.String("error", err.Error()),
				)
			}
			return
		}
		_ = conn.SetReadDeadline(wallclock.Instance.Now().Add(pongWait))
	}
}

func ping(conn *websocket.Conn, done <-chan struct{}) {
	ticker := wallclock.Instance.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C():
			err := conn.WriteControl(
				websocket.PingMessage,
				nil,
				wallclock.Instance.Now().Add(controlWait),
			)
			if err != nil {
				return
			}
		}
	}
}
