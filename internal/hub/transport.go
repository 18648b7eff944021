package hub

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultMaxMessageBytes bounds inbound frames when no limit is configured.
const DefaultMaxMessageBytes = 1 << 20

type wsTransport struct {
	conn *websocket.Conn
}

// NewWSTransport adapts a WebSocket connection to Transport. Frames larger
// than readLimit bytes fail the read.
func NewWSTransport(conn *websocket.Conn, readLimit int64) Transport {
	if readLimit <= 0 {
		readLimit = DefaultMaxMessageBytes
	}
	conn.SetReadLimit(readLimit)
	return &wsTransport{conn: conn}
}

func (t *wsTransport) Read(_ context.Context) ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.conn.SetWriteDeadline(deadline(ctx)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Ping(ctx context.Context) error {
	return t.conn.WriteControl(websocket.PingMessage, nil, deadline(ctx))
}

func (t *wsTransport) WriteClose(ctx context.Context) error {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	return t.conn.WriteControl(websocket.CloseMessage, msg, deadline(ctx))
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

func (t *wsTransport) OnPong(f func()) {
	t.conn.SetPongHandler(func(string) error {
		f()
		return nil
	})
}

func deadline(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Time{}
}

// ServeHTTP upgrades GET /ws to a WebSocket and serves it until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		h.logger.Debug("hub: upgrade failed", slog.Any("error", err))
		return
	}
	h.Serve(r.Context(), NewWSTransport(conn, h.maxMessageBytes))
}
