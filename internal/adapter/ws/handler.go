// Package ws serves the incident event stream over WebSocket.
package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/sst-platform/incidentd/internal/logger"
	"github.com/sst-platform/incidentd/internal/realtime"
)

// writeTimeout bounds a single frame write to a slow client.
const writeTimeout = 10 * time.Second

// Handler upgrades requests to WebSocket and runs one stream session per
// connection. Each envelope is sent as one text message.
type Handler struct {
	hub            *realtime.Broadcaster
	heartbeat      time.Duration
	originPatterns []string
}

// NewHandler creates a WebSocket stream handler. originPatterns follow
// websocket.AcceptOptions; "*" accepts any origin.
func NewHandler(hub *realtime.Broadcaster, heartbeat time.Duration, originPatterns ...string) *Handler {
	return &Handler{hub: hub, heartbeat: heartbeat, originPatterns: originPatterns}
}

// ServeHTTP upgrades the connection and streams until either side closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		log.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	// Clients never send data; CloseRead discards inbound frames, answers
	// pings and cancels ctx once the peer goes away.
	ctx := conn.CloseRead(r.Context())

	session := realtime.NewSession(h.hub, &sink{ctx: ctx, conn: conn},
		realtime.WithHeartbeat(h.heartbeat),
		realtime.WithTransport("ws"),
	)
	err = session.Run(ctx)
	if realtime.IsNormalClose(err) {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		return
	}
	log.Debug("websocket session ended", "error", err)
	_ = conn.Close(websocket.StatusInternalError, "stream write failed")
}

// sink adapts a websocket connection to realtime.Sink.
type sink struct {
	ctx  context.Context
	conn *websocket.Conn
}

func (s *sink) WriteEvent(payload []byte) error {
	ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
	defer cancel()
	return s.conn.Write(ctx, websocket.MessageText, payload)
}

func (s *sink) WriteHeartbeat() error {
	ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
	defer cancel()
	return s.conn.Ping(ctx)
}
