// Package sse serves the incident event stream as Server-Sent Events.
package sse

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sst-platform/incidentd/internal/logger"
	"github.com/sst-platform/incidentd/internal/realtime"
)

var (
	dataPrefix     = []byte("data: ")
	frameEnd       = []byte("\n\n")
	heartbeatFrame = []byte(": keepalive\n\n")
)

// Writer frames payloads as SSE events on one response and flushes each frame.
type Writer struct {
	w  io.Writer
	rc *http.ResponseController
}

// NewWriter wraps w. The response must support flushing.
func NewWriter(w http.ResponseWriter) *Writer {
	return &Writer{w: w, rc: http.NewResponseController(w)}
}

// WriteEvent writes payload as one "data:" frame. Embedded newlines become
// continuation data lines so the frame stays intact.
func (s *Writer) WriteEvent(payload []byte) error {
	var buf bytes.Buffer
	buf.Grow(len(payload) + len(dataPrefix) + len(frameEnd))
	for {
		line, rest, more := bytes.Cut(payload, []byte("\n"))
		buf.Write(dataPrefix)
		buf.Write(line)
		buf.WriteByte('\n')
		if !more {
			break
		}
		payload = rest
	}
	buf.WriteByte('\n')
	return s.write(buf.Bytes())
}

// WriteHeartbeat writes an SSE comment frame that clients ignore.
func (s *Writer) WriteHeartbeat() error {
	return s.write(heartbeatFrame)
}

func (s *Writer) write(frame []byte) error {
	if _, err := s.w.Write(frame); err != nil {
		return err
	}
	return s.rc.Flush()
}

// Handler streams incident events to one client per request.
type Handler struct {
	hub       *realtime.Broadcaster
	heartbeat time.Duration
}

// NewHandler creates an SSE handler on hub. heartbeat of zero disables keepalives.
func NewHandler(hub *realtime.Broadcaster, heartbeat time.Duration) *Handler {
	return &Handler{hub: hub, heartbeat: heartbeat}
}

// ServeHTTP runs one stream session until the client disconnects, the server
// shuts down or a write fails.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	rc := http.NewResponseController(w)

	// The server WriteTimeout would otherwise cut long-lived streams.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		log.Warn("sse clear write deadline failed", "error", err)
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := rc.Flush(); err != nil {
		log.Error("sse streaming unsupported", "error", err)
		return
	}

	session := realtime.NewSession(h.hub, &Writer{w: w, rc: rc},
		realtime.WithHeartbeat(h.heartbeat),
		realtime.WithTransport("sse"),
	)
	if err := session.Run(r.Context()); !realtime.IsNormalClose(err) {
		log.Debug("sse session ended", "error", fmt.Sprint(err))
	}
}
