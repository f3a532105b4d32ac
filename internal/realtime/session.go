package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Sink writes frames to one streaming connection.
type Sink interface {
	// WriteEvent writes one serialized envelope as a single frame and flushes it.
	WriteEvent(payload []byte) error
	// WriteHeartbeat writes a keepalive frame that carries no event.
	WriteHeartbeat() error
}

// Session binds one subscriber queue to one streaming connection.
// Register is the acquire; Unregister runs exactly once on every exit path.
type Session struct {
	hub       *Broadcaster
	sink      Sink
	heartbeat time.Duration
	transport string
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithHeartbeat enables keepalive frames every d. Zero disables them.
func WithHeartbeat(d time.Duration) SessionOption {
	return func(s *Session) { s.heartbeat = d }
}

// WithTransport labels the session in logs ("sse", "ws").
func WithTransport(name string) SessionOption {
	return func(s *Session) { s.transport = name }
}

// NewSession creates a session that will drain into sink once Run is called.
func NewSession(hub *Broadcaster, sink Sink, opts ...SessionOption) *Session {
	s := &Session{hub: hub, sink: sink, transport: "stream"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run registers with the hub and drains the queue into the sink until ctx is
// done or a write fails. It returns ctx.Err() on cancellation and the write
// error otherwise.
func (s *Session) Run(ctx context.Context) (err error) {
	id, queue := s.hub.Register()
	log := slog.With("subscriber_id", uint64(id), "transport", s.transport)
	log.Info("stream connected")

	defer func() {
		s.hub.Unregister(id)
		log.Info("stream disconnected", "reason", closeReason(err))
	}()

	var tick <-chan time.Time
	if s.heartbeat > 0 {
		t := time.NewTicker(s.heartbeat)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload := <-queue.C():
			if err := s.sink.WriteEvent(payload); err != nil {
				return fmt.Errorf("write event: %w", err)
			}
		case <-tick:
			if err := s.sink.WriteHeartbeat(); err != nil {
				return fmt.Errorf("write heartbeat: %w", err)
			}
		}
	}
}

func closeReason(err error) string {
	switch {
	case err == nil:
		return "closed"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline"
	default:
		return err.Error()
	}
}

// IsNormalClose reports whether a Run error is an ordinary disconnect.
func IsNormalClose(err error) bool {
	return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
