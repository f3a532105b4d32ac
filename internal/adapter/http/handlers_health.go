package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sst-platform/incidentd/internal/realtime"
)

const healthPingTimeout = 2 * time.Second

type healthStatus struct {
	Status      string            `json:"status"`
	Subscribers int               `json:"subscribers"`
	Stream      realtime.Stats    `json:"stream"`
	Checks      map[string]string `json:"checks"`
}

// Health handles GET /health and GET /healthz. It answers 503 when the
// database is unreachable; a disconnected relay only degrades the report.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	stats := h.Hub.Stats()
	status := healthStatus{
		Status:      "ok",
		Subscribers: stats.Subscribers,
		Stream:      stats,
		Checks:      map[string]string{},
	}
	code := http.StatusOK

	if h.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		err := h.DB.Ping(ctx)
		cancel()
		if err != nil {
			slog.Warn("health check: database unreachable", "error", err)
			status.Status = "unavailable"
			status.Checks["postgres"] = "down"
			code = http.StatusServiceUnavailable
		} else {
			status.Checks["postgres"] = "ok"
		}
	}

	switch {
	case h.Relay == nil:
		status.Checks["nats"] = "disabled"
	case h.Relay.IsConnected():
		status.Checks["nats"] = "ok"
	default:
		status.Checks["nats"] = "disconnected"
		if code == http.StatusOK {
			status.Status = "degraded"
		}
	}

	writeJSON(w, code, status)
}
