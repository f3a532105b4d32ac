package http

import (
	"context"
	"net/http"

	"github.com/sst-platform/incidentd/internal/middleware"
	"github.com/sst-platform/incidentd/internal/port/messagequeue"
	"github.com/sst-platform/incidentd/internal/realtime"
	"github.com/sst-platform/incidentd/internal/service"
)

// Pinger reports backend connectivity for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds the service dependencies of the HTTP API.
type Handlers struct {
	Auth      *service.AuthService
	Incidents *service.IncidentService
	Hub       *realtime.Broadcaster

	SSE http.Handler // GET /api/v1/stream
	WS  http.Handler // GET /api/v1/stream/ws; nil disables the route

	AuthLimiter *middleware.RateLimiter // nil disables rate limiting on auth routes
	DB          Pinger                  // nil skips the database check
	Relay       messagequeue.Publisher  // nil when the relay is disabled
}
