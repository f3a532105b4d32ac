package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/sst-platform/incidentd/internal/middleware"
)

// RouterConfig holds the cross-cutting settings applied by NewRouter.
type RouterConfig struct {
	CORSOrigin     string
	RequestTimeout time.Duration // non-streaming routes; 0 disables

	// Tracing wraps every request; nil disables it. Stream routes are expected
	// to be filtered out by the middleware itself.
	Tracing func(http.Handler) http.Handler
}

// NewRouter builds the chi router with global middleware and all routes.
func NewRouter(h *Handlers, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Logger)
	r.Use(chimw.Recoverer)
	if cfg.Tracing != nil {
		r.Use(cfg.Tracing)
	}
	r.Use(SecurityHeaders)
	r.Use(CORS(cfg.CORSOrigin))

	MountRoutes(r, h, cfg.RequestTimeout)
	return r
}

// MountRoutes registers all API routes on the given chi router.
//
// Stream routes stay outside the request timeout: chimw.Timeout would cancel
// the session context after RequestTimeout.
func MountRoutes(r chi.Router, h *Handlers, requestTimeout time.Duration) {
	r.Get("/health", h.Health)
	r.Get("/healthz", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"version": "1.0.0"})
		})

		// Streams
		r.Method(http.MethodGet, "/stream", h.SSE)
		if h.WS != nil {
			r.Method(http.MethodGet, "/stream/ws", h.WS)
		}

		r.Group(func(r chi.Router) {
			if requestTimeout > 0 {
				r.Use(chimw.Timeout(requestTimeout))
			}

			// Auth
			r.Route("/auth", func(r chi.Router) {
				if h.AuthLimiter != nil {
					r.Use(h.AuthLimiter.Handler)
				}
				r.Post("/register", h.Register)
				r.Post("/login", h.Login)
				r.With(middleware.RequireAuth(h.Auth)).Get("/me", h.Me)
			})

			// Incidents
			r.Route("/incidents", func(r chi.Router) {
				r.Use(middleware.OptionalAuth(h.Auth))
				r.Get("/", h.ListIncidents)
				r.Post("/", h.CreateIncident)
				r.Get("/{id}", h.GetIncident)
			})
		})
	})
}
