package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	cfotel "github.com/sst-platform/incidentd/internal/adapter/otel"
	"github.com/sst-platform/incidentd/internal/domain/event"
	"github.com/sst-platform/incidentd/internal/domain/incident"
	"github.com/sst-platform/incidentd/internal/port/broadcast"
	"github.com/sst-platform/incidentd/internal/port/cache"
	"github.com/sst-platform/incidentd/internal/port/database"
	"github.com/sst-platform/incidentd/internal/port/messagequeue"
	"github.com/sst-platform/incidentd/internal/resilience"
)

// relayTimeout bounds a single relay publish, including the JetStream ack.
const relayTimeout = 5 * time.Second

// IncidentService persists incident reports and announces them to stream
// subscribers.
type IncidentService struct {
	store database.Store
	hub   broadcast.Publisher

	relay        messagequeue.Publisher
	relaySubject string
	breaker      *resilience.Breaker

	cache    cache.Cache
	cacheTTL time.Duration

	metrics *cfotel.Metrics

	inflight sync.WaitGroup
}

// NewIncidentService creates an incident service publishing to hub.
func NewIncidentService(store database.Store, hub broadcast.Publisher) *IncidentService {
	return &IncidentService{store: store, hub: hub}
}

// SetRelay forwards every published envelope to subject through breaker.
func (s *IncidentService) SetRelay(relay messagequeue.Publisher, subject string, breaker *resilience.Breaker) {
	s.relay = relay
	s.relaySubject = subject
	s.breaker = breaker
}

// SetCache enables read-through caching of single incidents.
func (s *IncidentService) SetCache(c cache.Cache, ttl time.Duration) {
	s.cache = c
	s.cacheTTL = ttl
}

// SetMetrics attaches metric instruments.
func (s *IncidentService) SetMetrics(m *cfotel.Metrics) {
	s.metrics = m
}

// Create validates and persists req, then publishes incident.created in the
// background. The returned incident does not depend on the publish outcome.
func (s *IncidentService) Create(ctx context.Context, req *incident.CreateRequest, reporterID *int64) (*incident.Incident, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	inc, err := s.store.CreateIncident(ctx, req, reporterID)
	if err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}

	if s.metrics != nil {
		s.metrics.IncidentsCreated.Add(ctx, 1, metric.WithAttributes(
			attribute.String("status", string(inc.Status)),
		))
	}
	s.cachePut(ctx, inc)

	s.publishAsync(ctx, event.NewIncidentCreated(inc), inc.ID)
	return inc, nil
}

// publishAsync runs the fan-out and relay on their own goroutine, detached
// from the request's cancellation. Errors and panics are logged, never returned.
func (s *IncidentService) publishAsync(parent context.Context, env event.Envelope, incidentID int64) {
	ctx := context.WithoutCancel(parent)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("publish task panicked",
					"incident_id", incidentID,
					"panic", r,
					"stack", string(debug.Stack()),
				)
			}
		}()

		ctx, span := cfotel.StartPublishSpan(ctx, string(env.Type()), incidentID)
		defer span.End()

		if err := s.hub.Publish(ctx, env); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "fan-out failed")
			slog.Error("publish event failed", "incident_id", incidentID, "type", string(env.Type()), "error", err)
			return
		}
		s.relayEvent(ctx, env)
	}()
}

func (s *IncidentService) relayEvent(ctx context.Context, env event.Envelope) {
	if s.relay == nil {
		return
	}
	payload, err := env.Encode()
	if err != nil {
		slog.Error("relay encode failed", "type", string(env.Type()), "error", err)
		return
	}

	ctx, span := cfotel.StartRelaySpan(ctx, s.relaySubject)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, relayTimeout)
	defer cancel()

	send := func(ctx context.Context) error {
		return s.relay.Publish(ctx, s.relaySubject, payload)
	}
	if s.breaker != nil {
		err = s.breaker.Execute(ctx, send)
	} else {
		err = send(ctx)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "relay failed")
		if s.metrics != nil {
			s.metrics.RelayFailures.Add(ctx, 1)
		}
		slog.Warn("relay publish failed", "subject", s.relaySubject, "error", err)
	}
}

// WaitPublishes blocks until every background publish started so far has
// finished or ctx is done.
func (s *IncidentService) WaitPublishes(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// List returns a page of incidents, newest first.
func (s *IncidentService) List(ctx context.Context, opts incident.ListOptions) ([]incident.Incident, error) {
	return s.store.ListIncidents(ctx, opts.Clamp())
}

// Get returns one incident, consulting the cache first.
func (s *IncidentService) Get(ctx context.Context, id int64) (*incident.Incident, error) {
	if inc, ok := s.cacheGet(ctx, id); ok {
		return inc, nil
	}

	inc, err := s.store.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cachePut(ctx, inc)
	return inc, nil
}

// Demo incidents created by SeedDemo on an empty database.
var demoIncidents = []incident.CreateRequest{
	{
		Title:       "Pothole near Central Park",
		Description: strPtr("Large pothole causing lane dodge"),
		Status:      incident.StatusActive,
		Latitude:    floatPtr(54.786),
		Longitude:   floatPtr(32.049),
	},
	{
		Title:       "Traffic jam on Lenina Ave",
		Description: strPtr("Accident causing heavy delays"),
		Status:      incident.StatusReported,
		Latitude:    floatPtr(54.789),
		Longitude:   floatPtr(32.052),
	},
}

// SeedDemo inserts the demo incidents when no incidents exist yet and
// returns how many were created.
func (s *IncidentService) SeedDemo(ctx context.Context) (int, error) {
	n, err := s.store.CountIncidents(ctx)
	if err != nil {
		return 0, fmt.Errorf("count incidents: %w", err)
	}
	if n > 0 {
		return 0, nil
	}
	for i := range demoIncidents {
		req := demoIncidents[i]
		if _, err := s.Create(ctx, &req, nil); err != nil {
			return i, fmt.Errorf("seed incident %q: %w", req.Title, err)
		}
	}
	return len(demoIncidents), nil
}

func cacheKey(id int64) string {
	return "incident:" + strconv.FormatInt(id, 10)
}

func (s *IncidentService) cacheGet(ctx context.Context, id int64) (*incident.Incident, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, ok, err := s.cache.Get(ctx, cacheKey(id))
	if err != nil {
		slog.Warn("incident cache get failed", "incident_id", id, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var inc incident.Incident
	if err := json.Unmarshal(data, &inc); err != nil {
		_ = s.cache.Delete(ctx, cacheKey(id))
		return nil, false
	}
	return &inc, true
}

func (s *IncidentService) cachePut(ctx context.Context, inc *incident.Incident) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(inc)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey(inc.ID), data, s.cacheTTL); err != nil {
		slog.Warn("incident cache set failed", "incident_id", inc.ID, "error", err)
	}
}

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }
