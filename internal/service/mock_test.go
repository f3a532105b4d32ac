package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sst-platform/incidentd/internal/domain"
	"github.com/sst-platform/incidentd/internal/domain/event"
	"github.com/sst-platform/incidentd/internal/domain/incident"
	"github.com/sst-platform/incidentd/internal/domain/user"
)

// mockStore is an in-memory database.Store for service tests.
type mockStore struct {
	mu        sync.Mutex
	users     []user.User
	incidents []incident.Incident
	nextUser  int64
	nextInc   int64

	createIncidentErr error
	getIncidentCalls  int
}

func (m *mockStore) CreateUser(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.users {
		if m.users[i].Username == u.Username {
			return fmt.Errorf("create user: %w", domain.ErrConflict)
		}
	}
	m.nextUser++
	u.ID = m.nextUser
	u.CreatedAt = time.Now().UTC()
	m.users = append(m.users, *u)
	return nil
}

func (m *mockStore) GetUser(_ context.Context, id int64) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.users {
		if m.users[i].ID == id {
			u := m.users[i]
			return &u, nil
		}
	}
	return nil, fmt.Errorf("get user %d: %w", id, domain.ErrNotFound)
}

func (m *mockStore) GetUserByUsername(_ context.Context, username string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.users {
		if m.users[i].Username == username {
			u := m.users[i]
			return &u, nil
		}
	}
	return nil, fmt.Errorf("get user %s: %w", username, domain.ErrNotFound)
}

func (m *mockStore) ListUsers(_ context.Context) ([]user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]user.User(nil), m.users...), nil
}

func (m *mockStore) CreateIncident(_ context.Context, req *incident.CreateRequest, reporterID *int64) (*incident.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createIncidentErr != nil {
		return nil, m.createIncidentErr
	}
	m.nextInc++
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(m.nextInc) * time.Second)
	inc := incident.Incident{
		ID:          m.nextInc,
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		ReporterID:  reporterID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.incidents = append(m.incidents, inc)
	return &inc, nil
}

func (m *mockStore) ListIncidents(_ context.Context, opts incident.ListOptions) ([]incident.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]incident.Incident(nil), m.incidents...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if opts.Skip >= len(out) {
		return []incident.Incident{}, nil
	}
	out = out[opts.Skip:]
	if len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *mockStore) GetIncident(_ context.Context, id int64) (*incident.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getIncidentCalls++
	for i := range m.incidents {
		if m.incidents[i].ID == id {
			inc := m.incidents[i]
			return &inc, nil
		}
	}
	return nil, fmt.Errorf("get incident %d: %w", id, domain.ErrNotFound)
}

func (m *mockStore) CountIncidents(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.incidents)), nil
}

func (m *mockStore) Ping(context.Context) error { return nil }

// mockHub records published envelopes. publishFn, when set, replaces recording.
type mockHub struct {
	mu        sync.Mutex
	envelopes []event.Envelope
	publishFn func(event.Envelope) error
}

func (h *mockHub) Publish(_ context.Context, env event.Envelope) error {
	if h.publishFn != nil {
		return h.publishFn(env)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.envelopes = append(h.envelopes, env)
	return nil
}

func (h *mockHub) published() []event.Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]event.Envelope(nil), h.envelopes...)
}

// mockRelay records relayed payloads.
type mockRelay struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
}

func (r *mockRelay) Publish(_ context.Context, subject string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.subjects = append(r.subjects, subject)
	r.payloads = append(r.payloads, data)
	return nil
}

func (r *mockRelay) IsConnected() bool { return r.err == nil }
func (r *mockRelay) Close() error      { return nil }

// memCache is a map-backed cache.Cache.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

var errBoom = errors.New("boom")
