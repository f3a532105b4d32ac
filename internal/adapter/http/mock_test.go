package http_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sst-platform/incidentd/internal/domain"
	"github.com/sst-platform/incidentd/internal/domain/incident"
	"github.com/sst-platform/incidentd/internal/domain/user"
)

// mockStore implements database.Store in memory.
type mockStore struct {
	mu        sync.Mutex
	users     []user.User
	incidents []incident.Incident
	pingErr   error
}

func (m *mockStore) CreateUser(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.users {
		if m.users[i].Username == u.Username {
			return fmt.Errorf("create user: %w", domain.ErrConflict)
		}
	}
	u.ID = int64(len(m.users) + 1)
	u.CreatedAt = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
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
	id := int64(len(m.incidents) + 1)
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(id) * time.Second)
	inc := incident.Incident{
		ID:          id,
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		ReporterID:  reporterID,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	m.incidents = append(m.incidents, inc)
	return &inc, nil
}

func (m *mockStore) ListIncidents(_ context.Context, opts incident.ListOptions) ([]incident.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]incident.Incident(nil), m.incidents...)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if opts.Skip >= len(out) {
		return nil, nil
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

func (m *mockStore) Ping(context.Context) error { return m.pingErr }

// stubRelay is a messagequeue.Publisher with a fixed connection state.
type stubRelay struct{ connected bool }

func (r *stubRelay) Publish(context.Context, string, []byte) error { return nil }
func (r *stubRelay) IsConnected() bool                             { return r.connected }
func (r *stubRelay) Close() error                                  { return nil }
