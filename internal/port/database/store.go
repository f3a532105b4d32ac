// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/sst-platform/incidentd/internal/domain/incident"
	"github.com/sst-platform/incidentd/internal/domain/user"
)

// Store is the port interface for database operations.
type Store interface {
	// Users
	CreateUser(ctx context.Context, u *user.User) error
	GetUser(ctx context.Context, id int64) (*user.User, error)
	GetUserByUsername(ctx context.Context, username string) (*user.User, error)
	ListUsers(ctx context.Context) ([]user.User, error)

	// Incidents
	CreateIncident(ctx context.Context, req *incident.CreateRequest, reporterID *int64) (*incident.Incident, error)
	ListIncidents(ctx context.Context, opts incident.ListOptions) ([]incident.Incident, error)
	GetIncident(ctx context.Context, id int64) (*incident.Incident, error)
	CountIncidents(ctx context.Context) (int64, error)

	// Ping checks database connectivity.
	Ping(ctx context.Context) error
}
