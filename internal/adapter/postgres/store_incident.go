package postgres

import (
	"context"
	"fmt"

	"github.com/sst-platform/incidentd/internal/domain/incident"
)

const incidentColumns = `id, title, description, status, latitude, longitude, reporter_id, created_at, updated_at`

func scanIncident(row scannable) (incident.Incident, error) {
	var inc incident.Incident
	var status string
	err := row.Scan(&inc.ID, &inc.Title, &inc.Description, &status, &inc.Latitude, &inc.Longitude,
		&inc.ReporterID, &inc.CreatedAt, &inc.UpdatedAt)
	inc.Status = incident.Status(status)
	return inc, err
}

// CreateIncident inserts the report and returns the committed row.
func (s *Store) CreateIncident(ctx context.Context, req *incident.CreateRequest, reporterID *int64) (*incident.Incident, error) {
	inc, err := scanIncident(s.pool.QueryRow(ctx, `
		INSERT INTO incidents (title, description, status, latitude, longitude, reporter_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+incidentColumns,
		req.Title, req.Description, string(req.Status), req.Latitude, req.Longitude, reporterID,
	))
	if err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}
	return &inc, nil
}

// ListIncidents returns a page of incidents, newest first.
func (s *Store) ListIncidents(ctx context.Context, opts incident.ListOptions) ([]incident.Incident, error) {
	opts = opts.Clamp()
	rows, err := s.pool.Query(ctx, `
		SELECT `+incidentColumns+` FROM incidents
		ORDER BY created_at DESC, id DESC
		OFFSET $1 LIMIT $2`, opts.Skip, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	var out []incident.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		out = append(out, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	return orEmpty(out), nil
}

func (s *Store) GetIncident(ctx context.Context, id int64) (*incident.Incident, error) {
	inc, err := scanIncident(s.pool.QueryRow(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get incident %d", id)
	}
	return &inc, nil
}

func (s *Store) CountIncidents(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM incidents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count incidents: %w", err)
	}
	return n, nil
}
