// Package incident defines the incident report domain model.
package incident

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sst-platform/incidentd/internal/domain"
)

// Status is the lifecycle state of an incident.
type Status string

const (
	StatusReported Status = "reported"
	StatusActive   Status = "active"
	StatusResolved Status = "resolved"
)

// ValidStatuses is the set of accepted incident statuses.
var ValidStatuses = map[Status]bool{
	StatusReported: true,
	StatusActive:   true,
	StatusResolved: true,
}

// MaxTitleLen is the longest accepted title, in characters.
const MaxTitleLen = 200

// Listing bounds.
const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

// Incident is a persisted incident report.
type Incident struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Status      Status    `json:"status"`
	Latitude    *float64  `json:"latitude"`
	Longitude   *float64  `json:"longitude"`
	ReporterID  *int64    `json:"reporter_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateRequest is the input for reporting a new incident.
type CreateRequest struct {
	Title       string   `json:"title"`
	Description *string  `json:"description,omitempty"`
	Status      Status   `json:"status,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
}

// Normalize trims the title and applies the default status.
func (r *CreateRequest) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
	if r.Status == "" {
		r.Status = StatusReported
	}
}

// Validate checks the request after Normalize.
func (r *CreateRequest) Validate() error {
	if r.Title == "" {
		return fmt.Errorf("%w: title is required", domain.ErrValidation)
	}
	if utf8.RuneCountInString(r.Title) > MaxTitleLen {
		return fmt.Errorf("%w: title must be at most %d characters", domain.ErrValidation, MaxTitleLen)
	}
	if !ValidStatuses[r.Status] {
		return fmt.Errorf("%w: invalid status: must be reported, active, or resolved", domain.ErrValidation)
	}
	if r.Latitude != nil && !inRange(*r.Latitude, 90) {
		return fmt.Errorf("%w: latitude must be between -90 and 90", domain.ErrValidation)
	}
	if r.Longitude != nil && !inRange(*r.Longitude, 180) {
		return fmt.Errorf("%w: longitude must be between -180 and 180", domain.ErrValidation)
	}
	return nil
}

func inRange(v, limit float64) bool {
	return !math.IsNaN(v) && v >= -limit && v <= limit
}

// ListOptions pages through incidents, newest first.
type ListOptions struct {
	Skip  int
	Limit int
}

// Clamp applies defaults and bounds to the paging options.
func (o ListOptions) Clamp() ListOptions {
	if o.Skip < 0 {
		o.Skip = 0
	}
	switch {
	case o.Limit <= 0:
		o.Limit = DefaultListLimit
	case o.Limit > MaxListLimit:
		o.Limit = MaxListLimit
	}
	return o
}
