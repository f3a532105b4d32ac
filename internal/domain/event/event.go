// Package event defines the envelopes broadcast to realtime subscribers.
package event

import (
	"encoding/json"
	"time"

	"github.com/sst-platform/incidentd/internal/domain/incident"
)

// Type identifies the kind of broadcast event.
type Type string

const (
	TypeIncidentCreated Type = "incident.created"
)

// TimestampLayout renders event timestamps as naive ISO-8601 in UTC.
const TimestampLayout = "2006-01-02T15:04:05"

// Envelope is an immutable tagged event. Construct it with New; the data
// snapshot is captured at construction and cannot be changed afterwards.
type Envelope struct {
	typ  Type
	data any
}

// New builds an envelope. data must be a value snapshot, not a live reference.
func New(t Type, data any) Envelope {
	return Envelope{typ: t, data: data}
}

// Type returns the event tag.
func (e Envelope) Type() Type { return e.typ }

// Data returns the data snapshot.
func (e Envelope) Data() any { return e.data }

type wireEnvelope struct {
	Type Type `json:"type"`
	Data any  `json:"data"`
}

// MarshalJSON renders {"type": ..., "data": ...}.
func (e Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEnvelope{Type: e.typ, Data: e.data})
}

// Encode serializes the envelope into its wire payload.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// IncidentCreated is the data snapshot of an incident.created event.
type IncidentCreated struct {
	ID        int64    `json:"id"`
	Title     string   `json:"title"`
	Status    string   `json:"status"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	CreatedAt string   `json:"created_at"`
}

// NewIncidentCreated snapshots inc into an incident.created envelope.
func NewIncidentCreated(inc *incident.Incident) Envelope {
	return New(TypeIncidentCreated, IncidentCreated{
		ID:        inc.ID,
		Title:     inc.Title,
		Status:    string(inc.Status),
		Latitude:  copyFloat(inc.Latitude),
		Longitude: copyFloat(inc.Longitude),
		CreatedAt: FormatTimestamp(inc.CreatedAt),
	})
}

// FormatTimestamp renders t with TimestampLayout in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
