package http

import (
	"net/http"

	"github.com/sst-platform/incidentd/internal/domain/incident"
	"github.com/sst-platform/incidentd/internal/middleware"
)

// CreateIncident handles POST /api/v1/incidents
//
// The bearer token is optional: authenticated callers become the reporter,
// everyone else files an anonymous report. The response is written as soon as
// the row is stored; stream delivery happens in the background.
func (h *Handlers) CreateIncident(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[incident.CreateRequest](w, r)
	if !ok {
		return
	}

	var reporterID *int64
	if claims := middleware.ClaimsFromContext(r.Context()); claims != nil {
		id := claims.UserID
		reporterID = &id
	}

	inc, err := h.Incidents.Create(r.Context(), &req, reporterID)
	if err != nil {
		writeDomainError(w, err, "incident could not be created")
		return
	}
	writeJSON(w, http.StatusCreated, inc)
}

// ListIncidents handles GET /api/v1/incidents?skip=&limit=
func (h *Handlers) ListIncidents(w http.ResponseWriter, r *http.Request) {
	skip, ok := queryInt(w, r, "skip", 0)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", incident.DefaultListLimit)
	if !ok {
		return
	}

	list, err := h.Incidents.List(r.Context(), incident.ListOptions{Skip: skip, Limit: limit})
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if list == nil {
		list = []incident.Incident{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GetIncident handles GET /api/v1/incidents/{id}
func (h *Handlers) GetIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	inc, err := h.Incidents.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "incident not found")
		return
	}
	writeJSON(w, http.StatusOK, inc)
}
