package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/refinery/internal/domain"
	"github.com/Harshitk-cp/refinery/internal/service"
	"github.com/google/uuid"
)

// ContainmentHandler exposes the containment logs and gatekeeper decisions.
type ContainmentHandler struct {
	containment *service.ContainmentSupervisor
	gatekeeper  *service.Gatekeeper
}

func NewContainmentHandler(c *service.ContainmentSupervisor, g *service.Gatekeeper) *ContainmentHandler {
	return &ContainmentHandler{containment: c, gatekeeper: g}
}

// GET /v1/containment/events?session_id=
func (h *ContainmentHandler) Events(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionFilter(w, r)
	if !ok {
		return
	}
	events := h.containment.Events(id)
	if events == nil {
		events = []domain.ContainmentEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// GET /v1/containment/alerts?session_id=
func (h *ContainmentHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionFilter(w, r)
	if !ok {
		return
	}
	alerts := h.containment.Alerts(id)
	if alerts == nil {
		alerts = []domain.EmergenceAlert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

// GET /v1/gatekeeper/decisions
func (h *ContainmentHandler) Decisions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"policy":    h.gatekeeper.Policy(),
		"decisions": h.gatekeeper.Decisions(),
	})
}

func sessionFilter(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	s := r.URL.Query().Get("session_id")
	if s == "" {
		return uuid.Nil, true
	}
	id, err := uuid.Parse(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session_id")
		return uuid.Nil, false
	}
	return id, true
}
