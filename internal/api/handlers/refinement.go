package handlers

import (
	"net/http"
	"strconv"

	"github.com/Harshitk-cp/refinery/internal/domain"
	"github.com/Harshitk-cp/refinery/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type RefinementHandler struct {
	svc     *service.RefinementService
	entries domain.MemoryEntryStore
}

func NewRefinementHandler(svc *service.RefinementService, entries domain.MemoryEntryStore) *RefinementHandler {
	return &RefinementHandler{svc: svc, entries: entries}
}

type simulateRequest struct {
	Query            string   `json:"query" validate:"required,max=4096"`
	LocationHints    []string `json:"location_hints" validate:"max=16,dive,max=128"`
	TargetConfidence *float64 `json:"target_confidence" validate:"omitempty,gt=0,lte=1"`
}

type createSessionRequest struct {
	Query            string   `json:"query" validate:"required,max=4096"`
	LocationHints    []string `json:"location_hints" validate:"max=16,dive,max=128"`
	TargetConfidence *float64 `json:"target_confidence" validate:"omitempty,gt=0,lte=1"`
	MaxPasses        int      `json:"max_passes" validate:"omitempty,min=1,max=50"`
	Seed             *uint64  `json:"seed"`
}

type createSessionResponse struct {
	SessionID uuid.UUID            `json:"session_id"`
	Status    domain.SessionStatus `json:"status"`
}

// POST /v1/simulate
func (h *RefinementHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.svc.Simulate(r.Context(), req.Query, req.LocationHints, req.TargetConfidence)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /v1/sessions
func (h *RefinementHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.svc.StartRefinement(r.Context(), service.RefinementRequest{
		Query:            req.Query,
		LocationHints:    req.LocationHints,
		TargetConfidence: req.TargetConfidence,
		MaxPasses:        req.MaxPasses,
		Seed:             req.Seed,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createSessionResponse{SessionID: id, Status: domain.SessionInitialized})
}

// POST /v1/sessions/{id}/run
func (h *RefinementHandler) Run(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	sess, err := h.svc.RunRefinement(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// GET /v1/sessions/{id}
func (h *RefinementHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	sess, err := h.svc.GetSession(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// GET /v1/sessions
func (h *RefinementHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions := h.svc.ListSessions()
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// GET /v1/sessions/{id}/entries?limit=N
func (h *RefinementHandler) Entries(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	entries, err := h.entries.ListBySession(r.Context(), id, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.MemoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"entries":    entries,
	})
}

func sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return uuid.Nil, false
	}
	return id, true
}
