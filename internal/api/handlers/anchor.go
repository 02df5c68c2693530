package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Harshitk-cp/refinery/internal/service"
)

const maxSimilarLimit = 100

type AnchorHandler struct {
	sync *service.AnchorSync
}

func NewAnchorHandler(sync *service.AnchorSync) *AnchorHandler {
	return &AnchorHandler{sync: sync}
}

// GET /v1/anchors/similar?q=...&limit=N
func (h *AnchorHandler) Similar(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := 10
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > maxSimilarLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	keys, err := h.sync.Similar(r.Context(), q, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to search anchors")
		return
	}
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}
