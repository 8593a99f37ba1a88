package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nikhilbhutani/talk2text/internal/history"
	"github.com/nikhilbhutani/talk2text/internal/identity"
	"github.com/nikhilbhutani/talk2text/internal/transcript"
)

type HistoryHandler struct {
	svc *history.Service
}

func NewHistoryHandler(svc *history.Service) *HistoryHandler {
	return &HistoryHandler{svc: svc}
}

// List handles GET /transcriptions/{ownerId}.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerId")

	entries, err := h.svc.List(r.Context(), ownerID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"message":        "Success",
			"transcriptions": entries,
		})
	case errors.Is(err, identity.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, identity.ErrForbidden):
		writeError(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, transcript.ErrInvalidOwner):
		writeError(w, http.StatusBadRequest, "User ID is required")
	default:
		slog.Error("history query failed", "owner_id", ownerID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch transcriptions")
	}
}
