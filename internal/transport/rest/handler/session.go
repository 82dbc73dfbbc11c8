package handler

import (
	"context"
	"errors"
	"net/http"

	"codementor/internal/model"
	"codementor/internal/service"

	"github.com/gorilla/mux"
)

// SessionReader is the read side of the coordinator used by the admin API
type SessionReader interface {
	Sessions(ctx context.Context) ([]model.SessionSummary, error)
	Standings(ctx context.Context, sessionID string) ([]model.Standing, error)
	Snapshot(ctx context.Context, sessionID string) (*model.Snapshot, error)
}

// SessionHandler serves live session views
type SessionHandler struct {
	sessions SessionReader
}

func NewSessionHandler(sessions SessionReader) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// List handles GET /v1/sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.sessions.Sessions(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": list})
}

// Leaderboard handles GET /v1/sessions/{id}/leaderboard
func (h *SessionHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	standings, err := h.sessions.Standings(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessionId": id, "leaderboard": standings})
}

// Snapshot handles GET /v1/sessions/{id}/snapshot
func (h *SessionHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	snap, err := h.sessions.Snapshot(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+id+`.json"`)
	writeJSON(w, http.StatusOK, snap)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, service.ErrEngineStopped):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
