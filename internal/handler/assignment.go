package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ashgrove/rota/internal/auth"
	"github.com/ashgrove/rota/internal/rotation"
	"github.com/ashgrove/rota/internal/websocket"
)

type AssignmentHandler struct {
	engine *rotation.Engine
	hub    *websocket.Hub
	logger *slog.Logger
}

func NewAssignmentHandler(engine *rotation.Engine, hub *websocket.Hub, logger *slog.Logger) *AssignmentHandler {
	return &AssignmentHandler{engine: engine, hub: hub, logger: logger}
}

func (h *AssignmentHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

// Mine lists the calling user's active assignments, overdue-swept first.
func (h *AssignmentHandler) Mine(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == 0 {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	assignments, err := h.engine.MyAssignments(userID)
	if err != nil {
		h.logger.Error("failed to list assignments", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list assignments")
		return
	}
	writeJSON(w, http.StatusOK, assignments)
}

type completeRequest struct {
	Notes  string   `json:"notes"`
	Photos []string `json:"photos"`
}

func (h *AssignmentHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid assignment id")
		return
	}

	var req completeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	completion, err := h.engine.Complete(id, actorFrom(r), req.Notes, req.Photos)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage("assignment", "completed", id, map[string]any{
		"completion_id": completion.ID,
	}))
	writeJSON(w, http.StatusCreated, completion)
}

type verifyRequest struct {
	Status string `json:"status"`
}

func (h *AssignmentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid completion id")
		return
	}

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	completion, err := h.engine.Verify(id, actorFrom(r), req.Status)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage("completion", "verified", id, nil))
	writeJSON(w, http.StatusOK, completion)
}

// Sweep triggers an immediate overdue pass. The cron scheduler runs the same
// operation; this endpoint exists so admins can force one from the dashboard.
func (h *AssignmentHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	rotated, err := h.engine.SweepOverdue()
	if err != nil {
		h.logger.Error("manual overdue sweep failed", "error", err)
		writeError(w, http.StatusInternalServerError, "sweep failed")
		return
	}
	if rotated > 0 {
		h.broadcast(websocket.NewMessage("assignment", "swept", 0, map[string]any{
			"rotated": rotated,
		}))
	}
	writeJSON(w, http.StatusOK, map[string]int{"rotated": rotated})
}
