package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ashgrove/rota/internal/rotation"
	"github.com/ashgrove/rota/internal/websocket"
)

type RotationHandler struct {
	engine *rotation.Engine
	hub    *websocket.Hub
	logger *slog.Logger
}

func NewRotationHandler(engine *rotation.Engine, hub *websocket.Hub, logger *slog.Logger) *RotationHandler {
	return &RotationHandler{engine: engine, hub: hub, logger: logger}
}

func (h *RotationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	order, err := h.engine.RotationOrder(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

type rotationRequest struct {
	UserIDs []int64 `json:"user_ids"`
}

func (h *RotationHandler) Put(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	var req rotationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.UserIDs) == 0 {
		writeError(w, http.StatusBadRequest, "rotation order requires at least one user")
		return
	}

	if err := h.engine.SetRotationOrder(id, req.UserIDs, actorFrom(r)); err != nil {
		writeEngineError(w, err)
		return
	}

	if h.hub != nil {
		h.hub.Broadcast(websocket.NewMessage("task", "rotation_updated", id, nil))
	}
	w.WriteHeader(http.StatusNoContent)
}
