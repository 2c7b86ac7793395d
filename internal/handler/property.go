package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashgrove/rota/internal/auth"
	"github.com/ashgrove/rota/internal/store"
)

type PropertyHandler struct {
	store  *store.PropertyStore
	logger *slog.Logger
}

func NewPropertyHandler(s *store.PropertyStore, logger *slog.Logger) *PropertyHandler {
	return &PropertyHandler{store: s, logger: logger}
}

type propertyRequest struct {
	Name        string `json:"name"`
	Address     string `json:"address"`
	Description string `json:"description"`
}

func (p *propertyRequest) validate() string {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return "name is required"
	}
	return ""
}

func (h *PropertyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req propertyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	userID := auth.UserID(r.Context())
	property, err := h.store.Create(req.Name, req.Address, req.Description, userID)
	if err != nil {
		h.logger.Error("failed to create property", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create property")
		return
	}
	writeJSON(w, http.StatusCreated, property)
}

func (h *PropertyHandler) List(w http.ResponseWriter, r *http.Request) {
	properties, err := h.store.List()
	if err != nil {
		h.logger.Error("failed to list properties", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list properties")
		return
	}
	writeJSON(w, http.StatusOK, properties)
}

func (h *PropertyHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid property id")
		return
	}

	property, err := h.store.GetByID(id)
	if err != nil {
		h.logger.Error("failed to get property", "property_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get property")
		return
	}
	if property == nil {
		writeError(w, http.StatusNotFound, "property not found")
		return
	}
	writeJSON(w, http.StatusOK, property)
}

func (h *PropertyHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid property id")
		return
	}

	var req propertyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	property, err := h.store.Update(id, req.Name, req.Address, req.Description)
	if err != nil {
		h.logger.Error("failed to update property", "property_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update property")
		return
	}
	if property == nil {
		writeError(w, http.StatusNotFound, "property not found")
		return
	}
	writeJSON(w, http.StatusOK, property)
}

func (h *PropertyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid property id")
		return
	}

	if err := h.store.Delete(id); err != nil {
		h.logger.Error("failed to delete property", "property_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete property")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type roomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *PropertyHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	propertyID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid property id")
		return
	}

	var req roomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	property, err := h.store.GetByID(propertyID)
	if err != nil {
		h.logger.Error("failed to get property", "property_id", propertyID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create room")
		return
	}
	if property == nil {
		writeError(w, http.StatusNotFound, "property not found")
		return
	}

	room, err := h.store.CreateRoom(propertyID, req.Name, req.Description)
	if err != nil {
		h.logger.Error("failed to create room", "property_id", propertyID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create room")
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

func (h *PropertyHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
	propertyID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid property id")
		return
	}

	rooms, err := h.store.ListRooms(propertyID)
	if err != nil {
		h.logger.Error("failed to list rooms", "property_id", propertyID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list rooms")
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (h *PropertyHandler) UpdateRoom(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid room id")
		return
	}

	var req roomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	room, err := h.store.UpdateRoom(id, req.Name, req.Description)
	if err != nil {
		h.logger.Error("failed to update room", "room_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update room")
		return
	}
	if room == nil {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (h *PropertyHandler) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid room id")
		return
	}

	if err := h.store.DeleteRoom(id); err != nil {
		h.logger.Error("failed to delete room", "room_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete room")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
