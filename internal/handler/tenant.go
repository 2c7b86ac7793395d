package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ashgrove/rota/internal/store"
)

type TenantHandler struct {
	store  *store.TenantStore
	logger *slog.Logger
}

func NewTenantHandler(s *store.TenantStore, logger *slog.Logger) *TenantHandler {
	return &TenantHandler{store: s, logger: logger}
}

type tenantRequest struct {
	UserID     int64  `json:"user_id"`
	PropertyID int64  `json:"property_id"`
	RoomID     *int64 `json:"room_id"`
}

func (h *TenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req tenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == 0 || req.PropertyID == 0 {
		writeError(w, http.StatusBadRequest, "user_id and property_id are required")
		return
	}

	existing, err := h.store.GetByUserID(req.UserID)
	if err != nil {
		h.logger.Error("failed to check tenant profile", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create tenant profile")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "user already has a tenant profile")
		return
	}

	profile, err := h.store.Create(req.UserID, req.PropertyID, req.RoomID)
	if err != nil {
		h.logger.Error("failed to create tenant profile", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create tenant profile")
		return
	}
	writeJSON(w, http.StatusCreated, profile)
}

func (h *TenantHandler) List(w http.ResponseWriter, r *http.Request) {
	propertyID, err := parseOptionalID(r, "property_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid property_id")
		return
	}
	if propertyID == nil {
		writeError(w, http.StatusBadRequest, "property_id is required")
		return
	}
	roomID, err := parseOptionalID(r, "room_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid room_id")
		return
	}

	profiles, err := h.store.ListByScope(*propertyID, roomID)
	if err != nil {
		h.logger.Error("failed to list tenants", "property_id", *propertyID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list tenants")
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (h *TenantHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	profile, err := h.store.GetByID(id)
	if err != nil {
		h.logger.Error("failed to get tenant profile", "tenant_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get tenant profile")
		return
	}
	if profile == nil {
		writeError(w, http.StatusNotFound, "tenant profile not found")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *TenantHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	var req tenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PropertyID == 0 {
		writeError(w, http.StatusBadRequest, "property_id is required")
		return
	}

	profile, err := h.store.Update(id, req.PropertyID, req.RoomID)
	if err != nil {
		h.logger.Error("failed to update tenant profile", "tenant_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update tenant profile")
		return
	}
	if profile == nil {
		writeError(w, http.StatusNotFound, "tenant profile not found")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *TenantHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	if err := h.store.Delete(id); err != nil {
		h.logger.Error("failed to delete tenant profile", "tenant_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete tenant profile")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
