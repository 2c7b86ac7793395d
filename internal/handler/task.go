package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashgrove/rota/internal/auth"
	"github.com/ashgrove/rota/internal/clock"
	"github.com/ashgrove/rota/internal/model"
	"github.com/ashgrove/rota/internal/recurrence"
	"github.com/ashgrove/rota/internal/rotation"
	"github.com/ashgrove/rota/internal/store"
	"github.com/ashgrove/rota/internal/websocket"
)

type TaskHandler struct {
	engine    *rotation.Engine
	taskStore *store.TaskStore
	clk       clock.Clock
	hub       *websocket.Hub
	logger    *slog.Logger
}

func NewTaskHandler(engine *rotation.Engine, ts *store.TaskStore, clk clock.Clock, hub *websocket.Hub, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{engine: engine, taskStore: ts, clk: clk, hub: hub, logger: logger}
}

func (h *TaskHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

type taskRequest struct {
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	PropertyID     int64     `json:"property_id"`
	RoomID         *int64    `json:"room_id"`
	Frequency      string    `json:"frequency"`
	IntervalDays   *int      `json:"interval_days"`
	Priority       int       `json:"priority"`
	AssignToAll    bool      `json:"assign_to_all"`
	UseRotation    bool      `json:"use_rotation"`
	MaxAssignments *int      `json:"max_assignments"`
	IsActive       *bool     `json:"is_active"`
	UserIDs        []int64   `json:"user_ids"`
	DueDate        time.Time `json:"due_date"`
}

func (r *taskRequest) validate() (recurrence.Frequency, string) {
	r.Title = strings.TrimSpace(r.Title)
	if len(r.Title) < 2 {
		return "", "title must be at least 2 characters"
	}
	if len(r.Title) > 100 {
		return "", "title must be at most 100 characters"
	}

	freq, err := recurrence.Parse(r.Frequency)
	if err != nil {
		return "", "invalid frequency"
	}
	if freq == recurrence.Custom && (r.IntervalDays == nil || *r.IntervalDays <= 0) {
		return "", "interval_days is required for CUSTOM frequency"
	}

	if r.Priority == 0 {
		r.Priority = 1
	}
	if r.Priority < 1 || r.Priority > 5 {
		return "", "priority must be between 1 and 5"
	}
	return freq, ""
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	freq, msg := req.validate()
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if req.PropertyID == 0 {
		writeError(w, http.StatusBadRequest, "property_id is required")
		return
	}
	if req.DueDate.IsZero() {
		writeError(w, http.StatusBadRequest, "due_date is required")
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	actor := actorFrom(r)
	task, err := h.engine.CreateTask(rotation.CreateTaskParams{
		TaskParams: store.TaskParams{
			Title:          req.Title,
			Description:    req.Description,
			PropertyID:     req.PropertyID,
			RoomID:         req.RoomID,
			Frequency:      freq,
			IntervalDays:   req.IntervalDays,
			Priority:       req.Priority,
			AssignToAll:    req.AssignToAll,
			UseRotation:    req.UseRotation,
			MaxAssignments: req.MaxAssignments,
			IsActive:       isActive,
		},
		UserIDs: req.UserIDs,
		DueDate: req.DueDate,
	}, actor)
	if err != nil {
		h.logger.Error("create task", "error", err)
		writeEngineError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage("task", "created", task.ID, nil))
	writeJSON(w, http.StatusCreated, task)
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	propertyID, err := parseOptionalID(r, "property_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid property_id")
		return
	}
	roomID, err := parseOptionalID(r, "room_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid room_id")
		return
	}

	tasks, err := h.engine.ListTasks(propertyID, roomID)
	if err != nil {
		h.logger.Error("list tasks", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	task, err := h.engine.GetTask(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.taskStore.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get task")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.PropertyID = existing.PropertyID

	freq, msg := req.validate()
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	isActive := existing.IsActive
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	task, err := h.engine.UpdateTask(id, store.TaskParams{
		Title:          req.Title,
		Description:    req.Description,
		PropertyID:     existing.PropertyID,
		RoomID:         req.RoomID,
		Frequency:      freq,
		IntervalDays:   req.IntervalDays,
		Priority:       req.Priority,
		AssignToAll:    req.AssignToAll,
		UseRotation:    req.UseRotation,
		MaxAssignments: req.MaxAssignments,
		IsActive:       isActive,
	})
	if err != nil {
		h.logger.Error("update task", "task_id", id, "error", err)
		writeEngineError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage("task", "updated", id, nil))
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.engine.DeleteTask(id); err != nil {
		writeEngineError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage("task", "deleted", id, nil))
	w.WriteHeader(http.StatusNoContent)
}

type updateAssignmentsRequest struct {
	UserIDs []int64 `json:"user_ids"`
}

func (h *TaskHandler) UpdateAssignments(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req updateAssignmentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := h.engine.UpdateAssignments(id, req.UserIDs, actorFrom(r)); err != nil {
		h.logger.Error("update assignments", "task_id", id, "error", err)
		writeEngineError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage("task", "assignments_updated", id, nil))
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *TaskHandler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	assignments, err := h.engine.TaskAssignments(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list assignments")
		return
	}
	if assignments == nil {
		assignments = []model.TaskAssignment{}
	}
	writeJSON(w, http.StatusOK, assignments)
}

func (h *TaskHandler) ListCompletions(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	completions, err := h.engine.TaskCompletions(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list completions")
		return
	}
	if completions == nil {
		completions = []model.TaskCompletion{}
	}
	writeJSON(w, http.StatusOK, completions)
}

func (h *TaskHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.taskStore.Stats(h.clk.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func actorFrom(r *http.Request) rotation.Actor {
	ac, _ := auth.FromContext(r.Context())
	return rotation.Actor{UserID: ac.UserID, Admin: ac.Role == model.RoleAdmin}
}
