package model

import (
	"time"

	"github.com/ashgrove/rota/internal/recurrence"
)

// Assignment statuses. PENDING and IN_PROGRESS are the active states; a
// rotating task holds at most one active assignment at a time. SKIPPED is a
// placeholder that preserves rotation order without being active.
const (
	AssignmentPending    = "PENDING"
	AssignmentInProgress = "IN_PROGRESS"
	AssignmentCompleted  = "COMPLETED"
	AssignmentOverdue    = "OVERDUE"
	AssignmentSkipped    = "SKIPPED"
)

// Completion statuses. An OVERDUE completion is the audit record the sweeper
// writes when it escalates a lapsed assignment.
const (
	CompletionCompleted = "COMPLETED"
	CompletionOverdue   = "OVERDUE"
	CompletionSkipped   = "SKIPPED"
)

type Task struct {
	ID             int64                `json:"id"`
	Title          string               `json:"title"`
	Description    string               `json:"description"`
	PropertyID     int64                `json:"property_id"`
	RoomID         *int64               `json:"room_id"`
	Frequency      recurrence.Frequency `json:"frequency"`
	IntervalDays   *int                 `json:"interval_days"`
	Priority       int                  `json:"priority"`
	AssignToAll    bool                 `json:"assign_to_all"`
	UseRotation    bool                 `json:"use_rotation"`
	MaxAssignments *int                 `json:"max_assignments"`
	IsActive       bool                 `json:"is_active"`
	CreatedBy      int64                `json:"created_by"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// Rotates reports whether the task cycles through users at all.
func (t *Task) Rotates() bool {
	return t.AssignToAll || t.UseRotation
}

// IntervalOrZero flattens the optional custom interval.
func (t *Task) IntervalOrZero() int {
	if t.IntervalDays == nil {
		return 0
	}
	return *t.IntervalDays
}

type TaskAssignment struct {
	ID           int64     `json:"id"`
	TaskID       int64     `json:"task_id"`
	UserID       int64     `json:"user_id"`
	AssignedBy   int64     `json:"assigned_by"`
	RecurrenceID *int64    `json:"recurrence_id"`
	DueDate      time.Time `json:"due_date"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Active reports whether the assignment still counts against the
// single-active-assignment invariant.
func (a *TaskAssignment) Active() bool {
	return a.Status == AssignmentPending || a.Status == AssignmentInProgress
}

type TaskCompletion struct {
	ID           int64      `json:"id"`
	TaskID       int64      `json:"task_id"`
	AssignmentID int64      `json:"assignment_id"`
	UserID       int64      `json:"user_id"`
	Status       string     `json:"status"`
	CompletedAt  time.Time  `json:"completed_at"`
	Notes        string     `json:"notes"`
	Photos       []string   `json:"photos"`
	VerifiedBy   *int64     `json:"verified_by"`
	VerifiedAt   *time.Time `json:"verified_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

// TaskRecurrence is the per-task cursor pointing at the next due date.
// Exactly one active cursor exists per recurring task.
type TaskRecurrence struct {
	ID          int64     `json:"id"`
	TaskID      int64     `json:"task_id"`
	NextDueDate time.Time `json:"next_due_date"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RotationOrderEntry is one slot of a task's explicit rotation order. When
// any entries exist for a task they are authoritative over derived orders.
type RotationOrderEntry struct {
	ID        int64     `json:"id"`
	TaskID    int64     `json:"task_id"`
	UserID    int64     `json:"user_id"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}
