package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ashgrove/rota/internal/model"
	"github.com/ashgrove/rota/internal/recurrence"
)

// TaskStore persists tasks plus the two per-task satellites the rotation
// engine drives: the recurrence cursor and the explicit rotation order.
type TaskStore struct {
	db DBTX
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

// WithTx rebinds the store onto an open transaction.
func (s *TaskStore) WithTx(tx *sql.Tx) *TaskStore {
	return &TaskStore{db: tx}
}

func scanTask(scanner interface{ Scan(...any) error }) (*model.Task, error) {
	var t model.Task
	var roomID sql.NullInt64
	var intervalDays, maxAssignments sql.NullInt64
	var freq string

	err := scanner.Scan(
		&t.ID, &t.Title, &t.Description, &t.PropertyID, &roomID,
		&freq, &intervalDays, &t.Priority, &t.AssignToAll, &t.UseRotation,
		&maxAssignments, &t.IsActive, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Frequency = recurrence.Frequency(freq)
	if roomID.Valid {
		t.RoomID = &roomID.Int64
	}
	if intervalDays.Valid {
		v := int(intervalDays.Int64)
		t.IntervalDays = &v
	}
	if maxAssignments.Valid {
		v := int(maxAssignments.Int64)
		t.MaxAssignments = &v
	}
	return &t, nil
}

const taskCols = `id, title, description, property_id, room_id, frequency, interval_days, priority, assign_to_all, use_rotation, max_assignments, is_active, created_by, created_at, updated_at`

// TaskParams carries the writable task fields.
type TaskParams struct {
	Title          string
	Description    string
	PropertyID     int64
	RoomID         *int64
	Frequency      recurrence.Frequency
	IntervalDays   *int
	Priority       int
	AssignToAll    bool
	UseRotation    bool
	MaxAssignments *int
	IsActive       bool
}

func (s *TaskStore) Create(p TaskParams, createdBy int64) (*model.Task, error) {
	result, err := s.db.Exec(
		`INSERT INTO tasks (title, description, property_id, room_id, frequency, interval_days, priority, assign_to_all, use_rotation, max_assignments, is_active, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Title, p.Description, p.PropertyID, nullInt64(p.RoomID), string(p.Frequency),
		nullInt(p.IntervalDays), p.Priority, p.AssignToAll, p.UseRotation,
		nullInt(p.MaxAssignments), p.IsActive, createdBy,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *TaskStore) GetByID(id int64) (*model.Task, error) {
	row := s.db.QueryRow(`SELECT `+taskCols+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *TaskStore) List() ([]model.Task, error) {
	rows, err := s.db.Query(`SELECT ` + taskCols + ` FROM tasks ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (s *TaskStore) ListByProperty(propertyID int64) ([]model.Task, error) {
	rows, err := s.db.Query(
		`SELECT `+taskCols+` FROM tasks WHERE property_id = ? ORDER BY created_at DESC, id DESC`,
		propertyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks by property: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (s *TaskStore) ListByRoom(roomID int64) ([]model.Task, error) {
	rows, err := s.db.Query(
		`SELECT `+taskCols+` FROM tasks WHERE room_id = ? ORDER BY created_at DESC, id DESC`,
		roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks by room: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func collectTasks(rows *sql.Rows) ([]model.Task, error) {
	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (s *TaskStore) Update(id int64, p TaskParams) (*model.Task, error) {
	_, err := s.db.Exec(
		`UPDATE tasks SET title = ?, description = ?, room_id = ?, frequency = ?, interval_days = ?, priority = ?, assign_to_all = ?, use_rotation = ?, max_assignments = ?, is_active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		p.Title, p.Description, nullInt64(p.RoomID), string(p.Frequency),
		nullInt(p.IntervalDays), p.Priority, p.AssignToAll, p.UseRotation,
		nullInt(p.MaxAssignments), p.IsActive, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return s.GetByID(id)
}

// Delete removes the task; assignments, completions, the recurrence cursor,
// and the rotation order go with it via foreign key cascade.
func (s *TaskStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// Stats summarizes task and assignment counts for the admin dashboard.
type Stats struct {
	TotalTasks           int `json:"total_tasks"`
	ActiveTasks          int `json:"active_tasks"`
	PendingAssignments   int `json:"pending_assignments"`
	CompletedAssignments int `json:"completed_assignments"`
	OverdueAssignments   int `json:"overdue_assignments"`
}

func (s *TaskStore) Stats(now time.Time) (*Stats, error) {
	var st Stats
	steps := []struct {
		dest  *int
		query string
		args  []any
	}{
		{&st.TotalTasks, `SELECT COUNT(*) FROM tasks`, nil},
		{&st.ActiveTasks, `SELECT COUNT(*) FROM tasks WHERE is_active = 1`, nil},
		{&st.PendingAssignments, `SELECT COUNT(*) FROM task_assignments WHERE status = 'PENDING'`, nil},
		{&st.CompletedAssignments, `SELECT COUNT(*) FROM task_assignments WHERE status = 'COMPLETED'`, nil},
		{&st.OverdueAssignments, `SELECT COUNT(*) FROM task_assignments WHERE status = 'PENDING' AND due_date < ?`, []any{now.UTC()}},
	}
	for _, step := range steps {
		if err := s.db.QueryRow(step.query, step.args...).Scan(step.dest); err != nil {
			return nil, fmt.Errorf("task stats: %w", err)
		}
	}
	return &st, nil
}

// --- Recurrence cursor methods ---

func scanRecurrence(scanner interface{ Scan(...any) error }) (*model.TaskRecurrence, error) {
	var r model.TaskRecurrence
	err := scanner.Scan(&r.ID, &r.TaskID, &r.NextDueDate, &r.IsActive, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

const recurrenceCols = `id, task_id, next_due_date, is_active, created_at, updated_at`

func (s *TaskStore) CreateRecurrence(taskID int64, nextDueDate time.Time) (*model.TaskRecurrence, error) {
	result, err := s.db.Exec(
		`INSERT INTO task_recurrences (task_id, next_due_date, is_active) VALUES (?, ?, 1)`,
		taskID, nextDueDate.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert recurrence: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+recurrenceCols+` FROM task_recurrences WHERE id = ?`, id)
	return scanRecurrence(row)
}

// ActiveRecurrence returns the task's active cursor, or nil when the task
// does not recur.
func (s *TaskStore) ActiveRecurrence(taskID int64) (*model.TaskRecurrence, error) {
	row := s.db.QueryRow(
		`SELECT `+recurrenceCols+` FROM task_recurrences WHERE task_id = ? AND is_active = 1 ORDER BY id ASC LIMIT 1`,
		taskID,
	)
	r, err := scanRecurrence(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active recurrence: %w", err)
	}
	return r, nil
}

func (s *TaskStore) AdvanceRecurrence(id int64, nextDueDate time.Time) error {
	_, err := s.db.Exec(
		`UPDATE task_recurrences SET next_due_date = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		nextDueDate.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("advance recurrence: %w", err)
	}
	return nil
}

// --- Rotation order methods ---

func scanRotationEntry(scanner interface{ Scan(...any) error }) (*model.RotationOrderEntry, error) {
	var e model.RotationOrderEntry
	err := scanner.Scan(&e.ID, &e.TaskID, &e.UserID, &e.Position, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

const rotationCols = `id, task_id, user_id, position, created_at`

// ReplaceRotationOrder swaps the task's explicit order for the given user
// list in one shot. An empty list clears the stored order, dropping the task
// back to derived ordering.
func (s *TaskStore) ReplaceRotationOrder(taskID int64, userIDs []int64) error {
	if _, err := s.db.Exec(`DELETE FROM task_rotation_order WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("clear rotation order: %w", err)
	}
	for i, userID := range userIDs {
		if _, err := s.db.Exec(
			`INSERT INTO task_rotation_order (task_id, user_id, position) VALUES (?, ?, ?)`,
			taskID, userID, i,
		); err != nil {
			return fmt.Errorf("insert rotation order entry: %w", err)
		}
	}
	return nil
}

func (s *TaskStore) RotationOrder(taskID int64) ([]model.RotationOrderEntry, error) {
	rows, err := s.db.Query(
		`SELECT `+rotationCols+` FROM task_rotation_order WHERE task_id = ? ORDER BY position ASC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("list rotation order: %w", err)
	}
	defer rows.Close()

	var entries []model.RotationOrderEntry
	for rows.Next() {
		e, err := scanRotationEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rotation order entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (s *TaskStore) ClearRotationOrder(taskID int64) error {
	_, err := s.db.Exec(`DELETE FROM task_rotation_order WHERE task_id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("clear rotation order: %w", err)
	}
	return nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
