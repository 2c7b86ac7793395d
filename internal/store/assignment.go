package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ashgrove/rota/internal/model"
)

// AssignmentStore persists assignments and their completion records.
type AssignmentStore struct {
	db DBTX
}

func NewAssignmentStore(db *sql.DB) *AssignmentStore {
	return &AssignmentStore{db: db}
}

// WithTx rebinds the store onto an open transaction.
func (s *AssignmentStore) WithTx(tx *sql.Tx) *AssignmentStore {
	return &AssignmentStore{db: tx}
}

func scanAssignment(scanner interface{ Scan(...any) error }) (*model.TaskAssignment, error) {
	var a model.TaskAssignment
	var recurrenceID sql.NullInt64

	err := scanner.Scan(
		&a.ID, &a.TaskID, &a.UserID, &a.AssignedBy, &recurrenceID,
		&a.DueDate, &a.Status, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if recurrenceID.Valid {
		a.RecurrenceID = &recurrenceID.Int64
	}
	return &a, nil
}

const assignmentCols = `id, task_id, user_id, assigned_by, recurrence_id, due_date, status, created_at, updated_at`

func (s *AssignmentStore) Create(taskID, userID, assignedBy int64, recurrenceID *int64, dueDate time.Time, status string) (*model.TaskAssignment, error) {
	result, err := s.db.Exec(
		`INSERT INTO task_assignments (task_id, user_id, assigned_by, recurrence_id, due_date, status) VALUES (?, ?, ?, ?, ?, ?)`,
		taskID, userID, assignedBy, nullInt64(recurrenceID), dueDate.UTC(), status,
	)
	if err != nil {
		return nil, fmt.Errorf("insert assignment: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *AssignmentStore) GetByID(id int64) (*model.TaskAssignment, error) {
	row := s.db.QueryRow(`SELECT `+assignmentCols+` FROM task_assignments WHERE id = ?`, id)
	a, err := scanAssignment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return a, nil
}

func (s *AssignmentStore) ListByTask(taskID int64) ([]model.TaskAssignment, error) {
	rows, err := s.db.Query(
		`SELECT `+assignmentCols+` FROM task_assignments WHERE task_id = ? ORDER BY due_date ASC, id ASC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("list assignments by task: %w", err)
	}
	defer rows.Close()
	return collectAssignments(rows)
}

// ListActiveByTask returns the PENDING and IN_PROGRESS assignments of a
// task. For rotating tasks this should never hold more than one row.
func (s *AssignmentStore) ListActiveByTask(taskID int64) ([]model.TaskAssignment, error) {
	rows, err := s.db.Query(
		`SELECT `+assignmentCols+` FROM task_assignments WHERE task_id = ? AND status IN ('PENDING', 'IN_PROGRESS') ORDER BY created_at ASC, id ASC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("list active assignments: %w", err)
	}
	defer rows.Close()
	return collectAssignments(rows)
}

// ListActiveByUser returns a user's open assignments ordered by due date.
func (s *AssignmentStore) ListActiveByUser(userID int64) ([]model.TaskAssignment, error) {
	rows, err := s.db.Query(
		`SELECT `+assignmentCols+` FROM task_assignments WHERE user_id = ? AND status IN ('PENDING', 'IN_PROGRESS') ORDER BY due_date ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list active assignments by user: %w", err)
	}
	defer rows.Close()
	return collectAssignments(rows)
}

// ListOverdueCandidates returns active assignments past due on recurring
// tasks that rotate. One-time tasks are never swept.
func (s *AssignmentStore) ListOverdueCandidates(now time.Time) ([]model.TaskAssignment, error) {
	rows, err := s.db.Query(
		`SELECT a.id, a.task_id, a.user_id, a.assigned_by, a.recurrence_id, a.due_date, a.status, a.created_at, a.updated_at
		 FROM task_assignments a
		 JOIN tasks t ON t.id = a.task_id
		 WHERE a.status IN ('PENDING', 'IN_PROGRESS')
		   AND a.due_date < ?
		   AND (t.assign_to_all = 1 OR t.use_rotation = 1)
		   AND t.frequency != 'ONCE'
		 ORDER BY a.due_date ASC, a.id ASC`,
		now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list overdue candidates: %w", err)
	}
	defer rows.Close()
	return collectAssignments(rows)
}

// DistinctAssignees returns every user ever assigned to the task, ordered by
// their first assignment. This is the derived rotation order for tasks with
// an explicitly chosen user subset.
func (s *AssignmentStore) DistinctAssignees(taskID int64) ([]int64, error) {
	rows, err := s.db.Query(
		`SELECT user_id FROM task_assignments WHERE task_id = ? GROUP BY user_id ORDER BY MIN(created_at) ASC, MIN(id) ASC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("list distinct assignees: %w", err)
	}
	defer rows.Close()

	var userIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan assignee: %w", err)
		}
		userIDs = append(userIDs, id)
	}
	return userIDs, rows.Err()
}

func (s *AssignmentStore) UpdateStatus(id int64, status string) error {
	_, err := s.db.Exec(
		`UPDATE task_assignments SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("update assignment status: %w", err)
	}
	return nil
}

func (s *AssignmentStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM task_assignments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	return nil
}

func (s *AssignmentStore) DeleteByTaskAndUsers(taskID int64, userIDs []int64) error {
	for _, userID := range userIDs {
		if _, err := s.db.Exec(
			`DELETE FROM task_assignments WHERE task_id = ? AND user_id = ?`,
			taskID, userID,
		); err != nil {
			return fmt.Errorf("delete assignments for user: %w", err)
		}
	}
	return nil
}

func collectAssignments(rows *sql.Rows) ([]model.TaskAssignment, error) {
	var assignments []model.TaskAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		assignments = append(assignments, *a)
	}
	return assignments, rows.Err()
}

// --- Completion methods ---

func scanCompletion(scanner interface{ Scan(...any) error }) (*model.TaskCompletion, error) {
	var c model.TaskCompletion
	var photos string
	var verifiedBy sql.NullInt64
	var verifiedAt sql.NullTime

	err := scanner.Scan(
		&c.ID, &c.TaskID, &c.AssignmentID, &c.UserID, &c.Status,
		&c.CompletedAt, &c.Notes, &photos, &verifiedBy, &verifiedAt, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if photos != "" {
		if err := json.Unmarshal([]byte(photos), &c.Photos); err != nil {
			return nil, fmt.Errorf("decode photos: %w", err)
		}
	}
	if verifiedBy.Valid {
		c.VerifiedBy = &verifiedBy.Int64
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		c.VerifiedAt = &t
	}
	return &c, nil
}

const completionCols = `id, task_id, assignment_id, user_id, status, completed_at, notes, photos, verified_by, verified_at, created_at`

func (s *AssignmentStore) CreateCompletion(taskID, assignmentID, userID int64, status string, completedAt time.Time, notes string, photos []string) (*model.TaskCompletion, error) {
	if photos == nil {
		photos = []string{}
	}
	encoded, err := json.Marshal(photos)
	if err != nil {
		return nil, fmt.Errorf("encode photos: %w", err)
	}

	result, err := s.db.Exec(
		`INSERT INTO task_completions (task_id, assignment_id, user_id, status, completed_at, notes, photos) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		taskID, assignmentID, userID, status, completedAt.UTC(), notes, string(encoded),
	)
	if err != nil {
		return nil, fmt.Errorf("insert completion: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetCompletionByID(id)
}

func (s *AssignmentStore) GetCompletionByID(id int64) (*model.TaskCompletion, error) {
	row := s.db.QueryRow(`SELECT `+completionCols+` FROM task_completions WHERE id = ?`, id)
	c, err := scanCompletion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get completion: %w", err)
	}
	return c, nil
}

func (s *AssignmentStore) ListCompletionsByTask(taskID int64) ([]model.TaskCompletion, error) {
	rows, err := s.db.Query(
		`SELECT `+completionCols+` FROM task_completions WHERE task_id = ? ORDER BY completed_at DESC, id DESC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("list completions by task: %w", err)
	}
	defer rows.Close()
	return collectCompletions(rows)
}

func (s *AssignmentStore) ListCompletionsByAssignment(assignmentID int64) ([]model.TaskCompletion, error) {
	rows, err := s.db.Query(
		`SELECT `+completionCols+` FROM task_completions WHERE assignment_id = ? ORDER BY completed_at DESC, id DESC`,
		assignmentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list completions by assignment: %w", err)
	}
	defer rows.Close()
	return collectCompletions(rows)
}

// HasCompletedCompletion reports whether a COMPLETED completion already
// exists for this assignment. One completion per assignment per cycle; the
// engine rejects a second one.
func (s *AssignmentStore) HasCompletedCompletion(assignmentID int64) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM task_completions WHERE assignment_id = ? AND status = 'COMPLETED'`,
		assignmentID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count completed completions: %w", err)
	}
	return n > 0, nil
}

// HasOverdueCompletionSince reports whether the sweeper already escalated
// this assignment at or after the given instant. This is the sweep's
// idempotency guard.
func (s *AssignmentStore) HasOverdueCompletionSince(assignmentID int64, since time.Time) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM task_completions WHERE assignment_id = ? AND status = 'OVERDUE' AND completed_at >= ?`,
		assignmentID, since.UTC(),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count overdue completions: %w", err)
	}
	return n > 0, nil
}

// Verify stamps a completion with the verifier's identity and decision.
func (s *AssignmentStore) Verify(completionID int64, status string, verifiedBy int64, verifiedAt time.Time) (*model.TaskCompletion, error) {
	result, err := s.db.Exec(
		`UPDATE task_completions SET status = ?, verified_by = ?, verified_at = ? WHERE id = ?`,
		status, verifiedBy, verifiedAt.UTC(), completionID,
	)
	if err != nil {
		return nil, fmt.Errorf("verify completion: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return s.GetCompletionByID(completionID)
}

func collectCompletions(rows *sql.Rows) ([]model.TaskCompletion, error) {
	var completions []model.TaskCompletion
	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		completions = append(completions, *c)
	}
	return completions, rows.Err()
}
