package rotation

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashgrove/rota/internal/clock"
	"github.com/ashgrove/rota/internal/model"
	"github.com/ashgrove/rota/internal/recurrence"
	"github.com/ashgrove/rota/internal/store"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	ErrConflict  = errors.New("conflict")
)

// overdueGuardWindow is how far back the sweeper looks for an existing
// OVERDUE completion before escalating an assignment again.
const overdueGuardWindow = time.Hour

const overdueNote = "automatically marked overdue"

// Actor identifies the caller of a mutating operation.
type Actor struct {
	UserID int64
	Admin  bool
}

// Engine owns the assignment state machine: completions, verification, the
// overdue sweep, and task lifecycle operations that seed or reshape
// assignments. All multi-entity mutations run in a single transaction; the
// single-active-assignment invariant is enforced by re-checking for active
// assignments inside that transaction before creating a new one.
type Engine struct {
	db          *sql.DB
	tasks       *store.TaskStore
	tenants     *store.TenantStore
	assignments *store.AssignmentStore
	civil       *clock.Civil
	clk         clock.Clock
	logger      *slog.Logger
}

func NewEngine(db *sql.DB, civil *clock.Civil, clk clock.Clock, logger *slog.Logger) *Engine {
	if clk == nil {
		clk = clock.System{}
	}
	return &Engine{
		db:          db,
		tasks:       store.NewTaskStore(db),
		tenants:     store.NewTenantStore(db),
		assignments: store.NewAssignmentStore(db),
		civil:       civil,
		clk:         clk,
		logger:      logger,
	}
}

// Complete closes the actor's cycle on an assignment: records the
// completion, advances the recurrence cursor, and hands the task to the next
// user in rotation. The whole close is one transaction.
func (e *Engine) Complete(assignmentID int64, actor Actor, notes string, photos []string) (*model.TaskCompletion, error) {
	tx, err := e.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	as := e.assignments.WithTx(tx)
	ts := e.tasks.WithTx(tx)

	assignment, err := as.GetByID(assignmentID)
	if err != nil {
		return nil, err
	}
	if assignment == nil {
		return nil, fmt.Errorf("assignment %d: %w", assignmentID, ErrNotFound)
	}

	if assignment.UserID != actor.UserID && !actor.Admin {
		return nil, fmt.Errorf("user %d is not assigned to assignment %d: %w", actor.UserID, assignmentID, ErrForbidden)
	}

	if assignment.Status == model.AssignmentCompleted {
		return nil, fmt.Errorf("assignment %d already completed: %w", assignmentID, ErrConflict)
	}

	already, err := as.HasCompletedCompletion(assignment.ID)
	if err != nil {
		return nil, err
	}
	if already {
		return nil, fmt.Errorf("assignment %d already has a completion: %w", assignmentID, ErrConflict)
	}

	now := e.clk.Now()
	completion, err := as.CreateCompletion(assignment.TaskID, assignment.ID, actor.UserID, model.CompletionCompleted, now, notes, photos)
	if err != nil {
		return nil, err
	}

	if err := as.UpdateStatus(assignment.ID, model.AssignmentCompleted); err != nil {
		return nil, err
	}

	task, err := ts.GetByID(assignment.TaskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("task %d: %w", assignment.TaskID, ErrNotFound)
	}

	if task.Frequency.Recurring() && (task.Rotates() || task.Frequency == recurrence.Custom) {
		if err := e.closeCycle(tx, task, assignment, actor.UserID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return completion, nil
}

// closeCycle advances the recurrence cursor off the closed assignment and,
// for rotating tasks, creates the successor assignment when no active one
// exists. Runs inside the caller's transaction.
func (e *Engine) closeCycle(tx *sql.Tx, task *model.Task, closed *model.TaskAssignment, assignedBy int64) error {
	ts := e.tasks.WithTx(tx)
	as := e.assignments.WithTx(tx)

	cursor, err := ts.ActiveRecurrence(task.ID)
	if err != nil {
		return err
	}
	if cursor == nil {
		return nil
	}

	nextDue := recurrence.NextDueDate(e.civil, task.Frequency, closed.DueDate, task.IntervalOrZero())
	if err := ts.AdvanceRecurrence(cursor.ID, nextDue); err != nil {
		return err
	}

	if !task.Rotates() {
		return nil
	}

	resolver := NewResolver(ts, e.tenants.WithTx(tx), as)
	order, err := resolver.Order(task)
	if err != nil {
		return err
	}

	nextUser, ok := NextAfter(order, closed.UserID)
	if !ok {
		e.logger.Warn("no eligible users for rotating task, cycle has no successor",
			"task_id", task.ID, "assignment_id", closed.ID)
		return nil
	}

	active, err := as.ListActiveByTask(task.ID)
	if err != nil {
		return err
	}
	if len(active) > 0 {
		return nil
	}

	if _, err := as.Create(task.ID, nextUser, assignedBy, &cursor.ID, nextDue, model.AssignmentPending); err != nil {
		return err
	}
	return nil
}

// Verify stamps a completion with an admin's decision. It annotates the
// completion only; the assignment's status is untouched.
func (e *Engine) Verify(completionID int64, actor Actor, status string) (*model.TaskCompletion, error) {
	if !actor.Admin {
		return nil, fmt.Errorf("verification is admin-only: %w", ErrForbidden)
	}
	if status != model.CompletionCompleted && status != model.CompletionSkipped {
		return nil, fmt.Errorf("invalid verification status %q: %w", status, ErrConflict)
	}

	completion, err := e.assignments.Verify(completionID, status, actor.UserID, e.clk.Now())
	if err != nil {
		return nil, err
	}
	if completion == nil {
		return nil, fmt.Errorf("completion %d: %w", completionID, ErrNotFound)
	}
	return completion, nil
}

// SweepOverdue escalates every lapsed assignment on a recurring rotating
// task: marks it OVERDUE, records an audit completion, advances the cursor,
// and hands the task to the next user. Safe to run repeatedly and
// concurrently; each assignment is revalidated inside its own transaction
// and skipped if another sweep or a completion got there first. A failure on
// one assignment is logged and does not abort the rest of the sweep.
//
// Returns the number of assignments escalated.
func (e *Engine) SweepOverdue() (int, error) {
	now := e.clk.Now()

	candidates, err := e.assignments.ListOverdueCandidates(now)
	if err != nil {
		return 0, fmt.Errorf("list overdue candidates: %w", err)
	}

	swept := 0
	for _, candidate := range candidates {
		recent, err := e.assignments.HasOverdueCompletionSince(candidate.ID, now.Add(-overdueGuardWindow))
		if err != nil {
			e.logger.Error("overdue guard check failed", "assignment_id", candidate.ID, "error", err)
			continue
		}
		if recent {
			continue
		}

		done, err := e.sweepOne(candidate.ID, now)
		if err != nil {
			e.logger.Error("sweep failed for assignment", "assignment_id", candidate.ID, "error", err)
			continue
		}
		if done {
			swept++
		}
	}
	return swept, nil
}

// sweepOne escalates a single assignment inside its own transaction. Returns
// false without error when the assignment no longer qualifies, which is how
// racing sweeps resolve: the loser observes the updated state and no-ops.
func (e *Engine) sweepOne(assignmentID int64, now time.Time) (bool, error) {
	tx, err := e.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	as := e.assignments.WithTx(tx)
	ts := e.tasks.WithTx(tx)

	assignment, err := as.GetByID(assignmentID)
	if err != nil {
		return false, err
	}
	if assignment == nil || !assignment.Active() {
		return false, nil
	}

	recent, err := as.HasOverdueCompletionSince(assignment.ID, now.Add(-overdueGuardWindow))
	if err != nil {
		return false, err
	}
	if recent {
		return false, nil
	}

	task, err := ts.GetByID(assignment.TaskID)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	cursor, err := ts.ActiveRecurrence(task.ID)
	if err != nil {
		return false, err
	}
	if cursor == nil {
		return false, nil
	}

	nextDue := recurrence.NextDueDate(e.civil, task.Frequency, assignment.DueDate, task.IntervalOrZero())
	if err := ts.AdvanceRecurrence(cursor.ID, nextDue); err != nil {
		return false, err
	}

	if err := as.UpdateStatus(assignment.ID, model.AssignmentOverdue); err != nil {
		return false, err
	}

	// Audit record doubling as the idempotency guard for later sweeps.
	if _, err := as.CreateCompletion(task.ID, assignment.ID, assignment.UserID, model.CompletionOverdue, now, overdueNote, nil); err != nil {
		return false, err
	}

	if task.Rotates() {
		resolver := NewResolver(ts, e.tenants.WithTx(tx), as)
		order, err := resolver.Order(task)
		if err != nil {
			return false, err
		}

		nextUser, ok := NextAfter(order, assignment.UserID)
		if !ok {
			e.logger.Warn("no eligible users for rotating task, cycle has no successor",
				"task_id", task.ID, "assignment_id", assignment.ID)
		} else {
			active, err := as.ListActiveByTask(task.ID)
			if err != nil {
				return false, err
			}
			if len(active) == 0 {
				// The sweep has no session user; attribute the
				// successor to the task's creator.
				if _, err := as.Create(task.ID, nextUser, task.CreatedBy, &cursor.ID, nextDue, model.AssignmentPending); err != nil {
					return false, err
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}

	e.logger.Info("assignment escalated",
		"assignment_id", assignment.ID, "task_id", task.ID,
		"user_id", assignment.UserID, "next_due", nextDue)
	return true, nil
}

// SetRotationOrder replaces a task's explicit rotation order. The stored
// order is authoritative over any derived order; an empty list clears it.
func (e *Engine) SetRotationOrder(taskID int64, userIDs []int64, actor Actor) error {
	if !actor.Admin {
		return fmt.Errorf("rotation order is admin-only: %w", ErrForbidden)
	}

	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ts := e.tasks.WithTx(tx)
	task, err := ts.GetByID(taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("task %d: %w", taskID, ErrNotFound)
	}

	if err := ts.ReplaceRotationOrder(taskID, userIDs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RotationOrder returns a task's explicit stored order.
func (e *Engine) RotationOrder(taskID int64) ([]model.RotationOrderEntry, error) {
	task, err := e.tasks.GetByID(taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("task %d: %w", taskID, ErrNotFound)
	}
	return e.tasks.RotationOrder(taskID)
}
