package rotation

import (
	"fmt"
	"time"

	"github.com/ashgrove/rota/internal/model"
	"github.com/ashgrove/rota/internal/recurrence"
	"github.com/ashgrove/rota/internal/store"
)

// CreateTaskParams is a task definition plus the initial assignment seed.
type CreateTaskParams struct {
	store.TaskParams
	UserIDs []int64
	DueDate time.Time
}

// CreateTask creates the task, seeds its first assignments, and opens the
// recurrence cursor for recurring tasks.
//
// Seeding rules: a rotation task assigns the first chosen user and parks the
// rest as SKIPPED placeholders; the chosen order is also materialized as the
// task's stored rotation order. An assign-to-all task assigns the longest-
// standing tenant of its property or room. A plain task assigns every chosen
// user at once.
func (e *Engine) CreateTask(p CreateTaskParams, actor Actor) (*model.Task, error) {
	tx, err := e.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ts := e.tasks.WithTx(tx)
	as := e.assignments.WithTx(tx)

	task, err := ts.Create(p.TaskParams, actor.UserID)
	if err != nil {
		return nil, err
	}

	switch {
	case len(p.UserIDs) > 0 && task.UseRotation:
		if _, err := as.Create(task.ID, p.UserIDs[0], actor.UserID, nil, p.DueDate, model.AssignmentPending); err != nil {
			return nil, err
		}
		for _, userID := range p.UserIDs[1:] {
			if _, err := as.Create(task.ID, userID, actor.UserID, nil, p.DueDate, model.AssignmentSkipped); err != nil {
				return nil, err
			}
		}
		if err := ts.ReplaceRotationOrder(task.ID, p.UserIDs); err != nil {
			return nil, err
		}

	case len(p.UserIDs) > 0:
		for _, userID := range p.UserIDs {
			if _, err := as.Create(task.ID, userID, actor.UserID, nil, p.DueDate, model.AssignmentPending); err != nil {
				return nil, err
			}
		}

	case task.AssignToAll:
		tenants, err := e.tenants.WithTx(tx).ListByScope(task.PropertyID, task.RoomID)
		if err != nil {
			return nil, err
		}
		if len(tenants) > 0 {
			if _, err := as.Create(task.ID, tenants[0].UserID, actor.UserID, nil, p.DueDate, model.AssignmentPending); err != nil {
				return nil, err
			}
		}
	}

	if task.Frequency.Recurring() {
		nextDue := recurrence.NextDueDate(e.civil, task.Frequency, p.DueDate, task.IntervalOrZero())
		if _, err := ts.CreateRecurrence(task.ID, nextDue); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return task, nil
}

// UpdateTask applies the new definition and reconciles assignments with any
// rotation transition. Turning rotation on trims active assignments down to
// one; turning it off clears the stored order and reactivates SKIPPED
// placeholders.
func (e *Engine) UpdateTask(taskID int64, p store.TaskParams) (*model.Task, error) {
	tx, err := e.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ts := e.tasks.WithTx(tx)
	as := e.assignments.WithTx(tx)

	current, err := ts.GetByID(taskID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("task %d: %w", taskID, ErrNotFound)
	}

	turningOn := (p.AssignToAll && !current.AssignToAll) || (p.UseRotation && !current.UseRotation)
	turningOff := (!p.AssignToAll && current.AssignToAll) || (!p.UseRotation && current.UseRotation)

	task, err := ts.Update(taskID, p)
	if err != nil {
		return nil, err
	}

	if turningOn {
		active, err := as.ListActiveByTask(taskID)
		if err != nil {
			return nil, err
		}
		// A rotating task holds one active assignment; drop the extras.
		if len(active) > 1 {
			for _, extra := range active[1:] {
				if err := as.Delete(extra.ID); err != nil {
					return nil, err
				}
			}
		}
	}

	if turningOff && !task.Rotates() {
		all, err := as.ListByTask(taskID)
		if err != nil {
			return nil, err
		}
		for _, a := range all {
			if a.Status == model.AssignmentSkipped {
				if err := as.UpdateStatus(a.ID, model.AssignmentPending); err != nil {
					return nil, err
				}
			}
		}
		if err := ts.ClearRotationOrder(taskID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return task, nil
}

// UpdateAssignments reconciles a task's assignee set against the given user
// list: removed users lose their assignments, new users are seeded with the
// same rotation-aware rules as task creation. For rotation tasks the stored
// order is replaced by the new list.
func (e *Engine) UpdateAssignments(taskID int64, userIDs []int64, actor Actor) error {
	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ts := e.tasks.WithTx(tx)
	as := e.assignments.WithTx(tx)

	task, err := ts.GetByID(taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("task %d: %w", taskID, ErrNotFound)
	}

	current, err := as.DistinctAssignees(taskID)
	if err != nil {
		return err
	}

	wanted := make(map[int64]bool, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = true
	}
	have := make(map[int64]bool, len(current))
	for _, id := range current {
		have[id] = true
	}

	var toRemove []int64
	for _, id := range current {
		if !wanted[id] {
			toRemove = append(toRemove, id)
		}
	}
	var toAdd []int64
	for _, id := range userIDs {
		if !have[id] {
			toAdd = append(toAdd, id)
		}
	}

	if len(toRemove) > 0 {
		if err := as.DeleteByTaskAndUsers(taskID, toRemove); err != nil {
			return err
		}
	}

	if len(toAdd) > 0 {
		if task.UseRotation {
			active, err := as.ListActiveByTask(taskID)
			if err != nil {
				return err
			}
			if len(active) == 0 {
				now := e.clk.Now()
				if _, err := as.Create(taskID, toAdd[0], actor.UserID, nil, now, model.AssignmentPending); err != nil {
					return err
				}
				for _, userID := range toAdd[1:] {
					if _, err := as.Create(taskID, userID, actor.UserID, nil, now, model.AssignmentSkipped); err != nil {
						return err
					}
				}
			}
			// An active assignment keeps rotating on completion; the
			// new members join via the stored order below.
		} else {
			now := e.clk.Now()
			for _, userID := range toAdd {
				if _, err := as.Create(taskID, userID, actor.UserID, nil, now, model.AssignmentPending); err != nil {
					return err
				}
			}
		}
	}

	if task.UseRotation {
		if err := ts.ReplaceRotationOrder(taskID, userIDs); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// DeleteTask removes the task and everything it owns.
func (e *Engine) DeleteTask(taskID int64) error {
	task, err := e.tasks.GetByID(taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("task %d: %w", taskID, ErrNotFound)
	}
	// Assignments, completions, cursor, and rotation order cascade.
	return e.tasks.Delete(taskID)
}

// ListTasks sweeps overdue assignments, then returns tasks, optionally
// scoped to a property or room.
func (e *Engine) ListTasks(propertyID, roomID *int64) ([]model.Task, error) {
	if _, err := e.SweepOverdue(); err != nil {
		e.logger.Error("pre-read sweep failed", "error", err)
	}

	switch {
	case roomID != nil:
		return e.tasks.ListByRoom(*roomID)
	case propertyID != nil:
		return e.tasks.ListByProperty(*propertyID)
	default:
		return e.tasks.List()
	}
}

// GetTask sweeps overdue assignments, then returns the task.
func (e *Engine) GetTask(taskID int64) (*model.Task, error) {
	if _, err := e.SweepOverdue(); err != nil {
		e.logger.Error("pre-read sweep failed", "error", err)
	}

	task, err := e.tasks.GetByID(taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("task %d: %w", taskID, ErrNotFound)
	}
	return task, nil
}

// MyAssignments sweeps, then returns the user's open assignments by due
// date.
func (e *Engine) MyAssignments(userID int64) ([]model.TaskAssignment, error) {
	if _, err := e.SweepOverdue(); err != nil {
		e.logger.Error("pre-read sweep failed", "error", err)
	}
	return e.assignments.ListActiveByUser(userID)
}

// TaskAssignments sweeps, then returns every assignment for the task.
func (e *Engine) TaskAssignments(taskID int64) ([]model.TaskAssignment, error) {
	if _, err := e.SweepOverdue(); err != nil {
		e.logger.Error("pre-read sweep failed", "error", err)
	}
	return e.assignments.ListByTask(taskID)
}

// TaskCompletions sweeps, then returns the task's completion history.
func (e *Engine) TaskCompletions(taskID int64) ([]model.TaskCompletion, error) {
	if _, err := e.SweepOverdue(); err != nil {
		e.logger.Error("pre-read sweep failed", "error", err)
	}
	return e.assignments.ListCompletionsByTask(taskID)
}
