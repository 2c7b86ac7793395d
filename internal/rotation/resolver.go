// Package rotation implements the recurring-task rotation and
// overdue-escalation engine: deciding who is next in line for a task,
// closing cycles on completion, and sweeping lapsed assignments forward.
package rotation

import (
	"fmt"

	"github.com/ashgrove/rota/internal/model"
	"github.com/ashgrove/rota/internal/store"
)

// Resolver produces the ordered list of users eligible for a task's
// rotation. Bind it to transaction-scoped stores when resolving inside a
// cycle-close so the order is read under the same isolation as the writes.
type Resolver struct {
	tasks       *store.TaskStore
	tenants     *store.TenantStore
	assignments *store.AssignmentStore
}

func NewResolver(tasks *store.TaskStore, tenants *store.TenantStore, assignments *store.AssignmentStore) *Resolver {
	return &Resolver{tasks: tasks, tenants: tenants, assignments: assignments}
}

// Order returns the task's rotation order, deterministic for unchanged
// inputs:
//
//  1. An explicit stored order, when present, is authoritative.
//  2. assign-to-all tasks rotate through the tenants of the property (and
//     room, when room-scoped) by profile creation time.
//  3. Otherwise every user ever assigned to the task, by first assignment.
//
// An empty result means no rotation is possible; callers log and skip the
// successor rather than failing.
func (r *Resolver) Order(task *model.Task) ([]int64, error) {
	entries, err := r.tasks.RotationOrder(task.ID)
	if err != nil {
		return nil, fmt.Errorf("stored rotation order: %w", err)
	}
	if len(entries) > 0 {
		order := make([]int64, len(entries))
		for i, e := range entries {
			order[i] = e.UserID
		}
		return order, nil
	}

	if task.AssignToAll {
		tenants, err := r.tenants.ListByScope(task.PropertyID, task.RoomID)
		if err != nil {
			return nil, fmt.Errorf("tenant directory order: %w", err)
		}
		order := make([]int64, len(tenants))
		for i, t := range tenants {
			order[i] = t.UserID
		}
		return order, nil
	}

	order, err := r.assignments.DistinctAssignees(task.ID)
	if err != nil {
		return nil, fmt.Errorf("historical assignee order: %w", err)
	}
	return order, nil
}

// NextAfter picks the successor of lastUserID in the order, wrapping around
// at the end. A lapsed user no longer in the order falls back to position
// zero, so the successor is the second entry. Returns false when the order
// is empty.
func NextAfter(order []int64, lastUserID int64) (int64, bool) {
	if len(order) == 0 {
		return 0, false
	}
	idx := 0
	for i, userID := range order {
		if userID == lastUserID {
			idx = i
			break
		}
	}
	return order[(idx+1)%len(order)], true
}
