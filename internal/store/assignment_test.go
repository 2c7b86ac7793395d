package store

import (
	"testing"
	"time"

	"github.com/ashgrove/rota/internal/database"
	"github.com/ashgrove/rota/internal/model"
	"github.com/ashgrove/rota/internal/recurrence"
)

type assignmentTestFixture struct {
	assignments *AssignmentStore
	tasks       *TaskStore

	admin   *model.User
	tenant  *model.User
	task    *model.Task
	rotTask *model.Task
}

func setupAssignmentTestDB(t *testing.T) *assignmentTestFixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	users := NewUserStore(db)
	properties := NewPropertyStore(db)
	tasks := NewTaskStore(db)

	f := &assignmentTestFixture{
		assignments: NewAssignmentStore(db),
		tasks:       tasks,
	}
	f.admin, err = users.Create("admin@example.com", "Admin", model.RoleAdmin, "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	f.tenant, err = users.Create("tenant@example.com", "Tenant", model.RoleTenant, "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	property, err := properties.Create("Main House", "1 Main St", "", f.admin.ID)
	if err != nil {
		t.Fatalf("create property: %v", err)
	}

	f.task, err = tasks.Create(TaskParams{
		Title: "Fix the fence", PropertyID: property.ID,
		Frequency: recurrence.Once, Priority: 1, IsActive: true,
	}, f.admin.ID)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	f.rotTask, err = tasks.Create(TaskParams{
		Title: "Take out bins", PropertyID: property.ID,
		Frequency: recurrence.Weekly, Priority: 1, UseRotation: true, IsActive: true,
	}, f.admin.ID)
	if err != nil {
		t.Fatalf("create rotating task: %v", err)
	}
	return f
}

func TestAssignmentCreateAndStatus(t *testing.T) {
	f := setupAssignmentTestDB(t)
	due := time.Date(2024, 1, 8, 17, 0, 0, 0, time.UTC)

	a, err := f.assignments.Create(f.task.ID, f.tenant.ID, f.admin.ID, nil, due, model.AssignmentPending)
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	if !a.DueDate.Equal(due) {
		t.Errorf("due = %v, want %v", a.DueDate, due)
	}
	if !a.Active() {
		t.Error("pending assignment should be active")
	}

	if err := f.assignments.UpdateStatus(a.ID, model.AssignmentCompleted); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, err := f.assignments.GetByID(a.ID)
	if err != nil {
		t.Fatalf("get assignment: %v", err)
	}
	if got.Status != model.AssignmentCompleted {
		t.Errorf("status = %q, want %q", got.Status, model.AssignmentCompleted)
	}
	if got.Active() {
		t.Error("completed assignment should not be active")
	}
}

func TestListOverdueCandidates(t *testing.T) {
	f := setupAssignmentTestDB(t)
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -7)
	future := now.AddDate(0, 0, 7)

	// Past due on a rotating weekly task: a candidate.
	candidate, err := f.assignments.Create(f.rotTask.ID, f.tenant.ID, f.admin.ID, nil, past, model.AssignmentPending)
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	// Past due on a one-time task: never swept.
	if _, err := f.assignments.Create(f.task.ID, f.tenant.ID, f.admin.ID, nil, past, model.AssignmentPending); err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	// Not yet due: not a candidate.
	if _, err := f.assignments.Create(f.rotTask.ID, f.admin.ID, f.admin.ID, nil, future, model.AssignmentPending); err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	// Past due but already closed: not a candidate.
	closed, err := f.assignments.Create(f.rotTask.ID, f.admin.ID, f.admin.ID, nil, past, model.AssignmentPending)
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	if err := f.assignments.UpdateStatus(closed.ID, model.AssignmentOverdue); err != nil {
		t.Fatalf("update status: %v", err)
	}

	candidates, err := f.assignments.ListOverdueCandidates(now)
	if err != nil {
		t.Fatalf("list overdue candidates: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(candidates))
	}
	if candidates[0].ID != candidate.ID {
		t.Errorf("candidate = %d, want %d", candidates[0].ID, candidate.ID)
	}
}

func TestCompletionRoundTrip(t *testing.T) {
	f := setupAssignmentTestDB(t)
	due := time.Date(2024, 1, 8, 17, 0, 0, 0, time.UTC)

	a, err := f.assignments.Create(f.rotTask.ID, f.tenant.ID, f.admin.ID, nil, due, model.AssignmentPending)
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}

	photos := []string{"before.jpg", "after.jpg"}
	c, err := f.assignments.CreateCompletion(f.rotTask.ID, a.ID, f.tenant.ID, model.CompletionCompleted, due, "all done", photos)
	if err != nil {
		t.Fatalf("create completion: %v", err)
	}

	got, err := f.assignments.GetCompletionByID(c.ID)
	if err != nil {
		t.Fatalf("get completion: %v", err)
	}
	if got.Notes != "all done" {
		t.Errorf("notes = %q, want %q", got.Notes, "all done")
	}
	if len(got.Photos) != 2 || got.Photos[0] != "before.jpg" {
		t.Errorf("photos = %v, want %v", got.Photos, photos)
	}
	if got.VerifiedBy != nil {
		t.Errorf("verified_by = %v, want nil before verification", got.VerifiedBy)
	}

	has, err := f.assignments.HasCompletedCompletion(a.ID)
	if err != nil {
		t.Fatalf("has completed completion: %v", err)
	}
	if !has {
		t.Error("expected completed completion to be found")
	}
}

func TestHasOverdueCompletionSince(t *testing.T) {
	f := setupAssignmentTestDB(t)
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	a, err := f.assignments.Create(f.rotTask.ID, f.tenant.ID, f.admin.ID, nil, now.AddDate(0, 0, -7), model.AssignmentPending)
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}

	if _, err := f.assignments.CreateCompletion(f.rotTask.ID, a.ID, f.tenant.ID, model.CompletionOverdue, now.Add(-30*time.Minute), "", nil); err != nil {
		t.Fatalf("create completion: %v", err)
	}

	recent, err := f.assignments.HasOverdueCompletionSince(a.ID, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("has overdue completion: %v", err)
	}
	if !recent {
		t.Error("expected completion inside the window to be found")
	}

	recent, err = f.assignments.HasOverdueCompletionSince(a.ID, now.Add(-10*time.Minute))
	if err != nil {
		t.Fatalf("has overdue completion: %v", err)
	}
	if recent {
		t.Error("completion outside the window should not be found")
	}
}

func TestVerifyCompletionStamps(t *testing.T) {
	f := setupAssignmentTestDB(t)
	now := time.Date(2024, 1, 8, 17, 0, 0, 0, time.UTC)

	a, err := f.assignments.Create(f.rotTask.ID, f.tenant.ID, f.admin.ID, nil, now, model.AssignmentPending)
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	c, err := f.assignments.CreateCompletion(f.rotTask.ID, a.ID, f.tenant.ID, model.CompletionCompleted, now, "", nil)
	if err != nil {
		t.Fatalf("create completion: %v", err)
	}

	verifiedAt := now.Add(2 * time.Hour)
	verified, err := f.assignments.Verify(c.ID, model.CompletionCompleted, f.admin.ID, verifiedAt)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verified == nil {
		t.Fatal("expected verified completion, got nil")
	}
	if verified.VerifiedBy == nil || *verified.VerifiedBy != f.admin.ID {
		t.Errorf("verified_by = %v, want %d", verified.VerifiedBy, f.admin.ID)
	}

	missing, err := f.assignments.Verify(9999, model.CompletionCompleted, f.admin.ID, verifiedAt)
	if err != nil {
		t.Fatalf("verify missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown completion, got %+v", missing)
	}
}

func TestDeleteByTaskAndUsers(t *testing.T) {
	f := setupAssignmentTestDB(t)
	due := time.Date(2024, 1, 8, 17, 0, 0, 0, time.UTC)

	if _, err := f.assignments.Create(f.rotTask.ID, f.tenant.ID, f.admin.ID, nil, due, model.AssignmentPending); err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	if _, err := f.assignments.Create(f.rotTask.ID, f.admin.ID, f.admin.ID, nil, due, model.AssignmentSkipped); err != nil {
		t.Fatalf("create assignment: %v", err)
	}

	if err := f.assignments.DeleteByTaskAndUsers(f.rotTask.ID, []int64{f.tenant.ID}); err != nil {
		t.Fatalf("delete by task and users: %v", err)
	}

	remaining, err := f.assignments.ListByTask(f.rotTask.ID)
	if err != nil {
		t.Fatalf("list by task: %v", err)
	}
	if len(remaining) != 1 || remaining[0].UserID != f.admin.ID {
		t.Errorf("remaining = %+v, want only admin's assignment", remaining)
	}
}
