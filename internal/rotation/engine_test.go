package rotation

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ashgrove/rota/internal/clock"
	"github.com/ashgrove/rota/internal/database"
	"github.com/ashgrove/rota/internal/model"
	"github.com/ashgrove/rota/internal/recurrence"
	"github.com/ashgrove/rota/internal/store"
)

// stubClock lets tests move time forward between operations.
type stubClock struct {
	t time.Time
}

func (c *stubClock) Now() time.Time { return c.t }

type engineFixture struct {
	engine      *Engine
	clk         *stubClock
	users       *store.UserStore
	properties  *store.PropertyStore
	tenants     *store.TenantStore
	tasks       *store.TaskStore
	assignments *store.AssignmentStore

	admin    *model.User
	tenant1  *model.User
	tenant2  *model.User
	property *model.Property

	// due is noon Toronto on Monday 2024-01-08.
	due time.Time
}

func setupEngineTest(t *testing.T) *engineFixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	f := &engineFixture{
		clk:         &stubClock{t: time.Date(2024, 1, 8, 12, 0, 0, 0, time.UTC)},
		users:       store.NewUserStore(db),
		properties:  store.NewPropertyStore(db),
		tenants:     store.NewTenantStore(db),
		tasks:       store.NewTaskStore(db),
		assignments: store.NewAssignmentStore(db),
		due:         time.Date(2024, 1, 8, 17, 0, 0, 0, time.UTC),
	}

	civil := clock.MustLoadCivil(clock.DefaultZone)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.engine = NewEngine(db, civil, f.clk, logger)

	f.admin = f.createUser(t, "admin@ashgrove.test", "Admin", model.RoleAdmin)
	f.tenant1 = f.createUser(t, "t1@ashgrove.test", "Tenant One", model.RoleTenant)
	f.tenant2 = f.createUser(t, "t2@ashgrove.test", "Tenant Two", model.RoleTenant)

	f.property, err = f.properties.Create("12 Ash Grove", "12 Ash Grove, Toronto", "", f.admin.ID)
	if err != nil {
		t.Fatalf("create property: %v", err)
	}
	if _, err := f.tenants.Create(f.tenant1.ID, f.property.ID, nil); err != nil {
		t.Fatalf("create tenant profile: %v", err)
	}
	if _, err := f.tenants.Create(f.tenant2.ID, f.property.ID, nil); err != nil {
		t.Fatalf("create tenant profile: %v", err)
	}
	return f
}

func (f *engineFixture) createUser(t *testing.T, email, name, role string) *model.User {
	t.Helper()
	u, err := f.users.Create(email, name, role, "x")
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u
}

func (f *engineFixture) adminActor() Actor {
	return Actor{UserID: f.admin.ID, Admin: true}
}

func (f *engineFixture) createRotatingTask(t *testing.T, title string, userIDs []int64, due time.Time) *model.Task {
	t.Helper()
	task, err := f.engine.CreateTask(CreateTaskParams{
		TaskParams: store.TaskParams{
			Title:       title,
			PropertyID:  f.property.ID,
			Frequency:   recurrence.Weekly,
			Priority:    1,
			UseRotation: true,
			IsActive:    true,
		},
		UserIDs: userIDs,
		DueDate: due,
	}, f.adminActor())
	if err != nil {
		t.Fatalf("create rotating task: %v", err)
	}
	return task
}

func (f *engineFixture) createAssignToAllTask(t *testing.T, title string, due time.Time) *model.Task {
	t.Helper()
	task, err := f.engine.CreateTask(CreateTaskParams{
		TaskParams: store.TaskParams{
			Title:       title,
			PropertyID:  f.property.ID,
			Frequency:   recurrence.Weekly,
			Priority:    1,
			AssignToAll: true,
			IsActive:    true,
		},
		DueDate: due,
	}, f.adminActor())
	if err != nil {
		t.Fatalf("create assign-to-all task: %v", err)
	}
	return task
}

func (f *engineFixture) activeAssignments(t *testing.T, taskID int64) []model.TaskAssignment {
	t.Helper()
	active, err := f.assignments.ListActiveByTask(taskID)
	if err != nil {
		t.Fatalf("list active assignments: %v", err)
	}
	return active
}

func TestCreateTaskSeedsRotation(t *testing.T) {
	f := setupEngineTest(t)
	task := f.createRotatingTask(t, "Take out bins", []int64{f.tenant1.ID, f.tenant2.ID}, f.due)

	all, err := f.assignments.ListByTask(task.ID)
	if err != nil {
		t.Fatalf("list assignments: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(all))
	}

	active := f.activeAssignments(t, task.ID)
	if len(active) != 1 {
		t.Fatalf("expected 1 active assignment, got %d", len(active))
	}
	if active[0].UserID != f.tenant1.ID {
		t.Errorf("active user = %d, want %d", active[0].UserID, f.tenant1.ID)
	}

	skipped := 0
	for _, a := range all {
		if a.Status == model.AssignmentSkipped {
			skipped++
		}
	}
	if skipped != 1 {
		t.Errorf("expected 1 skipped placeholder, got %d", skipped)
	}

	order, err := f.tasks.RotationOrder(task.ID)
	if err != nil {
		t.Fatalf("rotation order: %v", err)
	}
	if len(order) != 2 || order[0].UserID != f.tenant1.ID || order[1].UserID != f.tenant2.ID {
		t.Errorf("stored order = %v, want tenant1 then tenant2", order)
	}

	cursor, err := f.tasks.ActiveRecurrence(task.ID)
	if err != nil {
		t.Fatalf("active recurrence: %v", err)
	}
	if cursor == nil {
		t.Fatal("expected recurrence cursor for weekly task")
	}
	wantNext := f.due.AddDate(0, 0, 7)
	if !cursor.NextDueDate.Equal(wantNext) {
		t.Errorf("cursor next due = %v, want %v", cursor.NextDueDate, wantNext)
	}
}

func TestCreateTaskAssignToAllSeedsOldestTenant(t *testing.T) {
	f := setupEngineTest(t)
	task := f.createAssignToAllTask(t, "Clean common room", f.due)

	active := f.activeAssignments(t, task.ID)
	if len(active) != 1 {
		t.Fatalf("expected 1 active assignment, got %d", len(active))
	}
	if active[0].UserID != f.tenant1.ID {
		t.Errorf("active user = %d, want longest-standing tenant %d", active[0].UserID, f.tenant1.ID)
	}
}

func TestCompleteRotatesToNextUser(t *testing.T) {
	f := setupEngineTest(t)
	task := f.createRotatingTask(t, "Take out bins", []int64{f.tenant1.ID, f.tenant2.ID}, f.due)

	active := f.activeAssignments(t, task.ID)
	completion, err := f.engine.Complete(active[0].ID, Actor{UserID: f.tenant1.ID}, "done", nil)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completion.Status != model.CompletionCompleted {
		t.Errorf("completion status = %q, want %q", completion.Status, model.CompletionCompleted)
	}

	closed, err := f.assignments.GetByID(active[0].ID)
	if err != nil {
		t.Fatalf("get assignment: %v", err)
	}
	if closed.Status != model.AssignmentCompleted {
		t.Errorf("assignment status = %q, want %q", closed.Status, model.AssignmentCompleted)
	}

	next := f.activeAssignments(t, task.ID)
	if len(next) != 1 {
		t.Fatalf("expected exactly 1 active successor, got %d", len(next))
	}
	if next[0].UserID != f.tenant2.ID {
		t.Errorf("successor user = %d, want %d", next[0].UserID, f.tenant2.ID)
	}
	wantDue := f.due.AddDate(0, 0, 7)
	if !next[0].DueDate.Equal(wantDue) {
		t.Errorf("successor due = %v, want %v", next[0].DueDate, wantDue)
	}

	cursor, err := f.tasks.ActiveRecurrence(task.ID)
	if err != nil {
		t.Fatalf("active recurrence: %v", err)
	}
	if !cursor.NextDueDate.Equal(wantDue) {
		t.Errorf("cursor next due = %v, want %v", cursor.NextDueDate, wantDue)
	}
}

func TestCompleteTwiceConflicts(t *testing.T) {
	f := setupEngineTest(t)
	task := f.createRotatingTask(t, "Take out bins", []int64{f.tenant1.ID, f.tenant2.ID}, f.due)

	active := f.activeAssignments(t, task.ID)
	if _, err := f.engine.Complete(active[0].ID, Actor{UserID: f.tenant1.ID}, "", nil); err != nil {
		t.Fatalf("first complete: %v", err)
	}

	_, err := f.engine.Complete(active[0].ID, Actor{UserID: f.tenant1.ID}, "", nil)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("second complete error = %v, want ErrConflict", err)
	}
}

func TestCompleteByWrongUserForbidden(t *testing.T) {
	f := setupEngineTest(t)
	task := f.createRotatingTask(t, "Take out bins", []int64{f.tenant1.ID, f.tenant2.ID}, f.due)

	active := f.activeAssignments(t, task.ID)
	_, err := f.engine.Complete(active[0].ID, Actor{UserID: f.tenant2.ID}, "", nil)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("error = %v, want ErrForbidden", err)
	}

	// Admins can close anyone's assignment.
	if _, err := f.engine.Complete(active[0].ID, f.adminActor(), "", nil); err != nil {
		t.Fatalf("admin complete: %v", err)
	}
}

func TestCompleteUnknownAssignmentNotFound(t *testing.T) {
	f := setupEngineTest(t)
	_, err := f.engine.Complete(9999, Actor{UserID: f.tenant1.ID}, "", nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestSweepEscalatesOverdueAssignment(t *testing.T) {
	f := setupEngineTest(t)
	task := f.createRotatingTask(t, "Take out bins", []int64{f.tenant1.ID, f.tenant2.ID}, f.due)
	original := f.activeAssignments(t, task.ID)[0]

	// One week and a bit later, nobody has completed the cycle.
	f.clk.t = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	swept, err := f.engine.SweepOverdue()
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 1 {
		t.Fatalf("swept = %d, want 1", swept)
	}

	lapsed, err := f.assignments.GetByID(original.ID)
	if err != nil {
		t.Fatalf("get assignment: %v", err)
	}
	if lapsed.Status != model.AssignmentOverdue {
		t.Errorf("lapsed status = %q, want %q", lapsed.Status, model.AssignmentOverdue)
	}

	completions, err := f.assignments.ListCompletionsByAssignment(original.ID)
	if err != nil {
		t.Fatalf("list completions: %v", err)
	}
	if len(completions) != 1 {
		t.Fatalf("expected 1 audit completion, got %d", len(completions))
	}
	if completions[0].Status != model.CompletionOverdue {
		t.Errorf("audit status = %q, want %q", completions[0].Status, model.CompletionOverdue)
	}
	if completions[0].UserID != f.tenant1.ID {
		t.Errorf("audit user = %d, want lapsed user %d", completions[0].UserID, f.tenant1.ID)
	}

	next := f.activeAssignments(t, task.ID)
	if len(next) != 1 {
		t.Fatalf("expected 1 active successor, got %d", len(next))
	}
	if next[0].UserID != f.tenant2.ID {
		t.Errorf("successor user = %d, want %d", next[0].UserID, f.tenant2.ID)
	}
	if next[0].AssignedBy != task.CreatedBy {
		t.Errorf("successor assigned_by = %d, want task creator %d", next[0].AssignedBy, task.CreatedBy)
	}
	wantDue := f.due.AddDate(0, 0, 7)
	if !next[0].DueDate.Equal(wantDue) {
		t.Errorf("successor due = %v, want %v", next[0].DueDate, wantDue)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	f := setupEngineTest(t)
	task := f.createRotatingTask(t, "Take out bins", []int64{f.tenant1.ID, f.tenant2.ID}, f.due)

	f.clk.t = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	if swept, err := f.engine.SweepOverdue(); err != nil || swept != 1 {
		t.Fatalf("first sweep = %d, %v; want 1, nil", swept, err)
	}
	if swept, err := f.engine.SweepOverdue(); err != nil || swept != 0 {
		t.Fatalf("second sweep = %d, %v; want 0, nil", swept, err)
	}

	// Still exactly one active assignment after both runs.
	if active := f.activeAssignments(t, task.ID); len(active) != 1 {
		t.Errorf("active assignments = %d, want 1", len(active))
	}
}

func TestSweepSkipsRecentlyEscalated(t *testing.T) {
	f := setupEngineTest(t)
	task := f.createRotatingTask(t, "Take out bins", []int64{f.tenant1.ID, f.tenant2.ID}, f.due)
	original := f.activeAssignments(t, task.ID)[0]

	f.clk.t = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	// A concurrent sweep already recorded an OVERDUE completion minutes ago;
	// the guard must hold this one back even though the status says active.
	if _, err := f.assignments.CreateCompletion(
		task.ID, original.ID, original.UserID, model.CompletionOverdue,
		f.clk.t.Add(-10*time.Minute), "automatically marked overdue", nil,
	); err != nil {
		t.Fatalf("create guard completion: %v", err)
	}

	swept, err := f.engine.SweepOverdue()
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 0 {
		t.Errorf("swept = %d, want 0", swept)
	}
}

func TestSweepSkipsNonRotatingTasks(t *testing.T) {
	f := setupEngineTest(t)

	task, err := f.engine.CreateTask(CreateTaskParams{
		TaskParams: store.TaskParams{
			Title:      "Fix the fence",
			PropertyID: f.property.ID,
			Frequency:  recurrence.Weekly,
			Priority:   1,
			IsActive:   true,
		},
		UserIDs: []int64{f.tenant1.ID},
		DueDate: f.due,
	}, f.adminActor())
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	f.clk.t = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	swept, err := f.engine.SweepOverdue()
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 0 {
		t.Errorf("swept = %d, want 0 for non-rotating task", swept)
	}

	active := f.activeAssignments(t, task.ID)
	if len(active) != 1 || active[0].Status != model.AssignmentPending {
		t.Errorf("non-rotating assignment should stay PENDING, got %+v", active)
	}
}

func TestSweepRotationSkipsRemovedUser(t *testing.T) {
	f := setupEngineTest(t)
	tenant3 := f.createUser(t, "t3@ashgrove.test", "Tenant Three", model.RoleTenant)
	task := f.createRotatingTask(t, "Take out bins", []int64{f.tenant1.ID, f.tenant2.ID, tenant3.ID}, f.due)

	// The lapsed user is dropped from the order before the sweep runs; the
	// successor falls back to the second entry of the remaining order.
	if err := f.tasks.ReplaceRotationOrder(task.ID, []int64{f.tenant2.ID, tenant3.ID}); err != nil {
		t.Fatalf("replace rotation order: %v", err)
	}

	f.clk.t = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	if swept, err := f.engine.SweepOverdue(); err != nil || swept != 1 {
		t.Fatalf("sweep = %d, %v; want 1, nil", swept, err)
	}

	next := f.activeAssignments(t, task.ID)
	if len(next) != 1 {
		t.Fatalf("expected 1 active successor, got %d", len(next))
	}
	if next[0].UserID != tenant3.ID {
		t.Errorf("successor user = %d, want %d", next[0].UserID, tenant3.ID)
	}
}

func TestCompleteCustomIntervalAdvancesCursor(t *testing.T) {
	f := setupEngineTest(t)
	interval := 10
	task, err := f.engine.CreateTask(CreateTaskParams{
		TaskParams: store.TaskParams{
			Title:        "Deep clean fridge",
			PropertyID:   f.property.ID,
			Frequency:    recurrence.Custom,
			IntervalDays: &interval,
			Priority:     2,
			IsActive:     true,
		},
		UserIDs: []int64{f.tenant1.ID},
		DueDate: f.due,
	}, f.adminActor())
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	active := f.activeAssignments(t, task.ID)
	if _, err := f.engine.Complete(active[0].ID, Actor{UserID: f.tenant1.ID}, "", nil); err != nil {
		t.Fatalf("complete: %v", err)
	}

	cursor, err := f.tasks.ActiveRecurrence(task.ID)
	if err != nil {
		t.Fatalf("active recurrence: %v", err)
	}
	wantNext := f.due.AddDate(0, 0, 10)
	if !cursor.NextDueDate.Equal(wantNext) {
		t.Errorf("cursor next due = %v, want %v", cursor.NextDueDate, wantNext)
	}

	// Not a rotating task: no successor assignment is created.
	if rest := f.activeAssignments(t, task.ID); len(rest) != 0 {
		t.Errorf("expected no active assignments, got %d", len(rest))
	}
}

func TestVerifyCompletion(t *testing.T) {
	f := setupEngineTest(t)
	task := f.createRotatingTask(t, "Take out bins", []int64{f.tenant1.ID, f.tenant2.ID}, f.due)

	active := f.activeAssignments(t, task.ID)
	completion, err := f.engine.Complete(active[0].ID, Actor{UserID: f.tenant1.ID}, "", nil)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	if _, err := f.engine.Verify(completion.ID, Actor{UserID: f.tenant2.ID}, model.CompletionCompleted); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-admin verify error = %v, want ErrForbidden", err)
	}
	if _, err := f.engine.Verify(completion.ID, f.adminActor(), "NONSENSE"); !errors.Is(err, ErrConflict) {
		t.Fatalf("bad status error = %v, want ErrConflict", err)
	}

	verified, err := f.engine.Verify(completion.ID, f.adminActor(), model.CompletionCompleted)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verified.VerifiedBy == nil || *verified.VerifiedBy != f.admin.ID {
		t.Errorf("verified_by = %v, want %d", verified.VerifiedBy, f.admin.ID)
	}
	if verified.VerifiedAt == nil {
		t.Error("verified_at not set")
	}
}

func TestSetRotationOrderAdminOnly(t *testing.T) {
	f := setupEngineTest(t)
	task := f.createRotatingTask(t, "Take out bins", []int64{f.tenant1.ID, f.tenant2.ID}, f.due)

	err := f.engine.SetRotationOrder(task.ID, []int64{f.tenant2.ID, f.tenant1.ID}, Actor{UserID: f.tenant1.ID})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-admin error = %v, want ErrForbidden", err)
	}

	if err := f.engine.SetRotationOrder(task.ID, []int64{f.tenant2.ID, f.tenant1.ID}, f.adminActor()); err != nil {
		t.Fatalf("set rotation order: %v", err)
	}

	order, err := f.engine.RotationOrder(task.ID)
	if err != nil {
		t.Fatalf("rotation order: %v", err)
	}
	if len(order) != 2 || order[0].UserID != f.tenant2.ID || order[1].UserID != f.tenant1.ID {
		t.Errorf("order = %v, want tenant2 then tenant1", order)
	}
}

func TestUpdateAssignmentsReconciles(t *testing.T) {
	f := setupEngineTest(t)
	tenant3 := f.createUser(t, "t3@ashgrove.test", "Tenant Three", model.RoleTenant)
	task := f.createRotatingTask(t, "Take out bins", []int64{f.tenant1.ID, f.tenant2.ID}, f.due)

	// Swap tenant1 out for tenant3.
	if err := f.engine.UpdateAssignments(task.ID, []int64{f.tenant2.ID, tenant3.ID}, f.adminActor()); err != nil {
		t.Fatalf("update assignments: %v", err)
	}

	assignees, err := f.assignments.DistinctAssignees(task.ID)
	if err != nil {
		t.Fatalf("distinct assignees: %v", err)
	}
	for _, id := range assignees {
		if id == f.tenant1.ID {
			t.Errorf("tenant1 still assigned after removal")
		}
	}

	order, err := f.tasks.RotationOrder(task.ID)
	if err != nil {
		t.Fatalf("rotation order: %v", err)
	}
	if len(order) != 2 || order[0].UserID != f.tenant2.ID || order[1].UserID != tenant3.ID {
		t.Errorf("order = %v, want tenant2 then tenant3", order)
	}
}

func TestMyAssignmentsSweepsFirst(t *testing.T) {
	f := setupEngineTest(t)
	f.createRotatingTask(t, "Take out bins", []int64{f.tenant1.ID, f.tenant2.ID}, f.due)

	f.clk.t = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	// The lapsed cycle must already be rotated forward by the time the
	// successor reads their list.
	mine, err := f.engine.MyAssignments(f.tenant2.ID)
	if err != nil {
		t.Fatalf("my assignments: %v", err)
	}
	if len(mine) != 1 {
		t.Fatalf("expected 1 assignment for successor, got %d", len(mine))
	}
	if mine[0].Status != model.AssignmentPending {
		t.Errorf("successor status = %q, want %q", mine[0].Status, model.AssignmentPending)
	}

	lapsedView, err := f.engine.MyAssignments(f.tenant1.ID)
	if err != nil {
		t.Fatalf("my assignments: %v", err)
	}
	if len(lapsedView) != 0 {
		t.Errorf("lapsed user still has %d active assignments", len(lapsedView))
	}
}

func TestTaskAssignmentsSweepsFirst(t *testing.T) {
	f := setupEngineTest(t)
	task := f.createRotatingTask(t, "Take out bins", []int64{f.tenant1.ID, f.tenant2.ID}, f.due)

	f.clk.t = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	all, err := f.engine.TaskAssignments(task.ID)
	if err != nil {
		t.Fatalf("task assignments: %v", err)
	}

	byUser := make(map[int64]string)
	for _, a := range all {
		byUser[a.UserID] = a.Status
	}
	if byUser[f.tenant1.ID] != model.AssignmentOverdue {
		t.Errorf("lapsed assignment status = %q, want %q", byUser[f.tenant1.ID], model.AssignmentOverdue)
	}
	if byUser[f.tenant2.ID] != model.AssignmentPending {
		t.Errorf("successor status = %q, want %q", byUser[f.tenant2.ID], model.AssignmentPending)
	}
}

func TestTaskCompletionsSweepsFirst(t *testing.T) {
	f := setupEngineTest(t)
	task := f.createRotatingTask(t, "Take out bins", []int64{f.tenant1.ID, f.tenant2.ID}, f.due)

	f.clk.t = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	completions, err := f.engine.TaskCompletions(task.ID)
	if err != nil {
		t.Fatalf("task completions: %v", err)
	}
	found := false
	for _, c := range completions {
		if c.Status == model.CompletionOverdue {
			found = true
		}
	}
	if !found {
		t.Error("expected an overdue completion record after the read")
	}
}
