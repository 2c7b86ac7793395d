package database

import "testing"

func TestOpenEnablesForeignKeys(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	var enabled int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&enabled); err != nil {
		t.Fatalf("query foreign_keys pragma: %v", err)
	}
	if enabled != 1 {
		t.Fatalf("foreign_keys = %d, want 1", enabled)
	}
}

func TestDeleteTaskCascadesToAssignments(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(`INSERT INTO users (id, email, name, role) VALUES (1, 'admin@example.com', 'Admin', 'admin')`); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO properties (id, name, created_by) VALUES (1, 'Maple House', 1)`); err != nil {
		t.Fatalf("insert property: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO tasks (id, title, property_id, created_by) VALUES (1, 'Clean kitchen', 1, 1)`); err != nil {
		t.Fatalf("insert task: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO task_assignments (task_id, user_id, assigned_by, due_date) VALUES (1, 1, 1, '2024-01-08 17:00:00')`); err != nil {
		t.Fatalf("insert assignment: %v", err)
	}

	if _, err := db.Exec(`DELETE FROM tasks WHERE id = 1`); err != nil {
		t.Fatalf("delete task: %v", err)
	}

	var orphans int
	if err := db.QueryRow(`SELECT COUNT(*) FROM task_assignments WHERE task_id = 1`).Scan(&orphans); err != nil {
		t.Fatalf("count assignments: %v", err)
	}
	if orphans != 0 {
		t.Fatalf("assignments left after task delete = %d, want 0", orphans)
	}
}
