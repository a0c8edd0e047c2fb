package access

import (
	"context"
	"database/sql"
	"net/http"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/keyxmakerx/hrportal/internal/apperror"
)

// newTestDB opens an in-memory SQLite database with the permission tables.
// One connection keeps every query on the same in-memory database.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema := []string{
		`CREATE TABLE permissions (
			id INTEGER PRIMARY KEY,
			code TEXT NOT NULL UNIQUE,
			module TEXT NOT NULL,
			label TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			sort_order INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE role_permissions (
			role TEXT NOT NULL,
			permission_id INTEGER NOT NULL,
			PRIMARY KEY (role, permission_id)
		)`,
		`INSERT INTO permissions (id, code, module, label, sort_order) VALUES
			(1, 'users.manage', 'users', 'Manage users', 1),
			(2, 'employees.view', 'employees', 'View employees', 1),
			(3, 'employees.edit', 'employees', 'Edit employees', 2),
			(4, 'roles.manage', 'security', 'Manage roles', 1),
			(5, 'employees.export', 'employees', 'Export employees', 2)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("applying schema: %v", err)
		}
	}
	return db
}

func codes(perms []Permission) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		out = append(out, p.Code)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRepository_ListOrdering(t *testing.T) {
	repo := NewPermissionRepository(newTestDB(t))
	ctx := context.Background()

	catalog, err := repo.ListCatalog(ctx)
	if err != nil {
		t.Fatalf("ListCatalog: %v", err)
	}
	want := []string{"employees.view", "employees.edit", "employees.export", "roles.manage", "users.manage"}
	if got := codes(catalog); !equalStrings(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	if err := repo.ReplaceForRole(ctx, RoleHR, []int64{4, 3, 2}); err != nil {
		t.Fatalf("ReplaceForRole: %v", err)
	}
	perms, err := repo.ListForRole(ctx, RoleHR)
	if err != nil {
		t.Fatalf("ListForRole: %v", err)
	}
	want = []string{"employees.view", "employees.edit", "roles.manage"}
	if got := codes(perms); !equalStrings(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestRepository_RoleHas(t *testing.T) {
	repo := NewPermissionRepository(newTestDB(t))
	ctx := context.Background()

	if err := repo.ReplaceForRole(ctx, RoleEmployee, []int64{2}); err != nil {
		t.Fatalf("ReplaceForRole: %v", err)
	}
	if ok, err := repo.RoleHas(ctx, RoleEmployee, "employees.view"); err != nil || !ok {
		t.Errorf("expected employees.view assigned, got %v, %v", ok, err)
	}
	if ok, err := repo.RoleHas(ctx, RoleEmployee, "users.manage"); err != nil || ok {
		t.Errorf("expected users.manage not assigned, got %v, %v", ok, err)
	}
}

func TestRepository_ReplaceIsExact(t *testing.T) {
	repo := NewPermissionRepository(newTestDB(t))
	ctx := context.Background()

	if err := repo.ReplaceForRole(ctx, RoleAdmin, []int64{1, 2, 3}); err != nil {
		t.Fatalf("first replace: %v", err)
	}
	if err := repo.ReplaceForRole(ctx, RoleAdmin, []int64{4}); err != nil {
		t.Fatalf("second replace: %v", err)
	}
	perms, _ := repo.ListForRole(ctx, RoleAdmin)
	if got := codes(perms); !equalStrings(got, []string{"roles.manage"}) {
		t.Errorf("expected only roles.manage, got %v", got)
	}

	if err := repo.ReplaceForRole(ctx, RoleAdmin, nil); err != nil {
		t.Fatalf("clearing replace: %v", err)
	}
	perms, _ = repo.ListForRole(ctx, RoleAdmin)
	if len(perms) != 0 {
		t.Errorf("expected no permissions, got %v", codes(perms))
	}
}

func TestRepository_ReplaceRollsBackOnInsertFailure(t *testing.T) {
	db := newTestDB(t)
	repo := NewPermissionRepository(db)
	ctx := context.Background()

	if err := repo.ReplaceForRole(ctx, RoleHR, []int64{2, 3}); err != nil {
		t.Fatalf("seeding assignments: %v", err)
	}

	// The repeated ID violates the primary key after the delete and the first
	// inserts have already run inside the transaction.
	err := repo.ReplaceForRole(ctx, RoleHR, []int64{1, 4, 4})
	if err == nil {
		t.Fatal("expected insert failure")
	}

	perms, err := repo.ListForRole(ctx, RoleHR)
	if err != nil {
		t.Fatalf("ListForRole: %v", err)
	}
	if got := codes(perms); !equalStrings(got, []string{"employees.view", "employees.edit"}) {
		t.Errorf("expected prior assignments intact, got %v", got)
	}

	// Other roles are untouched and the connection is usable again.
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM role_permissions`).Scan(&n); err != nil || n != 2 {
		t.Errorf("expected 2 rows, got %d (err=%v)", n, err)
	}
}

func TestService_CanAgainstDatabase(t *testing.T) {
	svc := NewAccessService(NewPermissionRepository(newTestDB(t)))
	ctx := context.Background()

	if ok, _ := svc.Can(ctx, RoleEmployee, "users.manage"); ok {
		t.Error("expected employee denied before assignment")
	}
	if err := svc.ReplaceAssignments(ctx, RoleEmployee, []int64{1}); err != nil {
		t.Fatalf("ReplaceAssignments: %v", err)
	}
	if ok, _ := svc.Can(ctx, RoleEmployee, "users.manage"); !ok {
		t.Error("expected employee granted after assignment")
	}
	if ok, _ := svc.Can(ctx, RoleSuperAdmin, "does.not.exist"); !ok {
		t.Error("expected super admin granted any code")
	}
}

func TestService_UnknownPermissionIDLeavesAssignmentsIntact(t *testing.T) {
	db := newTestDB(t)
	svc := NewAccessService(NewPermissionRepository(db))
	ctx := context.Background()

	if err := svc.ReplaceAssignments(ctx, RoleHR, []int64{2}); err != nil {
		t.Fatalf("ReplaceAssignments: %v", err)
	}
	err := svc.ReplaceAssignments(ctx, RoleHR, []int64{2, 42})
	if apperror.SafeCode(err) != http.StatusUnprocessableEntity {
		t.Fatalf("expected validation error, got %v", err)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM role_permissions WHERE role = ?`, RoleHR).Scan(&n); err != nil || n != 1 {
		t.Errorf("expected the prior single assignment, got %d (err=%v)", n, err)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM role_permissions WHERE permission_id = 42`).Scan(&n); err != nil || n != 0 {
		t.Errorf("expected no dangling edge, got %d (err=%v)", n, err)
	}
}
