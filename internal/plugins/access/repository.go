package access

import (
	"context"
	"database/sql"
	"fmt"
)

// PermissionRepository defines the data access contract for the permission
// catalog and role assignments. All SQL lives in the concrete implementation.
type PermissionRepository interface {
	ListCatalog(ctx context.Context) ([]Permission, error)
	ListForRole(ctx context.Context, role string) ([]Permission, error)
	RoleHas(ctx context.Context, role, code string) (bool, error)
	ReplaceForRole(ctx context.Context, role string, permissionIDs []int64) error
}

// permissionRepository implements PermissionRepository with hand-written
// MariaDB queries. Only positional placeholders are used.
type permissionRepository struct {
	db *sql.DB
}

// NewPermissionRepository creates a repository backed by the given DB pool.
func NewPermissionRepository(db *sql.DB) PermissionRepository {
	return &permissionRepository{db: db}
}

// ListCatalog returns every permission ordered by module, sort order, code.
func (r *permissionRepository) ListCatalog(ctx context.Context) ([]Permission, error) {
	query := `SELECT id, code, module, label, description, sort_order
	          FROM permissions
	          ORDER BY module, sort_order, code`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying permission catalog: %w", err)
	}
	defer rows.Close()

	return scanPermissions(rows)
}

// ListForRole returns the permissions assigned to role in catalog order.
func (r *permissionRepository) ListForRole(ctx context.Context, role string) ([]Permission, error) {
	query := `SELECT p.id, p.code, p.module, p.label, p.description, p.sort_order
	          FROM role_permissions rp
	          INNER JOIN permissions p ON p.id = rp.permission_id
	          WHERE rp.role = ?
	          ORDER BY p.module, p.sort_order, p.code`

	rows, err := r.db.QueryContext(ctx, query, role)
	if err != nil {
		return nil, fmt.Errorf("querying permissions for role: %w", err)
	}
	defer rows.Close()

	return scanPermissions(rows)
}

// RoleHas reports whether code is assigned to role.
func (r *permissionRepository) RoleHas(ctx context.Context, role, code string) (bool, error) {
	query := `SELECT EXISTS(
	              SELECT 1 FROM role_permissions rp
	              INNER JOIN permissions p ON p.id = rp.permission_id
	              WHERE rp.role = ? AND p.code = ?)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, role, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking role permission: %w", err)
	}
	return exists, nil
}

// ReplaceForRole deletes every assignment for role and inserts the given
// set inside one transaction. Any failure rolls back, leaving the previous
// assignments untouched.
func (r *permissionRepository) ReplaceForRole(ctx context.Context, role string, permissionIDs []int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role = ?`, role); err != nil {
		return fmt.Errorf("deleting role assignments: %w", err)
	}

	if len(permissionIDs) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO role_permissions (role, permission_id) VALUES (?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing assignment insert: %w", err)
		}
		defer stmt.Close()

		for _, id := range permissionIDs {
			if _, err := stmt.ExecContext(ctx, role, id); err != nil {
				return fmt.Errorf("inserting assignment %d: %w", id, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing role assignments: %w", err)
	}
	return nil
}

func scanPermissions(rows *sql.Rows) ([]Permission, error) {
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Code, &p.Module, &p.Label, &p.Description, &p.SortOrder); err != nil {
			return nil, fmt.Errorf("scanning permission: %w", err)
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating permissions: %w", err)
	}
	return perms, nil
}
