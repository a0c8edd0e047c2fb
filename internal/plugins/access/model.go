// Package access resolves a role to its permission codes and answers
// authorization queries. Authorization is purely role based: the role carried
// in the session is the only key, with no per-user overrides.
package access

// --- Role System ---

// Role names stored in users.role and role_permissions.role.
const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleHR         = "hr"
	RoleEmployee   = "employee"
)

// Role is one entry of the fixed role set.
type Role struct {
	Name  string `json:"name"`
	Label string `json:"label"`

	// BypassPermissions grants every permission without consulting the
	// assignment table.
	BypassPermissions bool `json:"bypass_permissions"`
}

// roles is the fixed role set in display order.
var roles = []Role{
	{Name: RoleSuperAdmin, Label: "Super Administrator", BypassPermissions: true},
	{Name: RoleAdmin, Label: "Administrator"},
	{Name: RoleHR, Label: "Human Resources"},
	{Name: RoleEmployee, Label: "Employee"},
}

// LookupRole returns the role definition for name.
func LookupRole(name string) (Role, bool) {
	for _, r := range roles {
		if r.Name == name {
			return r, true
		}
	}
	return Role{}, false
}

// Roles returns the fixed role set.
func Roles() []Role {
	out := make([]Role, len(roles))
	copy(out, roles)
	return out
}

// --- Permission catalog ---

// Permission codes checked by this service's own routes.
const (
	PermRolesManage           = "roles.manage"
	PermSecurityView          = "security.view"
	PermSecurityTOTPDiagnosis = "security.totp_diagnostics"
)

// Permission is a row of the permission catalog.
type Permission struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Module      string `json:"module"`
	Label       string `json:"label"`
	Description string `json:"description"`
	SortOrder   int    `json:"sort_order"`
}

// ModuleGroup is the catalog slice for one module, in sort order.
type ModuleGroup struct {
	Module      string       `json:"module"`
	Permissions []Permission `json:"permissions"`
}

// RolePermissionsView is the response body for a role's assignments.
type RolePermissionsView struct {
	Role        Role         `json:"role"`
	Permissions []Permission `json:"permissions"`
}

// ReplaceAssignmentsRequest is the body of PUT /admin/roles/:role/permissions.
type ReplaceAssignmentsRequest struct {
	PermissionIDs []int64 `json:"permission_ids" form:"permission_ids"`
}
