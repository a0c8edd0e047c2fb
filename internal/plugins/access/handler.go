package access

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/hrportal/internal/apperror"
	"github.com/keyxmakerx/hrportal/internal/plugins/session"
)

// ChangeHook is called after a role's assignments were replaced.
type ChangeHook func(c echo.Context, role string, permissionIDs []int64)

// Handler handles the permission administration API. Handlers are thin:
// they bind the request, call the service, and write JSON.
type Handler struct {
	service  AccessService
	onChange ChangeHook
}

// NewHandler creates a new access handler.
func NewHandler(service AccessService, onChange ChangeHook) *Handler {
	return &Handler{service: service, onChange: onChange}
}

// Catalog returns the permission catalog grouped by module
// (GET /admin/permissions).
func (h *Handler) Catalog(c echo.Context) error {
	groups, err := h.service.GroupedCatalog(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"roles":   Roles(),
		"modules": groups,
	})
}

// RolePermissions returns the permissions assigned to a role
// (GET /admin/roles/:role/permissions).
func (h *Handler) RolePermissions(c echo.Context) error {
	role, ok := LookupRole(c.Param("role"))
	if !ok {
		return apperror.NewNotFound("role not found")
	}

	perms, err := h.service.PermissionsForRole(c.Request().Context(), role.Name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, RolePermissionsView{Role: role, Permissions: perms})
}

// ReplaceRolePermissions replaces a role's assignments with the submitted
// set (PUT /admin/roles/:role/permissions).
func (h *Handler) ReplaceRolePermissions(c echo.Context) error {
	role, ok := LookupRole(c.Param("role"))
	if !ok {
		return apperror.NewNotFound("role not found")
	}

	var req ReplaceAssignmentsRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	ctx := c.Request().Context()
	if err := h.service.ReplaceAssignments(ctx, role.Name, req.PermissionIDs); err != nil {
		return err
	}
	if h.onChange != nil {
		h.onChange(c, role.Name, req.PermissionIDs)
	}

	perms, err := h.service.PermissionsForRole(ctx, role.Name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, RolePermissionsView{Role: role, Permissions: perms})
}

// MyPermissions returns the caller's role and permission codes
// (GET /api/me/permissions).
func (h *Handler) MyPermissions(c echo.Context) error {
	sess := session.FromContext(c)
	if sess.IsAnonymous() {
		return apperror.NewAuthenticationRequired()
	}

	role, _ := LookupRole(sess.Role)
	perms, err := h.service.PermissionsForRole(c.Request().Context(), sess.Role)
	if err != nil {
		return err
	}

	codes := make([]string, 0, len(perms))
	for _, p := range perms {
		codes = append(codes, p.Code)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"role":        sess.Role,
		"bypass":      role.BypassPermissions,
		"permissions": codes,
	})
}
