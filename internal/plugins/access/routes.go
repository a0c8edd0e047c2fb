package access

import (
	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/hrportal/internal/plugins/auth"
)

// RegisterRoutes sets up the permission administration API. The admin
// portal is limited to the admin role (super admins pass through their
// bypass capability); editing assignments additionally needs roles.manage.
func RegisterRoutes(e *echo.Echo, h *Handler, svc AccessService, onDeny DenyHook) {
	admin := e.Group("/admin", auth.RequireAuth(), RequireRole(onDeny, RoleAdmin))
	manage := RequirePermission(svc, onDeny, PermRolesManage)
	admin.GET("/permissions", h.Catalog, manage)
	admin.GET("/roles/:role/permissions", h.RolePermissions, manage)
	admin.PUT("/roles/:role/permissions", h.ReplaceRolePermissions, manage)

	// Any signed-in user may read their own permissions.
	api := e.Group("/api", auth.RequireAuth())
	api.GET("/me/permissions", h.MyPermissions)
}
