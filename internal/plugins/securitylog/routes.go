package securitylog

import (
	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/hrportal/internal/plugins/access"
	"github.com/keyxmakerx/hrportal/internal/plugins/auth"
)

// RegisterRoutes mounts the security log under /admin/security. Reading the
// log needs security.view; the TOTP diagnostic tool has its own permission
// because it reveals expected codes.
func RegisterRoutes(e *echo.Echo, h *Handler, svc access.AccessService, onDeny access.DenyHook) {
	g := e.Group("/admin/security", auth.RequireAuth(), access.RequireRole(onDeny, access.RoleAdmin))
	g.GET("/events", h.Events, access.RequirePermission(svc, onDeny, access.PermSecurityView))
	g.POST("/totp-diagnostics", h.DiagnoseTOTP, access.RequirePermission(svc, onDeny, access.PermSecurityTOTPDiagnosis))
}
