package access

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/hrportal/internal/apperror"
	"github.com/keyxmakerx/hrportal/internal/plugins/session"
)

// DenyHook is called when an authenticated caller is refused.
type DenyHook func(c echo.Context, role, requirement string)

// RequireRole returns middleware that admits only sessions whose role is one
// of roles. Used to scope whole portals (admin, HR) to their audiences.
//
// Must be applied AFTER auth.RequireAuth.
func RequireRole(onDeny DenyHook, roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess := session.FromContext(c)
			if sess.IsAnonymous() {
				return apperror.NewAuthenticationRequired()
			}

			role, _ := LookupRole(sess.Role)
			if !allowed[sess.Role] && !role.BypassPermissions {
				deny(c, onDeny, sess.Role, "role")
				return apperror.NewAccessDenied()
			}
			return next(c)
		}
	}
}

// RequirePermission returns middleware that admits only sessions whose role
// carries code.
//
// Must be applied AFTER auth.RequireAuth.
func RequirePermission(svc AccessService, onDeny DenyHook, code string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess := session.FromContext(c)
			if sess.IsAnonymous() {
				return apperror.NewAuthenticationRequired()
			}

			ok, err := svc.Can(c.Request().Context(), sess.Role, code)
			if err != nil {
				return err
			}
			if !ok {
				deny(c, onDeny, sess.Role, code)
				return apperror.NewAccessDenied()
			}
			return next(c)
		}
	}
}

func deny(c echo.Context, onDeny DenyHook, role, requirement string) {
	slog.Warn("access denied",
		slog.String("role", role),
		slog.String("requires", requirement),
		slog.String("path", c.Request().URL.Path),
	)
	if onDeny != nil {
		onDeny(c, role, requirement)
	}
}
