package auth

import (
	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/hrportal/internal/apperror"
	"github.com/keyxmakerx/hrportal/internal/plugins/session"
)

// RequireAuth returns middleware that admits only requests carrying a live
// authenticated session. The session middleware must run first; it has
// already applied the idle and absolute timers, so an expired session
// arrives here as anonymous. The error handler turns the rejection into a
// JSON 401, an HX-Redirect or a redirect to /login.
func RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess := session.FromContext(c)
			if sess == nil {
				return apperror.NewMissingContext()
			}
			if sess.IsAnonymous() {
				return apperror.NewAuthenticationRequired()
			}
			return next(c)
		}
	}
}

// --- Exported getters for other plugins ---

// GetUserID returns the authenticated user's ID from the request session,
// or "" for anonymous requests.
func GetUserID(c echo.Context) string {
	sess := session.FromContext(c)
	if sess.IsAnonymous() {
		return ""
	}
	return sess.SubjectID
}

// GetRole returns the authenticated user's role, or "".
func GetRole(c echo.Context) string {
	sess := session.FromContext(c)
	if sess.IsAnonymous() {
		return ""
	}
	return sess.Role
}
